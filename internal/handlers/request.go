package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/watchsync/internal/platform/api"
	"github.com/example/watchsync/internal/progress"
)

// Event payloads are small; anything near this size is a broken client.
const maxRequestBodyBytes = 1 << 20

// decodeJSON decodes a bounded request body into dst, answering 400 and
// returning false on malformed input.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, rid string, dst *T) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return false
	}
	return true
}

// keyFromQuery parses catalog_id/kind/season/episode query params into a
// ContentKey. On failure it writes a 400 response and returns false.
func keyFromQuery(w http.ResponseWriter, r *http.Request, rid string) (progress.ContentKey, bool) {
	q := r.URL.Query()
	k := progress.ContentKey{
		CatalogID: strings.TrimSpace(q.Get("catalog_id")),
		Kind:      progress.MediaKind(strings.TrimSpace(q.Get("kind"))),
	}
	var err error
	if k.Season, err = intParam(q.Get("season")); err != nil {
		api.BadRequest(w, "INVALID_KEY", "season must be an integer", rid, nil)
		return progress.ContentKey{}, false
	}
	if k.Episode, err = intParam(q.Get("episode")); err != nil {
		api.BadRequest(w, "INVALID_KEY", "episode must be an integer", rid, nil)
		return progress.ContentKey{}, false
	}
	if !k.Valid() {
		api.BadRequest(w, "INVALID_KEY", "catalog_id and kind are required; tv keys need season and episode >= 1", rid, nil)
		return progress.ContentKey{}, false
	}
	return k, true
}

// intParam parses an optional integer query value; empty means 0.
func intParam(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// contentKeyReq is the JSON body shape for operations addressing one record.
type contentKeyReq struct {
	CatalogID string `json:"catalog_id"`
	Kind      string `json:"kind"`
	Season    int    `json:"season"`
	Episode   int    `json:"episode"`
}

func (c contentKeyReq) key() progress.ContentKey {
	return progress.ContentKey{
		CatalogID: strings.TrimSpace(c.CatalogID),
		Kind:      progress.MediaKind(strings.TrimSpace(c.Kind)),
		Season:    c.Season,
		Episode:   c.Episode,
	}
}
