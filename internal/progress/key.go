package progress

import (
	"fmt"
	"strconv"
	"strings"
)

// MediaKind distinguishes standalone titles from episodic content.
type MediaKind string

const (
	KindMovie  MediaKind = "movie"
	KindSeries MediaKind = "tv"
)

// ContentKey uniquely identifies a playable piece of content. For episodic
// media the season/episode pair is part of the identity: two episodes of the
// same show are two different records.
type ContentKey struct {
	CatalogID string    `json:"catalog_id"`
	Kind      MediaKind `json:"kind"`
	Season    int       `json:"season,omitempty"`
	Episode   int       `json:"episode,omitempty"`
}

func (k ContentKey) Episodic() bool { return k.Kind == KindSeries }

// Valid reports whether the key can serve as a record identity.
func (k ContentKey) Valid() bool {
	if strings.TrimSpace(k.CatalogID) == "" {
		return false
	}
	switch k.Kind {
	case KindMovie:
		return true
	case KindSeries:
		return k.Season >= 1 && k.Episode >= 1
	default:
		return false
	}
}

// WithEpisode returns a copy of the key pointing at the given season/episode.
// Values <= 0 leave the original identity untouched.
func (k ContentKey) WithEpisode(season, episode int) ContentKey {
	if season > 0 {
		k.Season = season
	}
	if episode > 0 {
		k.Episode = episode
	}
	return k
}

// String renders the canonical storage form: "movie:603" or "tv:1399:s1e3".
func (k ContentKey) String() string {
	if k.Episodic() {
		return string(k.Kind) + ":" + k.CatalogID + ":s" + strconv.Itoa(k.Season) + "e" + strconv.Itoa(k.Episode)
	}
	return string(k.Kind) + ":" + k.CatalogID
}

// ParseKey is the inverse of String. Used by HTTP handlers that address a
// record by its canonical form.
func ParseKey(s string) (ContentKey, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return ContentKey{}, fmt.Errorf("progress: malformed key %q", s)
	}
	k := ContentKey{Kind: MediaKind(parts[0]), CatalogID: parts[1]}
	if len(parts) == 3 {
		var season, episode int
		if _, err := fmt.Sscanf(parts[2], "s%de%d", &season, &episode); err != nil {
			return ContentKey{}, fmt.Errorf("progress: malformed episode segment %q", parts[2])
		}
		k.Season, k.Episode = season, episode
	}
	if !k.Valid() {
		return ContentKey{}, fmt.Errorf("progress: invalid key %q", s)
	}
	return k, nil
}
