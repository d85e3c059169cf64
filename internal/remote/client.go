// Package remote is the HTTP client for the remote progress store. The
// endpoint is consumed, not designed here: one POST, bearer auth, and any
// non-2xx response is an error for the caller to log and drop.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProgressUpdate is the wire payload for a progress push.
type ProgressUpdate struct {
	ContentID       string  `json:"content_id"`
	MediaKind       string  `json:"media_kind"`
	ProgressPercent float64 `json:"progress_percent"`
	CurrentTime     float64 `json:"current_time"`
	Duration        float64 `json:"duration"`
	Title           string  `json:"title,omitempty"`
	PosterRef       string  `json:"poster_ref,omitempty"`
	BackdropRef     string  `json:"backdrop_ref,omitempty"`
	Season          int     `json:"season,omitempty"`
	Episode         int     `json:"episode,omitempty"`
}

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UpdateProgress pushes one progress state. The call is idempotent on the
// remote side (last-writer-wins there too), so callers may simply retry on a
// later trigger.
func (c *Client) UpdateProgress(ctx context.Context, u ProgressUpdate) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("remote: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/progress", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "watchsync/1.0")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("remote: status %d body=%q", resp.StatusCode, string(b[:min(len(b), 200)]))
	}
	return nil
}
