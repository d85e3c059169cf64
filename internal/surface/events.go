// Package surface defines the inbound message schema spoken by playback
// surfaces (embedded players, companion apps) and its validation. Handlers
// and the NATS consumer both decode through here.
package surface

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed marks messages that must be dropped silently. Callers log at
// debug and move on; a bad message must never surface as a caller error.
var ErrMalformed = errors.New("malformed surface event")

// Event kinds.
const (
	KindLifecycle  = "lifecycle"
	KindSnapshot   = "snapshot"
	KindVisibility = "visibility"
)

// Lifecycle event names.
const (
	EventPlay      = "play"
	EventPause     = "pause"
	EventSeek      = "seek"
	EventEnded     = "ended"
	EventHeartbeat = "heartbeat"
)

// Event is a decoded, validated surface message. Snapshot progress is
// normalized into CurrentTime/Duration so the reconciler treats both shapes
// uniformly; CatalogID is set only for snapshots, which may address content
// other than what the session was opened for.
type Event struct {
	Kind string

	Name        string
	CurrentTime float64
	Duration    float64

	CatalogID string

	// Episode identity override; zero means "not specified".
	Season  int
	Episode int

	Hidden bool
}

// Decode parses and validates a raw surface message. Any missing required
// field, unknown kind or negative time yields ErrMalformed.
func Decode(data []byte) (Event, error) {
	var raw struct {
		Kind        string   `json:"kind"`
		Event       string   `json:"event"`
		CurrentTime *float64 `json:"current_time"`
		Duration    *float64 `json:"duration"`
		ID          *int64   `json:"id"`
		Progress    *struct {
			Watched  *float64 `json:"watched"`
			Duration *float64 `json:"duration"`
		} `json:"progress"`
		Season  int   `json:"season"`
		Episode int   `json:"episode"`
		Hidden  *bool `json:"hidden"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch raw.Kind {
	case KindLifecycle:
		if !validLifecycle(raw.Event) {
			return Event{}, fmt.Errorf("%w: unknown lifecycle event %q", ErrMalformed, raw.Event)
		}
		if raw.CurrentTime == nil || raw.Duration == nil {
			return Event{}, fmt.Errorf("%w: lifecycle event missing current_time or duration", ErrMalformed)
		}
		if *raw.CurrentTime < 0 || *raw.Duration < 0 {
			return Event{}, fmt.Errorf("%w: negative time", ErrMalformed)
		}
		return Event{
			Kind:        KindLifecycle,
			Name:        raw.Event,
			CurrentTime: *raw.CurrentTime,
			Duration:    *raw.Duration,
			Season:      raw.Season,
			Episode:     raw.Episode,
		}, nil

	case KindSnapshot:
		if raw.ID == nil || *raw.ID <= 0 {
			return Event{}, fmt.Errorf("%w: snapshot missing id", ErrMalformed)
		}
		if raw.Progress == nil || raw.Progress.Watched == nil || raw.Progress.Duration == nil {
			return Event{}, fmt.Errorf("%w: snapshot missing progress", ErrMalformed)
		}
		if *raw.Progress.Watched < 0 || *raw.Progress.Duration < 0 {
			return Event{}, fmt.Errorf("%w: negative time", ErrMalformed)
		}
		return Event{
			Kind:        KindSnapshot,
			CurrentTime: *raw.Progress.Watched,
			Duration:    *raw.Progress.Duration,
			CatalogID:   strconv.FormatInt(*raw.ID, 10),
			Season:      raw.Season,
			Episode:     raw.Episode,
		}, nil

	case KindVisibility:
		if raw.Hidden == nil {
			return Event{}, fmt.Errorf("%w: visibility event missing hidden", ErrMalformed)
		}
		return Event{Kind: KindVisibility, Hidden: *raw.Hidden}, nil

	default:
		return Event{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, raw.Kind)
	}
}

func validLifecycle(name string) bool {
	switch name {
	case EventPlay, EventPause, EventSeek, EventEnded, EventHeartbeat:
		return true
	}
	return false
}
