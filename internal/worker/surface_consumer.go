// Package worker bridges surface events arriving over NATS JetStream into
// the reconciler, for hosts that publish instead of calling the HTTP ingest.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/watchsync/internal/engine"
	"github.com/example/watchsync/internal/platform/config"
	"github.com/example/watchsync/internal/platform/metrics"
	"github.com/example/watchsync/internal/progress"
	"github.com/example/watchsync/internal/session"
	"github.com/example/watchsync/internal/surface"
)

// Envelope wraps one surface message with enough context to route it: the
// producer-minted session id plus the content defaults needed to open a
// session on first sight.
type Envelope struct {
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id"`
	Content   Content         `json:"content"`
	Event     json.RawMessage `json:"event"`
}

type Content struct {
	CatalogID   string `json:"catalog_id"`
	Kind        string `json:"kind"`
	Season      int    `json:"season"`
	Episode     int    `json:"episode"`
	Title       string `json:"title"`
	PosterRef   string `json:"poster_ref"`
	BackdropRef string `json:"backdrop_ref"`
}

func (c Content) key() progress.ContentKey {
	return progress.ContentKey{
		CatalogID: strings.TrimSpace(c.CatalogID),
		Kind:      progress.MediaKind(strings.TrimSpace(c.Kind)),
		Season:    c.Season,
		Episode:   c.Episode,
	}
}

// parseEnvelope decodes the outer envelope and its inner surface message.
func parseEnvelope(data []byte) (Envelope, surface.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, surface.Event{}, fmt.Errorf("%w: envelope: %v", surface.ErrMalformed, err)
	}
	if strings.TrimSpace(env.SessionID) == "" {
		return Envelope{}, surface.Event{}, fmt.Errorf("%w: envelope without session_id", surface.ErrMalformed)
	}
	if len(env.Event) == 0 {
		return Envelope{}, surface.Event{}, fmt.Errorf("%w: envelope without event", surface.ErrMalformed)
	}
	ev, err := surface.Decode(env.Event)
	if err != nil {
		return Envelope{}, surface.Event{}, err
	}
	return env, ev, nil
}

type Consumer struct {
	Log      *zap.Logger
	JS       nats.JetStreamContext
	Registry *session.Registry
	Engine   *engine.Engine

	Stream  string
	Subject string
	Durable string
}

func NewConsumer(log *zap.Logger, nc *nats.Conn, reg *session.Registry, eng *engine.Engine, cfg config.NATSConfig) (*Consumer, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Consumer{
		Log:      log,
		JS:       js,
		Registry: reg,
		Engine:   eng,
		Stream:   cfg.Stream,
		Subject:  cfg.Subject,
		Durable:  cfg.Durable,
	}, nil
}

// EnsureStream creates the event stream if missing, or widens its subjects
// to cover ours.
func (c *Consumer) EnsureStream(ctx context.Context) error {
	info, err := c.JS.StreamInfo(c.Stream)
	if err == nil {
		for _, s := range info.Config.Subjects {
			if s == c.Subject {
				return nil
			}
		}
		cfg := info.Config
		cfg.Subjects = append(cfg.Subjects, c.Subject)
		_, err := c.JS.UpdateStream(&cfg)
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = c.JS.AddStream(&nats.StreamConfig{
		Name:     c.Stream,
		Subjects: []string{c.Subject},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	return err
}

func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureStream(ctx); err != nil {
		return err
	}
	sub, err := c.JS.PullSubscribe(c.Subject, c.Durable)
	if err != nil {
		return err
	}
	return c.consumeLoop(ctx, sub)
}

func (c *Consumer) consumeLoop(ctx context.Context, sub *nats.Subscription) error {
	c.Log.Info("surface consumer started", zap.String("subject", c.Subject), zap.String("durable", c.Durable))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(32, nats.MaxWait(2*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			c.Log.Warn("fetch failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		for _, m := range msgs {
			c.handleMsg(m)
		}
	}
}

// handleMsg applies one envelope. Every outcome acks: a malformed message
// will not become less malformed on redelivery.
func (c *Consumer) handleMsg(m *nats.Msg) {
	env, ev, err := parseEnvelope(m.Data)
	if err != nil {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		c.Log.Debug("dropping surface message", zap.Error(err))
		_ = m.Ack()
		return
	}

	sess, ok := c.Registry.Get(env.SessionID)
	if !ok {
		key := env.Content.key()
		if !key.Valid() {
			metrics.EventsDropped.WithLabelValues("invalid_key").Inc()
			c.Log.Debug("dropping surface message for unknown session without valid content",
				zap.String("session_id", env.SessionID))
			_ = m.Ack()
			return
		}
		sess = c.Registry.GetOrOpen(env.SessionID, func() *engine.Session {
			c.Log.Debug("opening session from envelope",
				zap.String("session_id", env.SessionID),
				zap.String("user_id", env.UserID),
				zap.String("key", key.String()))
			return c.Engine.NewSession(engine.SessionOptions{
				Key:         key,
				Title:       strings.TrimSpace(env.Content.Title),
				PosterRef:   strings.TrimSpace(env.Content.PosterRef),
				BackdropRef: strings.TrimSpace(env.Content.BackdropRef),
			})
		})
	}

	sess.HandleEvent(ev)
	_ = m.Ack()
}
