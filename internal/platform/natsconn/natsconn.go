// Package natsconn dials NATS for the optional JetStream surface bridge.
package natsconn

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Options control the dial. Unset fields fall back to NATS_* env vars,
// then to defaults suited to a sidecar daemon: a handful of reconnect
// attempts with short waits, and fail-fast when the first dial cannot
// reach the server.
type Options struct {
	URL           string
	Name          string        // connection name shown in server monitoring
	MaxReconnects int           // NATS_MAX_RECONNECTS, default 5
	ReconnectWait time.Duration // NATS_RECONNECT_WAIT, default 2s
}

// Connect dials and returns the live connection, or an error naming the
// URL it could not reach.
func Connect(opts Options) (*nats.Conn, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		url = envString("NATS_URL", "nats://localhost:4222")
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "watchsync"
	}
	reconnects := opts.MaxReconnects
	if reconnects == 0 {
		reconnects = envInt("NATS_MAX_RECONNECTS", 5)
	}
	wait := opts.ReconnectWait
	if wait == 0 {
		wait = envDuration("NATS_RECONNECT_WAIT", 2*time.Second)
	}

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(reconnects),
		nats.ReconnectWait(wait),
		nats.RetryOnFailedConnect(false),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return n
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return fallback
}
