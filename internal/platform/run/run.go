// Package run owns process lifecycle: signal handling, exit codes and
// bounded teardown.
package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Runner drives a blocking serve function and the teardown steps that
// follow it.
type Runner struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Runner {
	return &Runner{log: log}
}

// WithSignals runs start under a context cancelled by SIGINT or SIGTERM
// and returns the process exit code. A clean server close counts as
// success.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- start(ctx) }()

	select {
	case <-ctx.Done():
		r.log.Info("shutdown signal received")
		return 0
	case err := <-done:
		switch {
		case err == nil, errors.Is(err, http.ErrServerClosed):
			return 0
		default:
			r.log.Error("service exited with error", zap.Error(err))
			return 1
		}
	}
}

// Graceful runs shutdown with a bounded deadline. Errors are logged,
// not returned; teardown at exit is best effort.
func (r *Runner) Graceful(timeout time.Duration, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		r.log.Warn("graceful shutdown incomplete", zap.String("component", name), zap.Error(err))
	}
}

func Exit(code int) {
	os.Exit(code)
}
