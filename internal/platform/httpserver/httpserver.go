// Package httpserver carries the HTTP plumbing shared by the daemon's
// listeners: server lifecycle, router setup, request ids and rate
// limiting.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server wraps the stdlib server with the timeouts a long-lived local
// daemon wants: generous idle keep-alive for surfaces that heartbeat,
// strict header read so a stalled client cannot pin a connection.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

type Options struct {
	Addr    string
	Handler http.Handler
	Logger  *zap.Logger
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           opts.Handler,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		log: log,
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info("http listening", zap.String("addr", s.srv.Addr))
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
