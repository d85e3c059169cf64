package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/watchsync/internal/engine"
	"github.com/example/watchsync/internal/handlers"
	"github.com/example/watchsync/internal/platform/auth"
	"github.com/example/watchsync/internal/platform/config"
	"github.com/example/watchsync/internal/platform/httpserver"
	"github.com/example/watchsync/internal/platform/logging"
	"github.com/example/watchsync/internal/platform/metrics"
	"github.com/example/watchsync/internal/platform/natsconn"
	"github.com/example/watchsync/internal/platform/run"
	"github.com/example/watchsync/internal/progress"
	"github.com/example/watchsync/internal/remote"
	"github.com/example/watchsync/internal/session"
	"github.com/example/watchsync/internal/syncer"
	"github.com/example/watchsync/internal/worker"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	store, err := progress.OpenBolt(cfg.DBPath, cfg.Engine.MaxRecords, log)
	if err != nil {
		log.Error("open progress store", zap.String("path", cfg.DBPath), zap.Error(err))
		run.Exit(1)
	}

	client := remote.New(cfg.Remote.URL, cfg.Remote.Token)
	sched := syncer.New(store, client, log)
	eng := engine.New(engine.Config{
		Store:               store,
		Scheduler:           sched,
		Log:                 log,
		MinWatchSeconds:     cfg.Engine.MinWatchSeconds,
		CompletionThreshold: cfg.Engine.CompletionThreshold,
	})
	reg := session.NewRegistry(cfg.Engine.SessionTTL, time.Minute, log)

	rl := httpserver.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc:   store.Ping,
		Middlewares: []func(http.Handler) http.Handler{metrics.Middleware, rl.Middleware},
	})

	verifier := auth.JWTVerifier{Secret: cfg.JWTSecret}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("watchsync"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Post("/v1/sessions", handlers.OpenSession(reg, eng))
		r.Delete("/v1/sessions/{session_id}", handlers.CloseSession(reg))
		r.Post("/v1/sessions/{session_id}/events", handlers.IngestEvent(reg))
		r.Get("/v1/progress/resume", handlers.Resume(eng))
		r.Get("/v1/progress/continue", handlers.ContinueWatching(eng))
		r.Delete("/v1/progress", handlers.RemoveProgress(eng))
		r.Post("/v1/progress/reset-completion", handlers.ResetCompletion(eng))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier), auth.RequireAdmin)
		r.Route("/v1/admin", func(r chi.Router) {
			handlers.OpsHandler{Scheduler: sched, Registry: reg, Log: log}.Register(r)
		})
	})

	var nc *nats.Conn
	var cons *worker.Consumer
	if cfg.NATS.Enabled {
		nc, err = natsconn.Connect(natsconn.Options{Name: cfg.ServiceName})
		if err != nil {
			log.Error("nats connect", zap.Error(err))
			run.Exit(1)
		}
		cons, err = worker.NewConsumer(log, nc, reg, eng, cfg.NATS)
		if err != nil {
			log.Error("init surface consumer", zap.Error(err))
			run.Exit(1)
		}
	}

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, Handler: r, Logger: log})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if cons != nil {
			go func() {
				if err := cons.Run(ctx); err != nil {
					log.Error("surface consumer stopped", zap.Error(err))
				}
			}()
		}
		go func() {
			<-ctx.Done()
			runner.Graceful(5*time.Second, "http server", srv.Shutdown)
		}()
		return srv.Start()
	})

	// The local store is already durable; the exit flush is a best-effort
	// push of whatever the remote has not seen yet.
	runner.Graceful(cfg.Engine.FlushTimeout, "sync flush", sched.Shutdown)
	reg.Shutdown()
	if nc != nil {
		nc.Close()
	}
	if err := store.Close(); err != nil {
		log.Warn("close progress store", zap.Error(err))
	}

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
