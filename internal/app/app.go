package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ayl/features/quarantine"
	"ayl/features/stats"
	"ayl/internal/config"
	"ayl/internal/engine"
	"ayl/internal/message"
	"ayl/internal/middleware"
	"ayl/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Components are the wired domain services of one process.
type Components struct {
	Codec      *message.Codec
	Engine     *engine.Engine
	Loop       *worker.Loop
	Quarantine *quarantine.Service // nil unless the ledger is enabled
	Metrics    *prometheus.Registry
}

func Wire(cfg *config.Config, deps *Dependencies, handlers *message.Registry) *Components {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := worker.NewMetrics(reg)

	codec := message.NewCodec(handlers, cfg.DefaultPolicy())
	c := &Components{
		Codec:   codec,
		Engine:  engine.New(deps.Admin, codec, deps.Notifier, cfg.SubmitDefaults()),
		Metrics: reg,
	}

	opts := []worker.DisposerOption{
		worker.WithMetrics(metrics),
		worker.WithDefaultPolicy(cfg.DefaultPolicy()),
	}
	if deps.DB != nil {
		c.Quarantine = quarantine.NewService(quarantine.NewPostgresRepo(deps.DB), deps.Admin)
		opts = append(opts, worker.WithRecorder(c.Quarantine))
	}

	if deps.Consumer != nil {
		disposer := worker.NewDisposer(deps.Notifier, opts...)
		c.Loop = worker.NewLoop(deps.Consumer, codec, deps.Notifier, disposer, metrics)
	}
	return c
}

type App struct {
	Handler http.Handler
	port    int
}

func New(cfg *config.Config, c *Components) *App {
	mux := http.NewServeMux()

	mux.Handle("GET /health", middleware.CorrelationID(health(c.Engine)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(c.Metrics, promhttp.HandlerOpts{}))

	// leave the interface nil when the ledger is off
	var counter stats.QuarantineCounter
	if c.Quarantine != nil {
		counter = c.Quarantine
	}
	statsHandler := stats.NewHandler(cfg.QueueBackend, cfg.QueueName, c.Engine, counter)
	mux.Handle("GET /stats", middleware.CorrelationID(http.HandlerFunc(statsHandler.GetStats)))

	if c.Quarantine != nil {
		h := quarantine.NewHandler(c.Quarantine)
		mux.Handle("GET /jobs/quarantined", middleware.CorrelationID(http.HandlerFunc(h.List)))
		mux.Handle("POST /jobs/quarantined/{id}/retry", middleware.CorrelationID(http.HandlerFunc(h.Retry)))
	}

	return &App{Handler: mux, port: cfg.AdminPort}
}

func health(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if !eng.IsConnected(r.Context()) {
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(map[string]string{"status": status}); err != nil {
			slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
