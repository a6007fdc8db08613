package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	tfhttp "github.com/Strob0t/TrackForge/internal/adapter/http"
	"github.com/Strob0t/TrackForge/internal/adapter/mcp"
	tfnats "github.com/Strob0t/TrackForge/internal/adapter/nats"
	"github.com/Strob0t/TrackForge/internal/adapter/natskv"
	"github.com/Strob0t/TrackForge/internal/adapter/natsobj"
	tfotel "github.com/Strob0t/TrackForge/internal/adapter/otel"
	"github.com/Strob0t/TrackForge/internal/adapter/postgres"
	"github.com/Strob0t/TrackForge/internal/adapter/ristretto"
	"github.com/Strob0t/TrackForge/internal/adapter/tiered"
	"github.com/Strob0t/TrackForge/internal/adapter/ws"
	"github.com/Strob0t/TrackForge/internal/config"
	"github.com/Strob0t/TrackForge/internal/domain/activity"
	"github.com/Strob0t/TrackForge/internal/domain/task"
	"github.com/Strob0t/TrackForge/internal/logger"
	"github.com/Strob0t/TrackForge/internal/middleware"
	"github.com/Strob0t/TrackForge/internal/resilience"
	"github.com/Strob0t/TrackForge/internal/service"
	"github.com/Strob0t/TrackForge/internal/workpool"
)

const version = "0.1.0"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	var err error
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		err = runAdmin(os.Args[2:])
	} else {
		err = run(os.Args[1:])
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, cfgPath)

	lg, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(lg)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Telemetry ---

	shutdownOTEL, err := tfotel.Setup(ctx, cfg.OTEL, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := tfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := tfnats.Connect(ctx, cfg.NATS.URL, tfnats.WithStream(cfg.NATS.Stream))
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("cache bucket: %w", err)
	}
	objects, err := queue.ObjectStore(ctx, cfg.Attachments.Bucket, 0)
	if err != nil {
		return fmt.Errorf("attachment bucket: %w", err)
	}

	// Cache: in-process L1 in front of the shared KV bucket
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	shared := tiered.New(l1, natskv.New(kv), cfg.Cache.L1TTL)

	// --- Services ---

	loc, err := cfg.Tasks.Location()
	if err != nil {
		return fmt.Errorf("calendar timezone: %w", err)
	}
	hub := ws.NewHub(cfg.Server.CORSOrigin, nil)
	store := postgres.NewStore(pool)
	recorder := activity.NewRecorder(nil)

	taskSvc := service.NewTaskService(store, queue, hub, task.NewDetector(loc), recorder)
	taskSvc.SetCache(shared, cfg.Cache.L2TTL)
	taskSvc.SetMetrics(metrics)
	taskSvc.SetMaxCommentLength(cfg.Tasks.MaxCommentLength)

	stopInvalidation, err := taskSvc.StartInvalidation(ctx)
	if err != nil {
		return fmt.Errorf("cache invalidation: %w", err)
	}
	defer stopInvalidation()

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout).
		Named("blobstore").
		Ignoring(context.Canceled)
	attachmentSvc := service.NewAttachmentService(
		store, natsobj.New(objects), queue, hub, shared,
		workpool.NewPool(cfg.Attachments.MaxConcurrent), breaker, recorder,
		service.AttachmentConfig{
			MaxSize:       cfg.Attachments.MaxSizeMB << 20,
			UploadTimeout: cfg.Attachments.UploadTimeout,
			ResultTTL:     cfg.Attachments.ResultTTL,
		},
	)
	attachmentSvc.SetMetrics(metrics)

	// --- HTTP ---

	handlers := &tfhttp.Handlers{
		Tasks:          taskSvc,
		Attachments:    attachmentSvc,
		MaxUploadBytes: cfg.Attachments.MaxSizeMB<<20 + 1<<20,
		Checks: []tfhttp.HealthCheck{
			{Name: "postgres", Check: pool.Ping},
			{Name: "nats", Check: func(context.Context) error {
				if !queue.IsConnected() {
					return errors.New("disconnected")
				}
				return nil
			}},
		},
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)

	r := chi.NewRouter()

	r.Use(tfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(tfhttp.Logger)
	r.Use(tfotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(tfhttp.SecurityHeaders)

	// WebSocket connections outlive the request timeout below.
	r.Get("/ws", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		tfhttp.MountRoutes(r, handlers, tfhttp.Guards{
			Limiter:        limiter,
			Idempotency:    shared,
			IdempotencyTTL: cfg.Server.IdempotencyTTL,
		})
	})

	var mcpServer *mcp.Server
	if cfg.MCP.Enabled {
		mcpServer = mcp.NewServer(mcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    "trackforge",
			Version: version,
			APIKey:  func() string { return holder.Get().MCP.APIKey },
		}, mcp.ServerDeps{Tasks: taskSvc, Attachments: attachmentSvc})
		if err := mcpServer.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
	}

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			done <- syscall.SIGTERM
		}
	}()

wait:
	for {
		select {
		case <-reload:
			if err := holder.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
				continue
			}
			logger.SetLevel(holder.Get().Logging.Level)
			slog.Info("config reloaded", "log_level", holder.Get().Logging.Level)
		case <-done:
			break wait
		}
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	if mcpServer != nil {
		if mErr := mcpServer.Stop(shutdownCtx); mErr != nil {
			slog.Warn("mcp shutdown", "error", mErr)
		}
	}
	// In-flight uploads settle before the queue goes away.
	attachmentSvc.Wait()
	stop()
	if dErr := queue.Drain(); dErr != nil {
		slog.Warn("nats drain", "error", dErr)
	}
	return err
}
