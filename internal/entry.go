// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/jamesgiroux/dayos/internal/api"
	"github.com/jamesgiroux/dayos/internal/enrich"
	"github.com/jamesgiroux/dayos/internal/entityservice"
	"github.com/jamesgiroux/dayos/internal/intel"
	"github.com/jamesgiroux/dayos/internal/mcpserver"
	"github.com/jamesgiroux/dayos/internal/mirror"
	"github.com/jamesgiroux/dayos/internal/models"
	"github.com/jamesgiroux/dayos/internal/narrative"
	"github.com/jamesgiroux/dayos/internal/slug"
	"github.com/jamesgiroux/dayos/internal/sse"
	"github.com/jamesgiroux/dayos/internal/syncengine"
	"github.com/jamesgiroux/dayos/internal/workspace"
)

// system is the wired component graph shared by every command.
type system struct {
	cfg    *Config
	logger *slog.Logger
	ws     *workspace.Store
	db     *mirror.DB
	intel  *intel.Store
	engine *syncengine.Engine
	svc    *entityservice.Service
	orch   *enrich.Orchestrator
}

func (s *system) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("close mirror", slog.String("error", err.Error()))
	}
}

func buildConfig(opts []Option) (*Config, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app.config, nil
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// newSystem builds the component graph from configuration.
func newSystem(cfg *Config, logger *slog.Logger) (*system, error) {
	if err := os.MkdirAll(cfg.Workspace.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}

	ws, err := workspace.New(cfg.Workspace.Path)
	if err != nil {
		return nil, fmt.Errorf("init workspace: %w", err)
	}

	db, err := mirror.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init mirror: %w", err)
	}

	intelStore := intel.NewStore(ws, logger)
	regen := narrative.NewRegenerator(ws, intelStore, db, logger)
	engine := syncengine.New(ws, db, regen, logger)
	svc := entityservice.NewService(ws, db, engine, regen, logger)
	invoker := &enrich.CommandInvoker{
		Argv:    cfg.Enrich.Command,
		Timeout: cfg.Enrich.Timeout(),
	}
	orch := enrich.New(ws, db, intelStore, regen, invoker, cfg.Enrich.ContextBudget, logger)

	return &system{
		cfg:    cfg,
		logger: logger,
		ws:     ws,
		db:     db,
		intel:  intelStore,
		engine: engine,
		svc:    svc,
		orch:   orch,
	}, nil
}

// Run starts the HTTP server, the file watcher, and the SSE broker, and
// blocks until the context is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	cfg, err := buildConfig(opts)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_path", cfg.Workspace.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	sys, err := newSystem(cfg, logger)
	if err != nil {
		return err
	}
	defer sys.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Converge the mirror with whatever changed while the server was down.
	if _, err := sys.engine.ScanAll(ctx); err != nil {
		logger.Warn("initial scan failed", slog.String("error", err.Error()))
	}

	// SSE broker fans entity lifecycle events out to connected clients.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	sys.engine.OnEvent = broker.PublishEntityEvent
	sys.orch.OnEnriched = broker.PublishEnriched

	apiRouter := api.NewRouter(sys.svc, sys.orch, sys.engine,
		cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api. The SSE endpoint lives inside the API
	// router so it shares the auth middleware.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the workspace for out-of-band edits.
	g.Go(func() error {
		if err := sys.engine.Watch(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watcher error: %w", err)
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Shut the HTTP server down once the context ends, whether from a
	// signal, a caller cancel, or a sibling goroutine's failure.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunScan reconciles the whole workspace once and prints the report to
// stdout as JSON.
func RunScan(ctx context.Context, opts ...Option) error {
	cfg, err := buildConfig(opts)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	sys, err := newSystem(cfg, logger)
	if err != nil {
		return err
	}
	defer sys.Close()

	report, err := sys.engine.ScanAll(ctx)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
	return nil
}

// RunEnrich enriches one entity (target "kind/slug") or, with all set, every
// entity in the workspace, and prints the outcome to stdout as JSON.
func RunEnrich(ctx context.Context, target string, all, force bool, opts ...Option) error {
	cfg, err := buildConfig(opts)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	sys, err := newSystem(cfg, logger)
	if err != nil {
		return err
	}
	defer sys.Close()

	if all {
		batch, err := sys.orch.EnrichAll(ctx, force)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(batch, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	kindArg, slugArg, ok := strings.Cut(target, "/")
	if !ok {
		return fmt.Errorf("enrich target must be kind/slug, got %q", target)
	}
	kind, err := models.ParseKind(kindArg)
	if err != nil {
		return err
	}
	if !slug.Valid(slugArg) {
		return fmt.Errorf("invalid slug %q", slugArg)
	}

	res, err := sys.orch.Enrich(ctx, models.Key{Kind: kind, Slug: slugArg}, force)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	return nil
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr so the protocol
// stream on stdout stays clean.
func RunMCP(ctx context.Context, opts ...Option) error {
	cfg, err := buildConfig(opts)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	sys, err := newSystem(cfg, logger)
	if err != nil {
		return err
	}
	defer sys.Close()

	// Converge before serving so tools see current state.
	if _, err := sys.engine.ScanAll(ctx); err != nil {
		logger.Warn("initial scan failed", slog.String("error", err.Error()))
	}

	srv := mcpserver.New(sys.svc, sys.intel, sys.orch)
	logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}
