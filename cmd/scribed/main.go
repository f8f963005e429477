package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/scribed/scribed/internal/api"
	"github.com/scribed/scribed/internal/cache"
	"github.com/scribed/scribed/internal/config"
	"github.com/scribed/scribed/internal/job"
	"github.com/scribed/scribed/internal/notify"
	"github.com/scribed/scribed/internal/provider"
	"github.com/scribed/scribed/internal/queue"
)

func main() {
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	store, err := openCache(cfg)
	if err != nil {
		slog.Error("cache", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	table := job.NewTable()
	client := provider.NewClient(cfg.ProviderURL, cfg.ProviderKey, cfg.ProviderModel, slog.Default())
	adapter := provider.NewAdapter(client, cfg.ProviderTimeout, cfg.MaxAttempts, cfg.RetryBaseDelay, slog.Default())
	notifier := notify.New(slog.Default())
	engine := queue.New(cfg, table, store, adapter, notifier, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	startProbe(ctx, cfg)

	if cfg.WatchDir != "" {
		if err := startWatcher(ctx, cfg, engine); err != nil {
			slog.Error("watcher", "dir", cfg.WatchDir, "error", err)
			os.Exit(1)
		}
	}

	mux := http.NewServeMux()
	h := api.NewHandler(engine, table)
	h.RegisterRoutes(mux)

	handler := api.Chain(mux,
		api.CORS(cfg.CORSOrigins),
		api.RequestID,
		api.Logging,
		api.RateLimit(cfg.RateLimitRPS),
		api.Auth(cfg.APIKeys),
	)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown", "error", err)
		}
		if err := engine.Shutdown(shutdownCtx); err != nil {
			slog.Error("engine shutdown", "error", err)
		}
		cancel()
	}()

	slog.Info("scribed listening", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// openCache picks the transcript cache backend: SQLite when a path is
// configured, in-memory otherwise.
func openCache(cfg *config.Config) (cache.Store, error) {
	if cfg.CacheDBPath == "" {
		return cache.NewMemory(), nil
	}
	return cache.NewSQLite(cfg.CacheDBPath)
}
