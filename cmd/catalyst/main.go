package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/catalyst-ed/project-catalyst/internal/cache"
	corecfg "github.com/catalyst-ed/project-catalyst/internal/core/config"
	"github.com/catalyst-ed/project-catalyst/internal/core/storage/postgres"
	"github.com/catalyst-ed/project-catalyst/internal/migrations"
	"github.com/catalyst-ed/project-catalyst/internal/participation"
	"github.com/catalyst-ed/project-catalyst/internal/server"
)

func main() {
	configPath := flag.String("config", "catalyst.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"server_addr", fmtAddr(cfg.Server.Host, cfg.Server.Port),
		"cache_backend", cfg.Cache.Backend)

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	participantStore := postgres.NewParticipantAdapter(dbAdapter.DB())

	// 3. Initialize Cache
	cacheSvc, err := buildCache(cfg.Cache)
	if err != nil {
		slog.Error("Failed to initialize cache", "error", err)
		os.Exit(1)
	}
	if closer, ok := cacheSvc.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// 4. Initialize Participation engine
	participationSvc := participation.NewService(dbAdapter, participantStore, cacheSvc)

	// 5. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	participationSvc.RegisterRoutes(srv.Engine)

	// 6. Start
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func buildCache(cfg corecfg.CacheConfig) (cache.Service, error) {
	switch cfg.Backend {
	case "redis":
		ttl, err := cfg.ParsedTTL()
		if err != nil {
			return nil, err
		}
		return cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, ttl)
	default:
		return cache.NewMemory(), nil
	}
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
