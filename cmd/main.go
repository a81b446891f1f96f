package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/l0p7/newsedge/internal/access"
	"github.com/l0p7/newsedge/internal/config"
	"github.com/l0p7/newsedge/internal/content"
	"github.com/l0p7/newsedge/internal/kv"
	"github.com/l0p7/newsedge/internal/logging"
	"github.com/l0p7/newsedge/internal/metrics"
	"github.com/l0p7/newsedge/internal/offline"
	"github.com/l0p7/newsedge/internal/server"
)

const shutdownTimeout = 5 * time.Second

type configLoader interface {
	Load(context.Context) (config.Config, error)
}

type runnableServer interface {
	Run(context.Context) error
}

var (
	newConfigLoader = func(envPrefix, configFile string) configLoader {
		return config.NewLoader(envPrefix, configFile)
	}
	newHTTPServer = func(cfg config.Config, logger *slog.Logger, handler http.Handler) (runnableServer, error) {
		return server.New(cfg, logger, handler)
	}
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "NEWSEDGE", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *envPrefix, *configFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envPrefix, configFile string) error {
	cfg, err := newConfigLoader(envPrefix, configFile).Load(ctx)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	recorder := metrics.NewRecorder(prometheus.NewRegistry())
	store := buildStore(logger.With(slog.String("agent", "store_factory")), cfg.Storage)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error("store shutdown failed", slog.Any("error", err))
		}
	}()

	worker, err := offline.New(offline.Config{
		Settings: cfg.Worker,
		Store:    store,
		Logger:   logger,
		Metrics:  recorder,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := worker.Close(closeCtx); err != nil {
			logger.Error("worker shutdown failed", slog.Any("error", err))
		}
	}()
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	if path := strings.TrimSpace(cfg.Worker.ManifestFile); path != "" {
		watcher, err := config.WatchManifest(ctx, path, func(assets []string) {
			if err := worker.UpdatePrecache(ctx, assets); err != nil {
				logger.Error("precache refresh failed", slog.Any("error", err))
			}
		}, func(err error) {
			logger.Error("manifest watcher error", slog.Any("error", err))
		})
		if err != nil {
			logger.Error("manifest watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	resolver, err := access.NewResolver(access.Options{
		Settings: cfg.Access,
		Store:    store,
		Logger:   logger,
		Metrics:  recorder,
	})
	if err != nil {
		return err
	}
	defer resolver.Close()

	handler, err := server.NewHandler(server.Dependencies{
		Config:   cfg,
		Worker:   worker,
		Resolver: resolver,
		Content:  content.NewMemory(nil),
		Metrics:  recorder,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	srv, err := newHTTPServer(cfg, logger, handler)
	if err != nil {
		return fmt.Errorf("construct server: %w", err)
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server terminated: %w", err)
	}

	logger.Info("server shutdown complete")
	return nil
}

// buildStore opens the configured backend and falls back to memory when it
// cannot be reached, so the portal still serves with a cold cache.
func buildStore(logger *slog.Logger, cfg config.StorageConfig) kv.Store {
	switch strings.TrimSpace(strings.ToLower(cfg.Backend)) {
	case "", "memory":
		logger.Info("using memory store")
		return kv.NewMemory()
	case "bolt":
		store, err := kv.NewBolt(cfg.Bolt.Path)
		if err != nil {
			logger.Error("bolt store initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory store")
			return kv.NewMemory()
		}
		logger.Info("using bolt store", slog.String("path", cfg.Bolt.Path))
		return store
	case "redis":
		store, err := kv.NewRedis(kv.RedisConfig{
			Address:   cfg.Redis.Address,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TLS: kv.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		})
		if err != nil {
			logger.Error("redis store initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory store")
			return kv.NewMemory()
		}
		logger.Info("using redis store", slog.String("address", cfg.Redis.Address))
		return store
	default:
		logger.Warn("unsupported storage backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return kv.NewMemory()
	}
}
