// Package main provides the entry point for kvstash-server.
//
// kvstash-server hosts a bounded key-value storage engine behind a
// Prometheus metrics endpoint. The engine itself is in-process; the
// server exists to own its lifecycle, configuration, and telemetry.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/nvialko/kvstash/internal/config"
	"github.com/nvialko/kvstash/internal/infra/buildinfo"
	"github.com/nvialko/kvstash/internal/infra/confloader"
	"github.com/nvialko/kvstash/internal/infra/shutdown"
	"github.com/nvialko/kvstash/internal/kv"
	"github.com/nvialko/kvstash/internal/kv/badgerkv"
	"github.com/nvialko/kvstash/internal/telemetry/logger"
	"github.com/nvialko/kvstash/internal/telemetry/metric"
	"github.com/nvialko/kvstash/pkg/crypto/adaptive"
)

func main() {
	app := &cli.App{
		Name:    "kvstash-server",
		Usage:   "bounded key-value storage engine",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	configFile := c.String("config")

	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	log.Info("starting kvstash-server",
		"version", buildinfo.Get().Version,
		"commit", buildinfo.Get().Commit,
		"config", configFile)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	store, err := buildStorage(cfg, registry, log)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	handler := shutdown.NewHandler(30 * time.Second)
	handler.OnShutdown(func(context.Context) error {
		return store.Close()
	})

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:    cfg.Metrics.Addr,
			Handler: metricsMux(registry),
		}
		go func() {
			log.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics endpoint failed", "error", err)
			}
		}()
		handler.OnShutdown(srv.Shutdown)
	}

	if configFile != "" {
		watcher, err := confloader.Watch(configFile, log, func() {
			reloadLogLevel(configFile, log)
		})
		if err != nil {
			log.Warn("config watcher unavailable", "error", err)
		} else {
			handler.OnShutdown(func(context.Context) error {
				return watcher.Close()
			})
		}
	}

	log.Info("storage ready",
		"name", store.Name(),
		"cache", cfg.Storage.Cache,
		"max_elements", cfg.Storage.MaxElements,
		"max_memory_bytes", cfg.Storage.MaxMemoryBytes,
		"backend", cfg.Storage.Backend.Enabled)

	return handler.Wait()
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	if err := confloader.New(opts...).Load(cfg); err != nil {
		return nil, err
	}
	config.Sanitize(cfg)
	if err := config.Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildStorage(cfg *config.Config, registry *prometheus.Registry, log *slog.Logger) (*kv.Storage, error) {
	cache, err := buildCache(cfg.Storage.Cache)
	if err != nil {
		return nil, err
	}

	var backend kv.Backend
	if cfg.Storage.Backend.Enabled {
		b, err := buildBackend(&cfg.Storage.Backend, cfg.Storage.Name, registry, log)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	return kv.New(
		cfg.Storage.ID,
		cfg.Storage.Name,
		cache,
		kv.NewLRUExpire(),
		backend,
		cfg.Storage.MaxElements,
		cfg.Storage.MaxMemoryBytes,
		kv.WithLogger(log),
		kv.WithMetrics(metric.NewStorage(registry, cfg.Storage.Name)),
	), nil
}

func buildCache(kind string) (kv.Cache, error) {
	switch kind {
	case "hash":
		return kv.NewHashCache(), nil
	case "radix":
		return kv.NewRadixCache(), nil
	case "trie":
		return kv.NewTrieCache(), nil
	}
	return nil, fmt.Errorf("unknown cache kind %q", kind)
}

func buildBackend(cfg *config.BackendSection, storageName string, registry *prometheus.Registry, log *slog.Logger) (*badgerkv.Backend, error) {
	bcfg := badgerkv.DefaultConfig(cfg.Dir)
	bcfg.QueueSize = cfg.QueueSize
	bcfg.SyncWrites = cfg.SyncWrites
	bcfg.GCInterval = cfg.GCInterval
	bcfg.FlushRate = cfg.FlushRateBytes
	bcfg.Logger = log
	bcfg.Metrics = metric.NewBackend(registry, storageName)

	if cfg.EncryptionKey != "" {
		key, err := adaptive.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		cipher, err := adaptive.New(key)
		if err != nil {
			return nil, err
		}
		bcfg.Cipher = cipher
	}

	return badgerkv.New(bcfg)
}

func metricsMux(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func reloadLogLevel(path string, log *slog.Logger) {
	cfg := config.Default()
	if err := confloader.New(confloader.WithConfigFile(path)).Load(cfg); err != nil {
		log.Warn("config reload failed", "error", err)
		return
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		log.Warn("config reload: bad log level", "error", err)
		return
	}
	log.Info("log level reloaded", "level", cfg.Log.Level)
}
