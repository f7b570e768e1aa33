// Command lsmkv-server runs the REST API over one storage engine.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pmoura/lsmkv/pkg/api"
	"github.com/pmoura/lsmkv/pkg/auth"
	"github.com/pmoura/lsmkv/pkg/config"
	"github.com/pmoura/lsmkv/pkg/features"
	"github.com/pmoura/lsmkv/pkg/logging"
	"github.com/pmoura/lsmkv/pkg/lsm"
	"github.com/pmoura/lsmkv/pkg/metrics"
	"github.com/pmoura/lsmkv/pkg/server"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.Log.Level))

	engine, err := lsm.Open(cfg.Engine, logger)
	if err != nil {
		logger.Error("failed to open engine", logging.Error(err))
		os.Exit(1)
	}
	defer engine.Close()

	var authManager *auth.Manager
	if cfg.Auth.Enabled {
		authManager, err = auth.NewManager(cfg.Auth.SigningSecret, cfg.Auth.TokenTTL())
		if err != nil {
			logger.Error("failed to configure auth", logging.Error(err))
			os.Exit(1)
		}
	}

	registry := metrics.NewRegistry()
	engine.SetMetrics(registry)
	go pollEngineStats(engine, registry)

	apiServer := api.NewServer(api.Options{
		Engine:        engine,
		Features:      features.NewClient(engine, cfg.Server.FeatureCacheTTL()),
		Auth:          authManager,
		APISecretHash: cfg.Auth.APISecretHash,
		Metrics:       registry,
		Logger:        logger,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		Version:       version,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting lsmkv server",
		logging.String("addr", addr),
		logging.String("data_dir", cfg.Engine.DataDir),
		logging.Bool("auth", cfg.Auth.Enabled))

	srv := server.NewGracefulServer(addr, apiServer.Handler(), cfg.Server.ShutdownTimeout())
	if err := srv.Start(); err != nil {
		logger.Error("server failed", logging.Error(err))
		os.Exit(1)
	}

	if err := engine.Flush(); err != nil {
		logger.Warn("final flush failed", logging.Error(err))
	}
	logger.Info("server stopped")
}

// pollEngineStats republishes engine gauges every few seconds.
func pollEngineStats(engine *lsm.Engine, registry *metrics.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		registry.UpdateEngineStats(engine.Stats())
	}
}
