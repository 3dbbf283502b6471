package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/gravitas-games/stationhost/internal/audit"
	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/config"
	"github.com/gravitas-games/stationhost/internal/dispatch"
	"github.com/gravitas-games/stationhost/internal/server"
	"github.com/gravitas-games/stationhost/internal/storage"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to server.yaml (default $CONFIG_PATH or ./configs/server.yaml)")
	debug := pflag.Bool("debug", false, "log rejected requests")
	pflag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(resolveConfigPath(*configPath), logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "./configs/server.yaml"
}

func run(configPath string, logger *slog.Logger) error {
	logger.Info("starting stationhost")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Info("configuration loaded", "path", configPath, "host", cfg.Server.Host, "port", cfg.Server.Port)

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	logger.Info("catalog loaded", "path", cfg.Catalog.Path, "recipes", cat.Recipes.Count(), "stations", len(cat.Items.Stations()))

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer db.Close()

	var auditor dispatch.Auditor = audit.Discard{}
	if cfg.Audit.Enabled {
		log := audit.NewLog(cfg.Audit.Dir)
		defer log.Close()
		auditor = log
		logger.Info("auditing outcomes", "dir", cfg.Audit.Dir)
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithAuditor(auditor),
		server.WithPersistence(db),
	}
	if cfg.JWT.PublicKeyFile != "" {
		pemData, err := os.ReadFile(cfg.JWT.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("failed to read public key: %w", err)
		}
		key, err := server.ParsePublicKey(pemData)
		if err != nil {
			return fmt.Errorf("failed to parse public key: %w", err)
		}
		opts = append(opts, server.WithPublicKey(key, nil))
		logger.Info("using pinned public key", "path", cfg.JWT.PublicKeyFile)
	}

	srv, err := server.New(cfg, cat, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := srv.Start(addr); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		_ = srv.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	if err := srv.Shutdown(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
