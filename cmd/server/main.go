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
	"syscall"

	"github.com/iconidentify/tokrelay/internal/api"
	"github.com/iconidentify/tokrelay/internal/api/handler"
	"github.com/iconidentify/tokrelay/internal/config"
	"github.com/iconidentify/tokrelay/internal/extractor"
	"github.com/iconidentify/tokrelay/internal/relay"
	"github.com/iconidentify/tokrelay/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tokrelay %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootstrapLogger().Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logCloser := newLogger(cfg.Log, os.Stdout)
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting tokrelay",
		"version", Version,
		"build_time", BuildTime,
		"ytdlp", cfg.Extractor.BinaryPath,
		"relay_timeout", cfg.Relay.Timeout,
	)

	// Initialize dependencies
	ytdlp := extractor.NewYTDLP(cfg.Extractor, logger)
	rl := relay.New(cfg.Relay, logger)
	streamSvc := service.NewStreamService(ytdlp, rl, cfg.Extractor, cfg.Relay, logger)

	// Initialize handlers
	streamHandler := handler.NewStreamHandler(streamSvc, logger)
	healthHandler := handler.NewHealthHandler(rl)

	// Setup router
	router := api.NewRouter(streamHandler, healthHandler, cfg.Server.APIKey, logger)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		logCloser.Close()
		os.Exit(1)
	}

	// Graceful shutdown; in-flight streams get until the deadline to finish.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err, "active_streams", rl.Stats().Active)
	}

	logger.Info("shutdown complete", "streams", rl.Stats())
}
