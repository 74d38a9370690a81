package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rkoval/playlink/internal/factory"
	redisstore "github.com/rkoval/playlink/internal/store/redis"
	"github.com/rkoval/playlink/internal/ws"
)

func main() {
	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	factoryConfig := factory.Config{
		Logger:    logger,
		StoreType: os.Getenv("STORE_TYPE"),
	}
	if factoryConfig.StoreType == factory.StoreTypeRedis {
		redisURL := os.Getenv("REDIS_URL")
		if redisURL == "" {
			logger.Error("REDIS_URL required when STORE_TYPE=redis")
			os.Exit(1)
		}
		cfg := redisstore.DefaultConfig()
		cfg.URL = redisURL
		factoryConfig.RedisConfig = &cfg
	}

	app, err := factory.New(factoryConfig)
	if err != nil {
		logger.Error("failed to wire application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = app.Close() }()

	serverConfig := ws.DefaultServerConfig()
	if host := os.Getenv("HOST"); host != "" {
		serverConfig.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			logger.Error("invalid PORT", slog.String("value", port))
			os.Exit(1)
		}
		serverConfig.Port = p
	}
	if path := os.Getenv("WS_PATH"); path != "" {
		serverConfig.Path = path
	}

	server := ws.NewServer(serverConfig, app.Players, app.Registry, app.Router, logger)

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started", slog.String("addr", server.Addr()))

	// Wait for shutdown or error
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}
