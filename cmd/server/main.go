package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/logger"
)

// @title Docforge API
// @version 1.0
// @description Multi-tenant document processing: PDF encryption, compression, image and table extraction, OCR
// @description
// @description Features:
// @description - Tiered rate limits and daily operation quotas
// @description - Single-output results returned inline, multi-file results as one-time zip downloads
// @description - Live process output over WebSockets

// @contact.name API Support
// @contact.url https://codeberg.org/docforge/server

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token for authenticated requests. Format: Bearer {token}

func main() {
	cfg, err := config.LoadEnvironmentVariables()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	logger.Configure(cfg.Environment, os.Stdout)
	logger.Info("starting docforge server", "environment", cfg.Environment)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	srv, err := NewServer(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		// a synchronous operation holds the response open until the process exits
		WriteTimeout: cfg.InvokeTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	go srv.hub.Run()
	go srv.sweeper.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	stop()

	// notify progress subscribers and close their connections first
	srv.hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	srv.Close()

	logger.Info("server stopped")
}
