package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chatsnip/chatsnip/internal/api"
	"github.com/chatsnip/chatsnip/internal/config"
	"github.com/chatsnip/chatsnip/internal/core"
	"github.com/chatsnip/chatsnip/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	logger, err := newLogger(config.AppConfig.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	// Outbound client for image retrieval; the core itself applies no
	// timeout, the transport does.
	imageClient := &http.Client{
		Timeout: time.Duration(config.AppConfig.ImageFetchTimeout) * time.Second,
	}
	imageService := core.NewImageService(dbStore, imageClient, config.AppConfig.MediaDir, logger)
	ingestService := core.NewIngestService(dbStore, imageService, logger)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(ingestService, dbStore, logger)
	router := api.NewRouter(apiHandler, config.AppConfig.MediaDir)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // Image retrieval blocks for its network round trip
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("Starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting gracefully")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "DEBUG" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
