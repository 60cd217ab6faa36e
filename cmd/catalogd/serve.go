package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/locallibrary/catalog/internal/config"
	"github.com/locallibrary/catalog/internal/db"
	"github.com/locallibrary/catalog/internal/events"
	grpcserver "github.com/locallibrary/catalog/internal/grpc"
	"github.com/locallibrary/catalog/internal/httpapi"
	"github.com/locallibrary/catalog/internal/metrics"
	"github.com/locallibrary/catalog/internal/repo"
	"github.com/locallibrary/catalog/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health service and event consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(config.Load(), skipMigrations)
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not migrate the schema on startup")
	return cmd
}

func serve(cfg *config.Config, skipMigrations bool) error {
	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	log.Info("Catalog service starting", zap.String("db_driver", cfg.DBDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Connecting to database...")
	database, err := db.Connect(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if !skipMigrations {
		log.Info("Running database migrations...")
		if err := db.RunMigrations(database); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	catalogRepo := repo.NewCatalogRepository(database, log)

	var publisher events.CatalogPublisher = events.NopPublisher{}
	if cfg.EventsEnabled {
		log.Info("Connecting to RabbitMQ")
		p, err := events.NewPublisher(cfg.RabbitMQURL, log)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		publisher = p

		consumer, err := events.NewConsumer(cfg.RabbitMQURL, cfg.ServiceName, catalogRepo, log)
		if err != nil {
			publisher.Close()
			return fmt.Errorf("failed to start consumer: %w", err)
		}
		defer consumer.Close()

		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Event consumer stopped", zap.Error(err))
			}
		}()
	} else {
		log.Warn("Event publishing disabled")
	}
	defer publisher.Close()

	grpcServer := grpcserver.NewServer(database, publisher, log)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port: %w", err)
	}

	api := httpapi.NewServer(database, catalogRepo, publisher, metrics.New(), log, httpapi.Options{
		RateLimit: cfg.RateLimitRPS,
		Burst:     cfg.RateLimitBurst,
	})
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      api.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     zap.NewStdLog(log),
	}

	serveErr := make(chan error, 2)

	go func() {
		log.Info("Starting gRPC server", zap.String("address", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			serveErr <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err = <-serveErr:
		log.Error("Server failed, shutting down", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	// Flush events of requests that completed before shutdown
	api.Close()

	log.Info("Server stopped")
	return err
}
