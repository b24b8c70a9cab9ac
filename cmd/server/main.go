package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"

	"github.com/rpattn/entityhistory/internal/app"
	"github.com/rpattn/entityhistory/internal/auth"
	"github.com/rpattn/entityhistory/internal/config"
	"github.com/rpattn/entityhistory/internal/db"
	"github.com/rpattn/entityhistory/internal/export"
	"github.com/rpattn/entityhistory/internal/metrics"
	"github.com/rpattn/entityhistory/internal/middleware"
	"github.com/rpattn/entityhistory/internal/repository"
	"github.com/rpattn/entityhistory/internal/snapshot"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.Default()

	cfg, found, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !found {
		log.Printf("No config.yaml in %s, using defaults and environment", *configPath)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(conn.Pool, logger); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	entitySchemaRepo := repository.NewEntitySchemaRepository(conn.Pool)
	entityRepo := repository.NewEntityRepository(conn.Pool)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	snapshotMetrics := metrics.NewSnapshotMetrics(registry)

	// Register one snapshotter per entity type
	catalog := app.NewCatalog(
		snapshot.NewManager(),
		entitySchemaRepo,
		app.PostgresBinder(conn.Pool, cfg.Snapshot, logger, snapshotMetrics),
	)
	if err := catalog.Refresh(ctx); err != nil {
		log.Fatalf("Failed to register entity types: %v", err)
	}

	exportService := export.NewService(catalog)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	snapshotHandler := middleware.LoggingMiddleware(logger)(
		auth.ScopeMiddleware(
			middleware.DataLoaderMiddleware(entityRepo, cfg.Snapshot.BatchWait)(export.NewHTTPHandler(exportService, logger)),
		),
	)

	mux := http.NewServeMux()
	mux.Handle("/snapshots/", corsHandler.Handler(snapshotHandler))
	mux.Handle("/metrics", metrics.Handler(registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := conn.Pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting snapshot server on %s", cfg.Server.Addr)
		log.Printf("Snapshots available at /snapshots/{entityType}/{id}, metrics at /metrics")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
