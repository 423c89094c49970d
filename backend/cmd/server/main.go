package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"graph-merge/backend/internal/api"
	"graph-merge/backend/internal/export"
	"graph-merge/backend/internal/graph"
	"graph-merge/backend/internal/loader"
	"graph-merge/backend/internal/services"
	"graph-merge/backend/pkg/config"
	"graph-merge/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	ctx := context.Background()
	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to prepare graph", zap.Error(err))
	}

	var exporter api.Exporter
	if cfg.ExportEnabled {
		repo, err := connectExporter(ctx, cfg)
		if err != nil {
			log.Fatal("Failed to connect to Neo4j", zap.Error(err))
		}
		defer repo.Close(context.Background())
		exporter = repo
	}

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.NewHandler(svc, exporter, log), log)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// buildService loads the configured fixture, if any, and wraps the resulting
// store in a consolidation service
func buildService(ctx context.Context, cfg *config.Config, log *zap.Logger) (*services.ConsolidationService, error) {
	store := graph.NewStore()
	if cfg.FixturePath != "" {
		fixture, err := loader.LoadFiles(ctx, cfg.FixturePath, cfg.CompletenessPath)
		if err != nil {
			return nil, err
		}
		if err := fixture.Populate(store); err != nil {
			return nil, fmt.Errorf("failed to populate graph: %w", err)
		}
	} else {
		log.Warn("No FIXTURE_PATH set, starting with an empty graph")
	}

	vertices, edges, hyperedges := store.Counts()
	log.Info("Graph ready",
		zap.Int("vertices", vertices),
		zap.Int("edges", edges),
		zap.Int("hyperedges", hyperedges),
	)

	return services.NewConsolidationService(store, services.Options{
		AnomalyThreshold: cfg.AnomalyThreshold,
		HistoryLimit:     cfg.HistoryLimit,
		Logger:           log,
	})
}

func connectExporter(ctx context.Context, cfg *config.Config) (*export.Repository, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	repo := export.NewRepository(driver, cfg.Neo4jDatabase)
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close(ctx)
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = repo.Close(ctx)
		return nil, err
	}
	return repo, nil
}
