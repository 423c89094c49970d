package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"graph-merge/backend/internal/export"
	"graph-merge/backend/internal/graph"
	"graph-merge/backend/internal/loader"
	"graph-merge/backend/internal/services"
	"graph-merge/backend/pkg/config"
	"graph-merge/backend/pkg/logger"
)

func main() {
	fixturePath := flag.String("fixture", "", "YAML fixture to consolidate (defaults to FIXTURE_PATH)")
	completenessPath := flag.String("completeness", "", "Optional YAML completeness scores (defaults to COMPLETENESS_PATH)")
	threshold := flag.Float64("threshold", -1, "Prune hyperedge anomalies above this excess weight; negative disables")
	simulate := flag.Int("simulate", 0, "Run this many random merges instead of collapsing hyperedges")
	seed := flag.Uint64("seed", 0, "Seed for -simulate (defaults to SIMULATION_SEED)")
	doExport := flag.Bool("export", false, "Write the consolidated graph to Neo4j")
	printView := flag.Bool("view", false, "Print the consolidated view as JSON")
	flag.Parse()

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
	log.Info("Starting consolidation...")

	if *fixturePath == "" {
		*fixturePath = cfg.FixturePath
	}
	if *completenessPath == "" {
		*completenessPath = cfg.CompletenessPath
	}
	if *fixturePath == "" {
		log.Fatal("No fixture given, use -fixture or FIXTURE_PATH")
	}
	if *seed == 0 {
		*seed = cfg.SimulationSeed
	}

	ctx := context.Background()
	fixture, err := loader.LoadFiles(ctx, *fixturePath, *completenessPath)
	if err != nil {
		log.Fatal("Failed to load fixture", zap.Error(err))
	}
	store := graph.NewStore()
	if err := fixture.Populate(store); err != nil {
		log.Fatal("Failed to populate graph", zap.Error(err))
	}

	opts := services.Options{HistoryLimit: cfg.HistoryLimit, Logger: log}
	if *threshold >= 0 {
		opts.AnomalyThreshold = threshold
	} else {
		opts.AnomalyThreshold = cfg.AnomalyThreshold
	}
	svc, err := services.NewConsolidationService(store, opts)
	if err != nil {
		log.Fatal("Failed to prepare graph", zap.Error(err))
	}
	for _, p := range svc.Pruned() {
		fmt.Printf("pruned hyperedge %d: removed %v (excess %.2f)\n", p.HyperedgeID, p.Removed, p.Excess)
	}

	if *simulate > 0 {
		steps, err := svc.Simulate(*simulate, rand.New(rand.NewPCG(*seed, *seed)))
		if err != nil {
			log.Error("Simulation stopped early", zap.Error(err))
		}
		fmt.Printf("simulated %d merges with seed %d\n", len(steps), *seed)
	} else {
		results, err := svc.CollapseAll()
		if err != nil {
			log.Error("Collapse stopped early", zap.Error(err))
		}
		for _, hid := range svc.State().HyperedgeIDs() {
			if final, ok := results[hid]; ok {
				fmt.Printf("hyperedge %d -> %s\n", hid, final)
			}
		}
	}

	vertices, edges, hyperedges := store.Counts()
	_, recorded := svc.Position()
	fmt.Printf("\nvertices: %d  edges: %d  hyperedges: %d  merges recorded: %d\n", vertices, edges, hyperedges, recorded)

	if *printView {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(svc.View()); err != nil {
			log.Fatal("Failed to encode view", zap.Error(err))
		}
	}

	if *doExport {
		runID, err := exportState(ctx, cfg, svc.State())
		if err != nil {
			log.Fatal("Export failed", zap.Error(err))
		}
		fmt.Printf("exported as run %s\n", runID)
	}

	log.Info("Consolidation completed")
}

func exportState(ctx context.Context, cfg *config.Config, st *graph.State) (string, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	repo := export.NewRepository(driver, cfg.Neo4jDatabase)
	defer repo.Close(context.Background())

	if err := repo.Ping(ctx); err != nil {
		return "", fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		return "", err
	}
	return repo.ExportState(ctx, st)
}
