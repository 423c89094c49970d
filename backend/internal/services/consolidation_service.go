package services

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"
	"graph-merge/backend/internal/export"
	"graph-merge/backend/internal/graph"
	"graph-merge/backend/internal/history"
	"graph-merge/backend/internal/merge"
	apperrors "graph-merge/backend/pkg/errors"
	"graph-merge/backend/pkg/logger"
)

// Options configures a ConsolidationService
type Options struct {
	// AnomalyThreshold enables pruning of hyperedge outliers at start-up.
	// Nil disables pruning.
	AnomalyThreshold *float64
	// HistoryLimit caps recorded steps; zero keeps every step
	HistoryLimit int
	// Logger defaults to the global "consolidation" logger
	Logger *zap.Logger
}

// ConsolidationService is the single writer over a graph store, its merge
// engine and its history. Every operation holds one mutex so a merge, a
// collapse and a history move never interleave.
type ConsolidationService struct {
	mu      sync.Mutex
	store   *graph.Store
	engine  *merge.Engine
	history *history.Manager
	pruned  []merge.PruneResult
	logger  *zap.Logger
}

// NewConsolidationService prepares store for consolidation: aggregate weights
// are computed, anomalies pruned when a threshold is set, and the resulting
// state becomes the base of history.
func NewConsolidationService(store *graph.Store, opts Options) (*ConsolidationService, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Named("consolidation")
	}

	if _, err := merge.AggregateWeights(store); err != nil {
		return nil, fmt.Errorf("failed to compute aggregate weights: %w", err)
	}

	var pruned []merge.PruneResult
	if opts.AnomalyThreshold != nil {
		var err error
		pruned, err = merge.PruneAnomalies(store, *opts.AnomalyThreshold)
		if err != nil {
			return nil, fmt.Errorf("failed to prune anomalies: %w", err)
		}
		log.Info("Hyperedge anomalies pruned",
			zap.Float64("threshold", *opts.AnomalyThreshold),
			zap.Int("hyperedges", len(pruned)),
		)
	}

	return &ConsolidationService{
		store:   store,
		engine:  merge.NewEngine(store, log.Named("merge")),
		history: history.NewManager(store, history.WithLimit(opts.HistoryLimit), history.WithLogger(log.Named("history"))),
		pruned:  pruned,
		logger:  log,
	}, nil
}

// Merge folds v1 and v2 into one vertex and records the step. It is refused
// while history is positioned behind its latest step.
func (s *ConsolidationService) Merge(v1, v2 string) (*history.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHead(); err != nil {
		return nil, err
	}
	step, err := s.engine.MergeVertex(v1, v2)
	if err != nil {
		return nil, err
	}
	if err := s.history.WriteStep(step); err != nil {
		return nil, err
	}
	return step, nil
}

// Collapse merges all members of a hyperedge and records every pairwise step
func (s *ConsolidationService) Collapse(hyperedgeID int64) (string, []*history.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHead(); err != nil {
		return "", nil, err
	}
	final, steps, err := s.engine.CollapseHyperedge(hyperedgeID)
	if err != nil {
		return "", nil, err
	}
	if err := s.record(steps); err != nil {
		return "", nil, err
	}
	return final, steps, nil
}

// CollapseAll collapses every hyperedge in ascending id order. Collapses
// completed before a failure stay applied and recorded.
func (s *ConsolidationService) CollapseAll() (map[int64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHead(); err != nil {
		return nil, err
	}
	results, steps, err := s.engine.CollapseAll()
	if recErr := s.record(steps); recErr != nil {
		return results, recErr
	}
	if err != nil {
		return results, err
	}

	s.logger.Info("All hyperedges collapsed",
		zap.Int("hyperedges", len(results)),
		zap.Int("merges", len(steps)),
	)
	return results, nil
}

// Next re-applies the following step
func (s *ConsolidationService) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Next()
}

// Prev undoes the current step
func (s *ConsolidationService) Prev() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Prev()
}

// Truncate drops the redo tail so new merges can be recorded
func (s *ConsolidationService) Truncate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Truncate()
}

// Position returns the history position and the number of recorded steps
func (s *ConsolidationService) Position() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Position(), s.history.Len()
}

// State returns a detached snapshot of the current graph
func (s *ConsolidationService) State() *graph.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.State()
}

// View returns the render-ready projection of the current graph
func (s *ConsolidationService) View() export.View {
	return export.Project(s.State())
}

// Steps lists the recorded history
func (s *ConsolidationService) Steps() []history.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Summaries()
}

// Pruned returns the anomaly pruning done at start-up
func (s *ConsolidationService) Pruned() []merge.PruneResult {
	return s.pruned
}

// Simulate performs up to n merges of randomly chosen vertex pairs drawn from
// rng. It stops early when fewer than two vertices remain and returns the
// steps it recorded.
func (s *ConsolidationService) Simulate(n int, rng *rand.Rand) ([]*history.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHead(); err != nil {
		return nil, err
	}

	var steps []*history.Step
	for i := 0; i < n; i++ {
		ids := s.store.VertexIDs()
		if len(ids) < 2 {
			break
		}
		a := rng.IntN(len(ids))
		b := rng.IntN(len(ids) - 1)
		if b >= a {
			b++
		}

		step, err := s.engine.MergeVertex(ids[a], ids[b])
		if err != nil {
			return steps, err
		}
		if err := s.history.WriteStep(step); err != nil {
			return steps, err
		}
		steps = append(steps, step)
	}

	s.logger.Info("Simulated merges", zap.Int("requested", n), zap.Int("performed", len(steps)))
	return steps, nil
}

func (s *ConsolidationService) checkHead() error {
	if !s.history.AtHead() {
		return apperrors.NewHistoryDiverged(s.history.Position(), s.history.Len()-1)
	}
	return nil
}

func (s *ConsolidationService) record(steps []*history.Step) error {
	for _, step := range steps {
		if err := s.history.WriteStep(step); err != nil {
			return err
		}
	}
	return nil
}
