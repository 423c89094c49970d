package history

import (
	"fmt"

	"go.uber.org/zap"
	"graph-merge/backend/internal/graph"
	apperrors "graph-merge/backend/pkg/errors"
	"graph-merge/backend/pkg/logger"
)

// AtBase is the position of a manager that has no step applied
const AtBase = -1

// Manager records merges as reversible steps and moves the live store
// backwards and forwards through them.
//
// The base state is captured once at construction. Position AtBase means no
// step is applied; position k means steps 0..k are applied. Stepping back from
// step 0 rebuilds the store from the base snapshot; every other move applies
// the recorded diff of a single step.
type Manager struct {
	store   *graph.Store
	base    *graph.State
	steps   []*Step
	current int
	limit   int
	logger  *zap.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithLimit caps the number of recorded steps. When the cap is exceeded the
// oldest step is folded into the base state. Zero means unbounded.
func WithLimit(limit int) Option {
	return func(m *Manager) { m.limit = limit }
}

// WithLogger overrides the component logger
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.logger = log }
}

// NewManager captures the current state of store as the base state
func NewManager(store *graph.Store, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		base:    store.State(),
		current: AtBase,
		logger:  logger.Named("history"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WriteStep appends a step recorded right after a successful merge and makes
// it current. Writing while positioned behind the latest step is rejected.
func (m *Manager) WriteStep(step *Step) error {
	if step == nil {
		return apperrors.NewInvariantViolation("history step must not be nil")
	}
	if !m.AtHead() {
		return apperrors.NewHistoryDiverged(m.current, len(m.steps)-1)
	}

	m.steps = append(m.steps, step.Clone())
	m.current = len(m.steps) - 1

	if err := m.enforceLimit(); err != nil {
		return err
	}

	m.logger.Debug("History step written",
		zap.String("step_id", step.ID),
		zap.String("result", step.Result.ID),
		zap.Int("position", m.current),
	)
	return nil
}

// Next re-applies the step after the current position
func (m *Manager) Next() error {
	if m.current >= len(m.steps)-1 {
		return apperrors.NewExhaustedHistory("next", m.current)
	}

	step := m.steps[m.current+1]
	if err := m.store.Update(func(tx *graph.Tx) error { return applyForward(tx, step) }); err != nil {
		return fmt.Errorf("replay step %s: %w", step.ID, err)
	}
	m.current++

	m.logger.Debug("History moved forward",
		zap.Int("position", m.current),
		zap.String("result", step.Result.ID),
	)
	return nil
}

// Prev undoes the current step
func (m *Manager) Prev() error {
	if m.current == AtBase {
		return apperrors.NewExhaustedHistory("prev", m.current)
	}

	if m.current == 0 {
		m.store.Restore(m.base)
		m.current = AtBase
		m.logger.Debug("History returned to base state")
		return nil
	}

	step := m.steps[m.current]
	if err := m.store.Update(func(tx *graph.Tx) error { return applyBackward(tx, step) }); err != nil {
		return fmt.Errorf("undo step %s: %w", step.ID, err)
	}
	m.current--

	m.logger.Debug("History moved back",
		zap.Int("position", m.current),
		zap.String("undone", step.Result.ID),
	)
	return nil
}

// Truncate drops every step after the current position and returns how many
// were dropped
func (m *Manager) Truncate() int {
	dropped := len(m.steps) - 1 - m.current
	if dropped <= 0 {
		return 0
	}
	m.steps = m.steps[:m.current+1]
	m.logger.Info("History truncated", zap.Int("dropped", dropped), zap.Int("position", m.current))
	return dropped
}

// Position returns the current position, AtBase when no step is applied
func (m *Manager) Position() int {
	return m.current
}

// Len returns the number of recorded steps
func (m *Manager) Len() int {
	return len(m.steps)
}

// AtHead reports whether the latest recorded step is applied (or there are none)
func (m *Manager) AtHead() bool {
	return m.current == len(m.steps)-1
}

// Step returns a copy of the step at index i
func (m *Manager) Step(i int) (*Step, bool) {
	if i < 0 || i >= len(m.steps) {
		return nil, false
	}
	return m.steps[i].Clone(), true
}

// Summaries lists all recorded steps
func (m *Manager) Summaries() []Summary {
	out := make([]Summary, 0, len(m.steps))
	for i, s := range m.steps {
		out = append(out, Summary{
			Index:        i,
			ID:           s.ID,
			CreatedAt:    s.CreatedAt,
			Result:       s.Result.ID,
			Predecessors: [2]string{s.Predecessor1.ID, s.Predecessor2.ID},
			AddedEdges:   len(s.AddedEdges),
			RemovedEdges: len(s.RemovedEdges),
			Current:      i == m.current,
		})
	}
	return out
}

// Base returns a copy of the base state
func (m *Manager) Base() *graph.State {
	return m.base.Clone()
}

func (m *Manager) enforceLimit() error {
	for m.limit > 0 && len(m.steps) > m.limit {
		oldest := m.steps[0]
		scratch := graph.NewStoreFromState(m.base, graph.WithLogger(m.logger))
		if err := scratch.Update(func(tx *graph.Tx) error { return applyForward(tx, oldest) }); err != nil {
			return fmt.Errorf("fold step %s into base: %w", oldest.ID, err)
		}
		m.base = scratch.State()
		m.steps = m.steps[1:]
		m.current--

		m.logger.Debug("History step folded into base", zap.String("step_id", oldest.ID))
	}
	return nil
}

// applyForward replays a merge on a store positioned just before it
func applyForward(tx *graph.Tx, s *Step) error {
	for _, p := range []*graph.Vertex{s.Predecessor1, s.Predecessor2} {
		if !tx.HasVertex(p.ID) {
			return apperrors.NewNotFound("vertex", p.ID)
		}
	}
	if err := tx.AddVertex(s.Result); err != nil {
		return err
	}
	for _, e := range s.RemovedEdges {
		if !tx.RemoveEdge(e.ID) {
			return apperrors.NewNotFound("edge", fmt.Sprint(e.ID))
		}
	}
	for _, e := range s.AddedEdges {
		if _, err := tx.AddEdge(e); err != nil {
			return err
		}
	}
	for _, mc := range s.Memberships {
		if err := tx.SetHyperedgeMembers(mc.HyperedgeID, mc.After); err != nil {
			return err
		}
	}
	if err := tx.RemoveVertex(s.Predecessor1.ID); err != nil {
		return err
	}
	return tx.RemoveVertex(s.Predecessor2.ID)
}

// applyBackward undoes a merge on a store positioned just after it
func applyBackward(tx *graph.Tx, s *Step) error {
	if !tx.HasVertex(s.Result.ID) {
		return apperrors.NewNotFound("vertex", s.Result.ID)
	}
	for _, p := range []*graph.Vertex{s.Predecessor1, s.Predecessor2} {
		if err := tx.AddVertex(p); err != nil {
			return err
		}
	}
	for _, e := range s.AddedEdges {
		if !tx.RemoveEdge(e.ID) {
			return apperrors.NewNotFound("edge", fmt.Sprint(e.ID))
		}
	}
	for _, e := range s.RemovedEdges {
		if _, err := tx.AddEdge(e); err != nil {
			return err
		}
	}
	for _, mc := range s.Memberships {
		if err := tx.SetHyperedgeMembers(mc.HyperedgeID, mc.Before); err != nil {
			return err
		}
	}
	return tx.RemoveVertex(s.Result.ID)
}
