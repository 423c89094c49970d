package graph

import (
	"slices"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"graph-merge/backend/pkg/logger"
)

// Store owns the authoritative vertex, edge and hyperedge collections.
//
// All cross references are ids. Every mutation keeps Vertex.EdgeIDs and
// Vertex.HyperedgeIDs consistent with the edges and hyperedges that reference
// the vertex. Mutations are grouped with Update, which holds the write lock for
// the whole unit and rolls back on error, so readers never observe a partial
// change.
type Store struct {
	mu              sync.RWMutex
	vertices        map[string]*Vertex
	edges           map[int64]*Edge
	hyperedges      map[int64]*Hyperedge
	nextEdgeID      int64
	nextHyperedgeID int64
	logger          *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLogger overrides the component logger
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.logger = log }
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		vertices:        make(map[string]*Vertex),
		edges:           make(map[int64]*Edge),
		hyperedges:      make(map[int64]*Hyperedge),
		nextEdgeID:      1,
		nextHyperedgeID: 1,
		logger:          logger.Named("graph"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStoreFromState creates a store holding a copy of st
func NewStoreFromState(st *State, opts ...Option) *Store {
	s := NewStore(opts...)
	s.Restore(st)
	return s
}

// Update runs fn as one atomic unit under the write lock. If fn returns an
// error every mutation it made is undone before Update returns.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{store: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// ============================================================================
// Single-operation wrappers
// ============================================================================

// AddVertex inserts a vertex. It fails with ErrDuplicateID if the id exists.
func (s *Store) AddVertex(v *Vertex) error {
	return s.Update(func(tx *Tx) error { return tx.AddVertex(v) })
}

// RemoveVertex deletes a vertex and its incident edges. Absent ids are a no-op.
func (s *Store) RemoveVertex(id string) error {
	return s.Update(func(tx *Tx) error { return tx.RemoveVertex(id) })
}

// AddEdge inserts an edge and returns it with its assigned id
func (s *Store) AddEdge(e Edge) (Edge, error) {
	var added Edge
	err := s.Update(func(tx *Tx) error {
		var err error
		added, err = tx.AddEdge(e)
		return err
	})
	return added, err
}

// RemoveEdge deletes an edge, reporting whether it existed
func (s *Store) RemoveEdge(id int64) bool {
	var removed bool
	_ = s.Update(func(tx *Tx) error {
		removed = tx.RemoveEdge(id)
		return nil
	})
	return removed
}

// AddHyperedge inserts a hyperedge and returns its id
func (s *Store) AddHyperedge(h *Hyperedge) (int64, error) {
	var id int64
	err := s.Update(func(tx *Tx) error {
		var err error
		id, err = tx.AddHyperedge(h)
		return err
	})
	return id, err
}

// SetHyperedgeMembers replaces the member list of a hyperedge
func (s *Store) SetHyperedgeMembers(id int64, members []string) error {
	return s.Update(func(tx *Tx) error { return tx.SetHyperedgeMembers(id, members) })
}

// Restore replaces the whole content of the store with a copy of st.
// Id counters never move backwards so ids stay unique across restores.
func (s *Store) Restore(st *State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := st.Clone()
	s.vertices = c.Vertices
	s.edges = c.Edges
	s.hyperedges = c.Hyperedges
	for id := range s.edges {
		if id >= s.nextEdgeID {
			s.nextEdgeID = id + 1
		}
	}
	for id := range s.hyperedges {
		if id >= s.nextHyperedgeID {
			s.nextHyperedgeID = id + 1
		}
	}

	s.logger.Debug("Store restored from snapshot",
		zap.Int("vertices", len(s.vertices)),
		zap.Int("edges", len(s.edges)),
		zap.Int("hyperedges", len(s.hyperedges)),
	)
}

// ============================================================================
// Reads
// ============================================================================

// State returns a deep, independent snapshot of all three collections
func (s *Store) State() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Vertex returns a copy of a vertex
func (s *Store) Vertex(id string) (*Vertex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vertices[id]
	return v.Clone(), ok
}

// HasVertex reports whether a vertex exists
func (s *Store) HasVertex(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vertices[id]
	return ok
}

// Edge returns a copy of an edge
func (s *Store) Edge(id int64) (Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[id]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Hyperedge returns a copy of a hyperedge
func (s *Store) Hyperedge(id int64) (*Hyperedge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hyperedges[id]
	return h.Clone(), ok
}

// VertexIDs returns all vertex ids sorted
func (s *Store) VertexIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.vertices))
	for id := range s.vertices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HyperedgeIDs returns all hyperedge ids in ascending order
func (s *Store) HyperedgeIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.hyperedges))
	for id := range s.hyperedges {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Counts returns the number of vertices, edges and hyperedges
func (s *Store) Counts() (vertices, edges, hyperedges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vertices), len(s.edges), len(s.hyperedges)
}

func (s *Store) snapshot() *State {
	st := &State{
		Vertices:   s.vertices,
		Edges:      s.edges,
		Hyperedges: s.hyperedges,
	}
	return st.Clone()
}

// ============================================================================
// Raw mutations (no validation, no journaling)
// ============================================================================

func (s *Store) putVertex(v *Vertex) {
	c := v.Clone()
	c.EdgeIDs = []int64{}
	c.HyperedgeIDs = []int64{}
	s.vertices[c.ID] = c
}

func (s *Store) linkEdge(e Edge) {
	edge := e
	s.edges[e.ID] = &edge
	s.vertices[e.V1].EdgeIDs = insertID(s.vertices[e.V1].EdgeIDs, e.ID)
	s.vertices[e.V2].EdgeIDs = insertID(s.vertices[e.V2].EdgeIDs, e.ID)
	if e.ID >= s.nextEdgeID {
		s.nextEdgeID = e.ID + 1
	}
}

func (s *Store) unlinkEdge(id int64) Edge {
	e := *s.edges[id]
	delete(s.edges, id)
	if v, ok := s.vertices[e.V1]; ok {
		v.EdgeIDs = removeID(v.EdgeIDs, id)
	}
	if v, ok := s.vertices[e.V2]; ok {
		v.EdgeIDs = removeID(v.EdgeIDs, id)
	}
	return e
}

func (s *Store) putHyperedge(h *Hyperedge) {
	c := h.Clone()
	s.hyperedges[c.ID] = c
	for _, m := range c.Members {
		s.vertices[m].HyperedgeIDs = insertID(s.vertices[m].HyperedgeIDs, c.ID)
	}
	if c.ID >= s.nextHyperedgeID {
		s.nextHyperedgeID = c.ID + 1
	}
}

func (s *Store) dropHyperedge(id int64) {
	h := s.hyperedges[id]
	delete(s.hyperedges, id)
	for _, m := range h.Members {
		if v, ok := s.vertices[m]; ok {
			v.HyperedgeIDs = removeID(v.HyperedgeIDs, id)
		}
	}
}

func (s *Store) writeMembers(id int64, members []string) {
	h := s.hyperedges[id]
	for _, m := range h.Members {
		if v, ok := s.vertices[m]; ok {
			v.HyperedgeIDs = removeID(v.HyperedgeIDs, id)
		}
	}
	h.Members = slices.Clone(members)
	for _, m := range h.Members {
		s.vertices[m].HyperedgeIDs = insertID(s.vertices[m].HyperedgeIDs, id)
	}
}

func idKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
