package graph

import (
	"fmt"
	"slices"

	apperrors "graph-merge/backend/pkg/errors"
)

// Tx is the mutation handle passed to Store.Update. It is only valid inside
// the callback. Every successful mutation records its inverse so a failing
// unit can be rolled back.
type Tx struct {
	store *Store
	undo  []func()
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// ============================================================================
// Reads
// ============================================================================

// Vertex returns a copy of a vertex
func (tx *Tx) Vertex(id string) (*Vertex, bool) {
	v, ok := tx.store.vertices[id]
	return v.Clone(), ok
}

// HasVertex reports whether a vertex exists
func (tx *Tx) HasVertex(id string) bool {
	_, ok := tx.store.vertices[id]
	return ok
}

// Edge returns a copy of an edge
func (tx *Tx) Edge(id int64) (Edge, bool) {
	e, ok := tx.store.edges[id]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// IncidentEdges returns copies of the edges touching a vertex, ordered by id
func (tx *Tx) IncidentEdges(id string) []Edge {
	v, ok := tx.store.vertices[id]
	if !ok {
		return nil
	}
	edges := make([]Edge, 0, len(v.EdgeIDs))
	for _, eid := range v.EdgeIDs {
		edges = append(edges, *tx.store.edges[eid])
	}
	return edges
}

// Hyperedge returns a copy of a hyperedge
func (tx *Tx) Hyperedge(id int64) (*Hyperedge, bool) {
	h, ok := tx.store.hyperedges[id]
	return h.Clone(), ok
}

// HyperedgeIDs returns all hyperedge ids in ascending order
func (tx *Tx) HyperedgeIDs() []int64 {
	ids := make([]int64, 0, len(tx.store.hyperedges))
	for id := range tx.store.hyperedges {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ============================================================================
// Mutations
// ============================================================================

// AddVertex inserts a copy of v with empty reverse indices
func (tx *Tx) AddVertex(v *Vertex) error {
	if v == nil || v.ID == "" {
		return apperrors.NewInvariantViolation("vertex id must not be empty")
	}
	if _, exists := tx.store.vertices[v.ID]; exists {
		return apperrors.NewDuplicateID("vertex", v.ID)
	}

	tx.store.putVertex(v)
	id := v.ID
	tx.undo = append(tx.undo, func() { delete(tx.store.vertices, id) })
	return nil
}

// RemoveVertex deletes a vertex, its incident edges and its hyperedge
// memberships. Absent ids are a no-op. Removing the last member of a
// hyperedge is rejected.
func (tx *Tx) RemoveVertex(id string) error {
	v, ok := tx.store.vertices[id]
	if !ok {
		return nil
	}

	for _, hid := range v.HyperedgeIDs {
		if len(tx.store.hyperedges[hid].Members) == 1 {
			return apperrors.NewInvariantViolation(
				fmt.Sprintf("vertex %s is the last member of hyperedge %d", id, hid))
		}
	}

	for _, eid := range slices.Clone(v.EdgeIDs) {
		tx.RemoveEdge(eid)
	}
	for _, hid := range slices.Clone(v.HyperedgeIDs) {
		members := slices.DeleteFunc(slices.Clone(tx.store.hyperedges[hid].Members),
			func(m string) bool { return m == id })
		if err := tx.SetHyperedgeMembers(hid, members); err != nil {
			return err
		}
	}

	saved := v.Clone()
	delete(tx.store.vertices, id)
	tx.undo = append(tx.undo, func() { tx.store.putVertex(saved) })
	return nil
}

// AddEdge inserts an edge. A zero id is replaced with the next free id.
func (tx *Tx) AddEdge(e Edge) (Edge, error) {
	if e.ID == 0 {
		e.ID = tx.store.nextEdgeID
	}
	if e.ID < 0 {
		return Edge{}, apperrors.NewInvariantViolation(fmt.Sprintf("edge id must be positive, got %d", e.ID))
	}
	if _, exists := tx.store.edges[e.ID]; exists {
		return Edge{}, apperrors.NewDuplicateID("edge", idKey(e.ID))
	}
	if e.V1 == e.V2 {
		return Edge{}, apperrors.NewSelfLoop(e.V1)
	}
	for _, endpoint := range []string{e.V1, e.V2} {
		if _, ok := tx.store.vertices[endpoint]; !ok {
			return Edge{}, apperrors.NewDanglingEndpoint(e.ID, endpoint)
		}
	}

	tx.store.linkEdge(e)
	id := e.ID
	tx.undo = append(tx.undo, func() { tx.store.unlinkEdge(id) })
	return e, nil
}

// RemoveEdge deletes an edge, reporting whether it existed
func (tx *Tx) RemoveEdge(id int64) bool {
	if _, ok := tx.store.edges[id]; !ok {
		return false
	}
	e := tx.store.unlinkEdge(id)
	tx.undo = append(tx.undo, func() { tx.store.linkEdge(e) })
	return true
}

// AddHyperedge inserts a hyperedge. A zero id is replaced with the next free id.
func (tx *Tx) AddHyperedge(h *Hyperedge) (int64, error) {
	if h == nil {
		return 0, apperrors.NewInvariantViolation("hyperedge must not be nil")
	}
	c := h.Clone()
	if c.ID == 0 {
		c.ID = tx.store.nextHyperedgeID
	}
	if c.ID < 0 {
		return 0, apperrors.NewInvariantViolation(fmt.Sprintf("hyperedge id must be positive, got %d", c.ID))
	}
	if _, exists := tx.store.hyperedges[c.ID]; exists {
		return 0, apperrors.NewDuplicateID("hyperedge", idKey(c.ID))
	}
	if err := tx.validateMembers(c.ID, c.Members); err != nil {
		return 0, err
	}

	tx.store.putHyperedge(c)
	id := c.ID
	tx.undo = append(tx.undo, func() { tx.store.dropHyperedge(id) })
	return id, nil
}

// SetHyperedgeMembers replaces the member list of a hyperedge
func (tx *Tx) SetHyperedgeMembers(id int64, members []string) error {
	h, ok := tx.store.hyperedges[id]
	if !ok {
		return apperrors.NewNotFound("hyperedge", idKey(id))
	}
	if err := tx.validateMembers(id, members); err != nil {
		return err
	}

	previous := slices.Clone(h.Members)
	tx.store.writeMembers(id, members)
	tx.undo = append(tx.undo, func() { tx.store.writeMembers(id, previous) })
	return nil
}

// SetAggregateWeight updates the aggregate weight of a hyperedge
func (tx *Tx) SetAggregateWeight(id int64, weight float64) error {
	h, ok := tx.store.hyperedges[id]
	if !ok {
		return apperrors.NewNotFound("hyperedge", idKey(id))
	}

	previous := h.AggregateWeight
	h.AggregateWeight = weight
	tx.undo = append(tx.undo, func() { h.AggregateWeight = previous })
	return nil
}

func (tx *Tx) validateMembers(id int64, members []string) error {
	if len(members) == 0 {
		return apperrors.NewInvariantViolation(fmt.Sprintf("hyperedge %d has no members", id))
	}
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m]; dup {
			return apperrors.NewInvariantViolation(fmt.Sprintf("hyperedge %d lists %s twice", id, m))
		}
		seen[m] = struct{}{}
		if _, ok := tx.store.vertices[m]; !ok {
			return apperrors.NewInvariantViolation(fmt.Sprintf("hyperedge %d references missing vertex %s", id, m))
		}
	}
	return nil
}
