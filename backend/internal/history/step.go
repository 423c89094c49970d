package history

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"graph-merge/backend/internal/graph"
)

// MembershipChange records a hyperedge member list before and after a merge
type MembershipChange struct {
	HyperedgeID int64    `json:"hyperedge_id"`
	Before      []string `json:"before"`
	After       []string `json:"after"`
}

// Step is the record of one merge. It holds detached copies only: the
// predecessors carry their edge sets as they were before the merge, and
// nothing in a Step aliases live store state.
type Step struct {
	ID           string             `json:"id"`
	CreatedAt    time.Time          `json:"created_at"`
	Result       *graph.Vertex      `json:"result"`
	Predecessor1 *graph.Vertex      `json:"predecessor_1"`
	Predecessor2 *graph.Vertex      `json:"predecessor_2"`
	AddedEdges   []graph.Edge       `json:"added_edges"`
	RemovedEdges []graph.Edge       `json:"removed_edges"`
	Memberships  []MembershipChange `json:"memberships"`
}

// NewStep captures a step, copying every argument
func NewStep(result, p1, p2 *graph.Vertex, added, removed []graph.Edge, memberships []MembershipChange) *Step {
	s := &Step{
		ID:           uuid.New().String(),
		CreatedAt:    time.Now().UTC(),
		Result:       result,
		Predecessor1: p1,
		Predecessor2: p2,
		AddedEdges:   added,
		RemovedEdges: removed,
		Memberships:  memberships,
	}
	return s.Clone()
}

// Clone deep-copies the step
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	c := *s
	c.Result = s.Result.Clone()
	c.Predecessor1 = s.Predecessor1.Clone()
	c.Predecessor2 = s.Predecessor2.Clone()
	c.AddedEdges = cloneEdges(s.AddedEdges)
	c.RemovedEdges = cloneEdges(s.RemovedEdges)
	c.Memberships = make([]MembershipChange, len(s.Memberships))
	for i, m := range s.Memberships {
		c.Memberships[i] = MembershipChange{
			HyperedgeID: m.HyperedgeID,
			Before:      slices.Clone(m.Before),
			After:       slices.Clone(m.After),
		}
	}
	return &c
}

// Summary is a compact view of a step for listings
type Summary struct {
	Index        int       `json:"index"`
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Result       string    `json:"result"`
	Predecessors [2]string `json:"predecessors"`
	AddedEdges   int       `json:"added_edges"`
	RemovedEdges int       `json:"removed_edges"`
	Current      bool      `json:"current"`
}

func cloneEdges(edges []graph.Edge) []graph.Edge {
	if edges == nil {
		return []graph.Edge{}
	}
	return slices.Clone(edges)
}
