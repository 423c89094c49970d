package merge

import (
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"
	"graph-merge/backend/internal/graph"
	"graph-merge/backend/internal/history"
	apperrors "graph-merge/backend/pkg/errors"
	"graph-merge/backend/pkg/logger"
)

// Engine merges pairs of vertices in a graph store
type Engine struct {
	store  *graph.Store
	logger *zap.Logger
}

// NewEngine creates a merge engine over store. A nil logger uses the global one.
func NewEngine(store *graph.Store, log *zap.Logger) *Engine {
	if log == nil {
		log = logger.Named("merge")
	}
	return &Engine{
		store:  store,
		logger: log,
	}
}

// MergedID is the id given to the vertex produced by merging v1 into v2.
// The order matters: MergedID(a, b) != MergedID(b, a).
func MergedID(v1, v2 string) string {
	return v1 + "_" + v2
}

// MergeVertex folds v1 and v2 into a new vertex and returns the history step
// describing the change. Either the whole merge is applied or nothing is.
func (e *Engine) MergeVertex(v1ID, v2ID string) (*history.Step, error) {
	var step *history.Step
	err := e.store.Update(func(tx *graph.Tx) error {
		var err error
		step, err = mergeInTx(tx, v1ID, v2ID)
		return err
	})
	if err != nil {
		e.logger.Warn("Merge rejected",
			zap.String("v1", v1ID),
			zap.String("v2", v2ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("merge %s with %s: %w", v1ID, v2ID, err)
	}

	e.logger.Info("Vertices merged",
		zap.String("v1", v1ID),
		zap.String("v2", v2ID),
		zap.String("result", step.Result.ID),
		zap.Int("added_edges", len(step.AddedEdges)),
		zap.Int("removed_edges", len(step.RemovedEdges)),
	)
	return step, nil
}

// mergeInTx performs one merge inside an open transaction. Every
// precondition is checked before the first mutation.
func mergeInTx(tx *graph.Tx, v1ID, v2ID string) (*history.Step, error) {
	if v1ID == v2ID {
		return nil, apperrors.NewInvariantViolation(fmt.Sprintf("cannot merge vertex %s with itself", v1ID))
	}
	a, ok := tx.Vertex(v1ID)
	if !ok {
		return nil, apperrors.NewNotFound("vertex", v1ID)
	}
	b, ok := tx.Vertex(v2ID)
	if !ok {
		return nil, apperrors.NewNotFound("vertex", v2ID)
	}
	newID := MergedID(v1ID, v2ID)
	if tx.HasVertex(newID) {
		return nil, apperrors.NewDuplicateID("vertex", newID)
	}

	if err := tx.AddVertex(buildMerged(newID, a, b)); err != nil {
		return nil, err
	}

	// Edges
	aEdges := tx.IncidentEdges(a.ID)
	bEdges := tx.IncidentEdges(b.ID)
	removed := unionEdges(aEdges, bEdges)
	for _, edge := range removed {
		tx.RemoveEdge(edge.ID)
	}
	added := make([]graph.Edge, 0, len(removed))
	for _, p := range planEdges(a.ID, b.ID, aEdges, bEdges) {
		edge, err := tx.AddEdge(graph.Edge{Weight: p.weight, V1: newID, V2: p.other})
		if err != nil {
			return nil, err
		}
		added = append(added, edge)
	}

	// Hyperedges
	hyperedges := slices.Clone(a.HyperedgeIDs)
	for _, hid := range b.HyperedgeIDs {
		hyperedges = insertSorted(hyperedges, hid)
	}
	memberships := make([]history.MembershipChange, 0, len(hyperedges))
	for _, hid := range hyperedges {
		h, _ := tx.Hyperedge(hid)
		after := replaceMembers(h.Members, a.ID, b.ID, newID)
		if err := tx.SetHyperedgeMembers(hid, after); err != nil {
			return nil, err
		}
		memberships = append(memberships, history.MembershipChange{
			HyperedgeID: hid,
			Before:      h.Members,
			After:       after,
		})
	}

	if err := tx.RemoveVertex(a.ID); err != nil {
		return nil, err
	}
	if err := tx.RemoveVertex(b.ID); err != nil {
		return nil, err
	}

	result, _ := tx.Vertex(newID)
	return history.NewStep(result, a, b, added, removed, memberships), nil
}

// buildMerged assembles the merged vertex from resolved properties. The
// merged record counts as trusted if either source was, and keeps the higher
// completeness and the later update date.
func buildMerged(id string, a, b *graph.Vertex) *graph.Vertex {
	v := graph.NewVertex(id)
	for _, r := range ResolveProperties(a, b) {
		v.SetProperty(r.Property)
	}
	v.Trusted = a.Trusted || b.Trusted
	v.Completeness = max(a.Completeness, b.Completeness)
	v.LastUpdate = a.LastUpdate
	if b.LastUpdate.After(a.LastUpdate) {
		v.LastUpdate = b.LastUpdate
	}
	return v
}

type plannedEdge struct {
	other  string
	weight float64
}

// planEdges decides the edges of the merged vertex. Edges between a and b
// disappear. Edges from a and from b reaching the same neighbour are paired
// in id order and each pair becomes one edge with the mean weight; unpaired
// edges keep their weight.
func planEdges(aID, bID string, aEdges, bEdges []graph.Edge) []plannedEdge {
	fromA := make(map[string][]graph.Edge)
	fromB := make(map[string][]graph.Edge)
	neighbours := make(map[string]struct{})

	collect := func(self string, edges []graph.Edge, into map[string][]graph.Edge) {
		for _, e := range edges {
			other, _ := e.Other(self)
			if other == aID || other == bID {
				continue
			}
			into[other] = append(into[other], e)
			neighbours[other] = struct{}{}
		}
	}
	collect(aID, aEdges, fromA)
	collect(bID, bEdges, fromB)

	sorted := make([]string, 0, len(neighbours))
	for n := range neighbours {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	var plan []plannedEdge
	for _, n := range sorted {
		ea, eb := fromA[n], fromB[n]
		pairs := min(len(ea), len(eb))
		for i := 0; i < pairs; i++ {
			plan = append(plan, plannedEdge{other: n, weight: (ea[i].Weight + eb[i].Weight) / 2})
		}
		for _, e := range ea[pairs:] {
			plan = append(plan, plannedEdge{other: n, weight: e.Weight})
		}
		for _, e := range eb[pairs:] {
			plan = append(plan, plannedEdge{other: n, weight: e.Weight})
		}
	}
	return plan
}

// unionEdges merges two id-ordered edge lists, dropping the shared a--b edges
// that appear in both
func unionEdges(a, b []graph.Edge) []graph.Edge {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]graph.Edge, 0, len(a)+len(b))
	for _, list := range [][]graph.Edge{a, b} {
		for _, e := range list {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// replaceMembers swaps a and b for id, keeping the position of whichever came first
func replaceMembers(members []string, a, b, id string) []string {
	out := make([]string, 0, len(members))
	inserted := false
	for _, m := range members {
		if m == a || m == b {
			if !inserted {
				out = append(out, id)
				inserted = true
			}
			continue
		}
		out = append(out, m)
	}
	return out
}

func insertSorted(ids []int64, id int64) []int64 {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(ids, i, id)
}
