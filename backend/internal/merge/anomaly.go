package merge

import (
	"graph-merge/backend/internal/graph"
)

// PruneResult describes members removed from one hyperedge
type PruneResult struct {
	HyperedgeID int64    `json:"hyperedge_id"`
	Removed     []string `json:"removed"`
	Excess      float64  `json:"excess"` // heaviest internal edge minus aggregate weight
}

// AggregateWeights sets the aggregate weight of every hyperedge to the mean
// weight of the edges joining two of its members, or 0 when there are none.
// It returns the new weights by hyperedge id.
func AggregateWeights(store *graph.Store) (map[int64]float64, error) {
	weights := make(map[int64]float64)
	err := store.Update(func(tx *graph.Tx) error {
		for _, hid := range tx.HyperedgeIDs() {
			h, _ := tx.Hyperedge(hid)
			edges := internalEdges(tx, h)

			var w float64
			if len(edges) > 0 {
				var total float64
				for _, e := range edges {
					total += e.Weight
				}
				w = total / float64(len(edges))
			}
			if err := tx.SetAggregateWeight(hid, w); err != nil {
				return err
			}
			weights[hid] = w
		}
		return nil
	})
	return weights, err
}

// PruneAnomalies drops suspicious members from hyperedges. A hyperedge is
// anomalous when its heaviest internal edge exceeds its aggregate weight by
// more than threshold; the endpoints of every such over-threshold edge are
// removed from it. At least one member, the first remaining in order, always
// stays.
func PruneAnomalies(store *graph.Store, threshold float64) ([]PruneResult, error) {
	var results []PruneResult
	err := store.Update(func(tx *graph.Tx) error {
		for _, hid := range tx.HyperedgeIDs() {
			h, _ := tx.Hyperedge(hid)
			edges := internalEdges(tx, h)
			if len(edges) == 0 {
				continue
			}

			var heaviest float64
			flagged := make(map[string]struct{})
			for i, e := range edges {
				if i == 0 || e.Weight > heaviest {
					heaviest = e.Weight
				}
				if e.Weight-h.AggregateWeight > threshold {
					flagged[e.V1] = struct{}{}
					flagged[e.V2] = struct{}{}
				}
			}
			excess := heaviest - h.AggregateWeight
			if excess <= threshold {
				continue
			}

			keep := make([]string, 0, len(h.Members))
			var removed []string
			for _, m := range h.Members {
				if _, bad := flagged[m]; bad {
					removed = append(removed, m)
					continue
				}
				keep = append(keep, m)
			}
			if len(keep) == 0 {
				keep = append(keep, removed[0])
				removed = removed[1:]
			}
			if len(removed) == 0 {
				continue
			}
			if err := tx.SetHyperedgeMembers(hid, keep); err != nil {
				return err
			}
			results = append(results, PruneResult{HyperedgeID: hid, Removed: removed, Excess: excess})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// internalEdges returns the edges whose endpoints are both members of h
func internalEdges(tx *graph.Tx, h *graph.Hyperedge) []graph.Edge {
	members := make(map[string]struct{}, len(h.Members))
	for _, m := range h.Members {
		members[m] = struct{}{}
	}

	seen := make(map[int64]struct{})
	var out []graph.Edge
	for _, m := range h.Members {
		for _, e := range tx.IncidentEdges(m) {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			other, _ := e.Other(m)
			if _, in := members[other]; !in {
				continue
			}
			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// Representatives picks one vertex per hyperedge, its first member
func Representatives(st *graph.State) map[int64]string {
	reps := make(map[int64]string, len(st.Hyperedges))
	for id, h := range st.Hyperedges {
		if len(h.Members) > 0 {
			reps[id] = h.Members[0]
		}
	}
	return reps
}
