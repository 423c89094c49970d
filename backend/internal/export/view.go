package export

import (
	"graph-merge/backend/internal/graph"
	"graph-merge/backend/internal/merge"
)

// Node is a vertex as drawn by a graph viewer
type Node struct {
	ID             string            `json:"id"`
	Properties     map[string]string `json:"properties"`
	Trusted        bool              `json:"trusted"`
	Completeness   float64           `json:"completeness"`
	LastUpdate     string            `json:"last_update"`
	Groups         []int64           `json:"groups"`
	Representative bool              `json:"representative"`
}

// Link is a weighted edge between two nodes
type Link struct {
	ID     int64   `json:"id"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// Group is a hyperedge drawn as a cluster of nodes
type Group struct {
	ID              int64    `json:"id"`
	AggregateWeight float64  `json:"aggregate_weight"`
	Members         []string `json:"members"`
	Representative  string   `json:"representative"`
}

// View is a render-ready projection of a graph state
type View struct {
	Nodes  []Node  `json:"nodes"`
	Links  []Link  `json:"links"`
	Groups []Group `json:"groups"`
}

// Project flattens a state into a View. Nodes are sorted by id, links and
// groups by numeric id, so equal states always project to equal views.
func Project(st *graph.State) View {
	reps := merge.Representatives(st)
	isRep := make(map[string]bool, len(reps))
	for _, id := range reps {
		isRep[id] = true
	}

	view := View{
		Nodes:  make([]Node, 0, len(st.Vertices)),
		Links:  make([]Link, 0, len(st.Edges)),
		Groups: make([]Group, 0, len(st.Hyperedges)),
	}

	for _, id := range st.VertexIDs() {
		v := st.Vertices[id]
		props := make(map[string]string, len(v.Properties))
		for name, p := range v.Properties {
			props[name] = p.Value
		}
		groups := append([]int64{}, v.HyperedgeIDs...)
		view.Nodes = append(view.Nodes, Node{
			ID:             v.ID,
			Properties:     props,
			Trusted:        v.Trusted,
			Completeness:   v.Completeness,
			LastUpdate:     v.LastUpdate.Format(graph.DateLayout),
			Groups:         groups,
			Representative: isRep[v.ID],
		})
	}

	for _, id := range st.EdgeIDs() {
		e := st.Edges[id]
		source, target := e.V1, e.V2
		if target < source {
			source, target = target, source
		}
		view.Links = append(view.Links, Link{ID: e.ID, Source: source, Target: target, Weight: e.Weight})
	}

	for _, id := range st.HyperedgeIDs() {
		h := st.Hyperedges[id]
		view.Groups = append(view.Groups, Group{
			ID:              h.ID,
			AggregateWeight: h.AggregateWeight,
			Members:         append([]string{}, h.Members...),
			Representative:  reps[h.ID],
		})
	}

	return view
}
