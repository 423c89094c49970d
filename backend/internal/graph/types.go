package graph

import (
	"slices"
	"sort"
	"time"
)

// ============================================================================
// Graph Types
// ============================================================================

// Trust levels with a fixed meaning in conflict resolution. Values in between
// express partial confidence.
const (
	TrustVerified    = 1.0
	TrustUnverified  = 0.0
	TrustConflicting = -1.0
)

// DateLayout is the calendar-date layout used for LastUpdate on the wire
const DateLayout = "2006-01-02"

// DefaultLastUpdate is assigned to vertices whose source record carried no date
var DefaultLastUpdate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// Property is a named attribute value with the confidence of its source
type Property struct {
	Name  string  `json:"name"`
	Value string  `json:"value"`
	Trust float64 `json:"trust"`
}

// Vertex is one entity or record candidate.
//
// EdgeIDs and HyperedgeIDs are reverse indices owned by the Store; they are
// kept sorted and are ignored when a vertex is handed to AddVertex.
type Vertex struct {
	ID           string              `json:"id"`
	Properties   map[string]Property `json:"properties"`
	Trusted      bool                `json:"trusted"`
	Completeness float64             `json:"completeness"`
	LastUpdate   time.Time           `json:"last_update"`
	EdgeIDs      []int64             `json:"edge_ids"`
	HyperedgeIDs []int64             `json:"hyperedge_ids"`
}

// NewVertex creates a vertex with the given properties and the default update date
func NewVertex(id string, props ...Property) *Vertex {
	v := &Vertex{
		ID:           id,
		Properties:   make(map[string]Property, len(props)),
		LastUpdate:   DefaultLastUpdate,
		EdgeIDs:      []int64{},
		HyperedgeIDs: []int64{},
	}
	for _, p := range props {
		v.Properties[p.Name] = p
	}
	return v
}

// SetProperty adds or replaces a property by name
func (v *Vertex) SetProperty(p Property) {
	if v.Properties == nil {
		v.Properties = make(map[string]Property)
	}
	v.Properties[p.Name] = p
}

// Property retrieves a property by name
func (v *Vertex) Property(name string) (Property, bool) {
	p, ok := v.Properties[name]
	return p, ok
}

// PropertyNames returns the property names in sorted order
func (v *Vertex) PropertyNames() []string {
	names := make([]string, 0, len(v.Properties))
	for name := range v.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a fully detached copy of the vertex
func (v *Vertex) Clone() *Vertex {
	if v == nil {
		return nil
	}
	c := *v
	c.Properties = make(map[string]Property, len(v.Properties))
	for k, p := range v.Properties {
		c.Properties[k] = p
	}
	c.EdgeIDs = cloneIDs(v.EdgeIDs)
	c.HyperedgeIDs = cloneIDs(v.HyperedgeIDs)
	return &c
}

// Edge is a weighted link between two distinct vertices
type Edge struct {
	ID     int64   `json:"id"`
	Weight float64 `json:"weight"`
	V1     string  `json:"v1"`
	V2     string  `json:"v2"`
}

// Touches reports whether the edge has id as an endpoint
func (e Edge) Touches(id string) bool {
	return e.V1 == id || e.V2 == id
}

// Other returns the endpoint opposite to id
func (e Edge) Other(id string) (string, bool) {
	switch id {
	case e.V1:
		return e.V2, true
	case e.V2:
		return e.V1, true
	}
	return "", false
}

// Hyperedge groups vertices believed to denote one entity
type Hyperedge struct {
	ID              int64    `json:"id"`
	AggregateWeight float64  `json:"aggregate_weight"`
	Members         []string `json:"members"`
}

// Contains reports whether id is a member
func (h *Hyperedge) Contains(id string) bool {
	return slices.Contains(h.Members, id)
}

// Clone returns a detached copy of the hyperedge
func (h *Hyperedge) Clone() *Hyperedge {
	if h == nil {
		return nil
	}
	c := *h
	c.Members = slices.Clone(h.Members)
	if c.Members == nil {
		c.Members = []string{}
	}
	return &c
}

// State is a deep, independent snapshot of the whole store
type State struct {
	Vertices   map[string]*Vertex  `json:"vertices"`
	Edges      map[int64]*Edge     `json:"edges"`
	Hyperedges map[int64]*Hyperedge `json:"hyperedges"`
}

// NewState returns an empty state
func NewState() *State {
	return &State{
		Vertices:   make(map[string]*Vertex),
		Edges:      make(map[int64]*Edge),
		Hyperedges: make(map[int64]*Hyperedge),
	}
}

// Clone deep-copies the state
func (s *State) Clone() *State {
	c := &State{
		Vertices:   make(map[string]*Vertex, len(s.Vertices)),
		Edges:      make(map[int64]*Edge, len(s.Edges)),
		Hyperedges: make(map[int64]*Hyperedge, len(s.Hyperedges)),
	}
	for id, v := range s.Vertices {
		c.Vertices[id] = v.Clone()
	}
	for id, e := range s.Edges {
		edge := *e
		c.Edges[id] = &edge
	}
	for id, h := range s.Hyperedges {
		c.Hyperedges[id] = h.Clone()
	}
	return c
}

// VertexIDs returns the vertex ids in sorted order
func (s *State) VertexIDs() []string {
	ids := make([]string, 0, len(s.Vertices))
	for id := range s.Vertices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EdgeIDs returns the edge ids in ascending order
func (s *State) EdgeIDs() []int64 {
	ids := make([]int64, 0, len(s.Edges))
	for id := range s.Edges {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// HyperedgeIDs returns the hyperedge ids in ascending order
func (s *State) HyperedgeIDs() []int64 {
	ids := make([]int64, 0, len(s.Hyperedges))
	for id := range s.Hyperedges {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func cloneIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return slices.Clone(ids)
}

// insertID adds id to a sorted slice, keeping it sorted and unique
func insertID(ids []int64, id int64) []int64 {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(ids, i, id)
}

// removeID deletes id from a sorted slice
func removeID(ids []int64, id int64) []int64 {
	i, found := slices.BinarySearch(ids, id)
	if !found {
		return ids
	}
	return slices.Delete(ids, i, i+1)
}
