package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"graph-merge/backend/internal/graph"
	apperrors "graph-merge/backend/pkg/errors"
)

func prop(name, value string, trust float64) graph.Property {
	return graph.Property{Name: name, Value: value, Trust: trust}
}

// annScenario builds A{name:Ann,trust 1}, B{name:Anna,trust 0}, C with
// edges A--B (5), A--C (3), B--C (7).
func annScenario(t *testing.T) *graph.Store {
	t.Helper()
	s := graph.NewStore(graph.WithLogger(zap.NewNop()))
	require.NoError(t, s.AddVertex(graph.NewVertex("A", prop("name", "Ann", 1))))
	require.NoError(t, s.AddVertex(graph.NewVertex("B", prop("name", "Anna", 0))))
	require.NoError(t, s.AddVertex(graph.NewVertex("C", prop("name", "Carl", 1))))
	for _, e := range []graph.Edge{
		{Weight: 5, V1: "A", V2: "B"},
		{Weight: 3, V1: "A", V2: "C"},
		{Weight: 7, V1: "B", V2: "C"},
	} {
		_, err := s.AddEdge(e)
		require.NoError(t, err)
	}
	return s
}

func TestMergeVertex_AnnScenario(t *testing.T) {
	s := annScenario(t)
	engine := NewEngine(s, zap.NewNop())

	step, err := engine.MergeVertex("A", "B")
	require.NoError(t, err)

	merged, ok := s.Vertex("A_B")
	require.True(t, ok)
	assert.Equal(t, "Ann", merged.Properties["name"].Value)

	st := s.State()
	require.Len(t, st.Edges, 1, "A--B must be dropped and the two edges to C collapsed")
	for _, e := range st.Edges {
		assert.Equal(t, 5.0, e.Weight)
		assert.True(t, e.Touches("A_B"))
		assert.True(t, e.Touches("C"))
	}

	assert.Len(t, step.RemovedEdges, 3)
	assert.Len(t, step.AddedEdges, 1)
	assert.Equal(t, "A", step.Predecessor1.ID)
	assert.Equal(t, []int64{1, 2}, step.Predecessor1.EdgeIDs, "snapshot keeps the pre-merge edge set")
	assert.Equal(t, []int64{1, 3}, step.Predecessor2.EdgeIDs)
	assert.Equal(t, "A_B", step.Result.ID)
}

func TestMergeVertex_VertexCountDropsByOne(t *testing.T) {
	s := annScenario(t)
	engine := NewEngine(s, zap.NewNop())
	before, _, _ := s.Counts()

	_, err := engine.MergeVertex("B", "C")
	require.NoError(t, err)

	after, _, _ := s.Counts()
	assert.Equal(t, before-1, after)
	assert.False(t, s.HasVertex("B"))
	assert.False(t, s.HasVertex("C"))
	assert.True(t, s.HasVertex("B_C"), "merged id keeps argument order")
}

func TestMergeVertex_SingleSharedEdgeIsRepointed(t *testing.T) {
	s := graph.NewStore(graph.WithLogger(zap.NewNop()))
	for _, id := range []string{"A", "B", "C", "D"} {
		require.NoError(t, s.AddVertex(graph.NewVertex(id)))
	}
	_, err := s.AddEdge(graph.Edge{Weight: 4, V1: "C", V2: "A"})
	require.NoError(t, err)
	_, err = s.AddEdge(graph.Edge{Weight: 9, V1: "B", V2: "D"})
	require.NoError(t, err)

	step, err := NewEngine(s, zap.NewNop()).MergeVertex("A", "B")
	require.NoError(t, err)

	require.Len(t, step.AddedEdges, 2)
	weights := map[string]float64{}
	for _, e := range step.AddedEdges {
		other, ok := e.Other("A_B")
		require.True(t, ok)
		weights[other] = e.Weight
		assert.Greater(t, e.ID, int64(2), "re-pointed edges get fresh ids")
	}
	assert.Equal(t, map[string]float64{"C": 4, "D": 9}, weights)
}

func TestMergeVertex_ParallelEdgesPairInIDOrder(t *testing.T) {
	s := graph.NewStore(graph.WithLogger(zap.NewNop()))
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, s.AddVertex(graph.NewVertex(id)))
	}
	for _, e := range []graph.Edge{
		{Weight: 2, V1: "A", V2: "C"},
		{Weight: 10, V1: "A", V2: "C"},
		{Weight: 4, V1: "B", V2: "C"},
	} {
		_, err := s.AddEdge(e)
		require.NoError(t, err)
	}

	step, err := NewEngine(s, zap.NewNop()).MergeVertex("A", "B")
	require.NoError(t, err)

	require.Len(t, step.AddedEdges, 2)
	assert.Equal(t, 3.0, step.AddedEdges[0].Weight)
	assert.Equal(t, 10.0, step.AddedEdges[1].Weight)
}

func TestMergeVertex_UpdatesHyperedgesOnce(t *testing.T) {
	s := annScenario(t)
	hid, err := s.AddHyperedge(&graph.Hyperedge{Members: []string{"C", "B", "A"}})
	require.NoError(t, err)
	other, err := s.AddHyperedge(&graph.Hyperedge{Members: []string{"B", "C"}})
	require.NoError(t, err)

	step, err := NewEngine(s, zap.NewNop()).MergeVertex("A", "B")
	require.NoError(t, err)

	h, _ := s.Hyperedge(hid)
	assert.Equal(t, []string{"C", "A_B"}, h.Members)
	h, _ = s.Hyperedge(other)
	assert.Equal(t, []string{"A_B", "C"}, h.Members)

	require.Len(t, step.Memberships, 2)
	assert.Equal(t, []string{"C", "B", "A"}, step.Memberships[0].Before)

	merged, _ := s.Vertex("A_B")
	assert.Equal(t, []int64{hid, other}, merged.HyperedgeIDs)
}

func TestMergeVertex_MetadataCarriesOver(t *testing.T) {
	s := graph.NewStore(graph.WithLogger(zap.NewNop()))
	a := graph.NewVertex("a")
	a.Completeness = 0.4
	a.Trusted = true
	b := graph.NewVertex("b")
	b.Completeness = 0.9
	b.LastUpdate = a.LastUpdate.AddDate(10, 0, 0)
	require.NoError(t, s.AddVertex(a))
	require.NoError(t, s.AddVertex(b))

	step, err := NewEngine(s, zap.NewNop()).MergeVertex("a", "b")
	require.NoError(t, err)

	assert.True(t, step.Result.Trusted)
	assert.Equal(t, 0.9, step.Result.Completeness)
	assert.True(t, step.Result.LastUpdate.Equal(b.LastUpdate))
}

func TestMergeVertex_Preconditions(t *testing.T) {
	tests := []struct {
		name   string
		v1, v2 string
		setup  func(t *testing.T, s *graph.Store)
		check  func(error) bool
	}{
		{name: "same vertex", v1: "A", v2: "A", check: apperrors.IsRejected},
		{name: "missing first", v1: "X", v2: "A", check: apperrors.IsNotFound},
		{name: "missing second", v1: "A", v2: "X", check: apperrors.IsNotFound},
		{
			name: "merged id already taken", v1: "A", v2: "B",
			setup: func(t *testing.T, s *graph.Store) {
				require.NoError(t, s.AddVertex(graph.NewVertex("A_B")))
			},
			check: apperrors.IsRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := annScenario(t)
			if tt.setup != nil {
				tt.setup(t, s)
			}
			before := s.State()

			step, err := NewEngine(s, zap.NewNop()).MergeVertex(tt.v1, tt.v2)
			require.Error(t, err)
			assert.Nil(t, step)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.Equal(t, before, s.State(), "failed merge must not mutate the store")
		})
	}
}

func TestMergeVertex_DeterministicAcrossStores(t *testing.T) {
	first := annScenario(t)
	second := annScenario(t)

	s1, err := NewEngine(first, zap.NewNop()).MergeVertex("A", "B")
	require.NoError(t, err)
	s2, err := NewEngine(second, zap.NewNop()).MergeVertex("A", "B")
	require.NoError(t, err)

	assert.Equal(t, s1.Result.Properties, s2.Result.Properties)
	assert.Equal(t, first.State(), second.State())
}
