package history_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"graph-merge/backend/internal/graph"
	"graph-merge/backend/internal/history"
	"graph-merge/backend/internal/merge"
	apperrors "graph-merge/backend/pkg/errors"
)

var stateOpts = cmp.Options{cmpopts.EquateEmpty()}

func seededStore(t *testing.T) *graph.Store {
	t.Helper()
	s := graph.NewStore(graph.WithLogger(zap.NewNop()))
	vertices := []*graph.Vertex{
		graph.NewVertex("A", graph.Property{Name: "name", Value: "Ann", Trust: 1}),
		graph.NewVertex("B", graph.Property{Name: "name", Value: "Anna", Trust: 0}),
		graph.NewVertex("C", graph.Property{Name: "city", Value: "Lyon", Trust: 0.5}),
		graph.NewVertex("D", graph.Property{Name: "city", Value: "Paris", Trust: -1}),
		graph.NewVertex("E"),
	}
	for _, v := range vertices {
		require.NoError(t, s.AddVertex(v))
	}
	for _, e := range []graph.Edge{
		{Weight: 5, V1: "A", V2: "B"},
		{Weight: 3, V1: "A", V2: "C"},
		{Weight: 7, V1: "B", V2: "C"},
		{Weight: 1, V1: "C", V2: "D"},
		{Weight: 2, V1: "D", V2: "E"},
	} {
		_, err := s.AddEdge(e)
		require.NoError(t, err)
	}
	_, err := s.AddHyperedge(&graph.Hyperedge{Members: []string{"E", "B", "A"}})
	require.NoError(t, err)
	_, err = s.AddHyperedge(&graph.Hyperedge{Members: []string{"C", "D"}})
	require.NoError(t, err)
	return s
}

// mergeAndRecord performs each merge and writes its step, returning the
// state snapshot after every merge
func mergeAndRecord(t *testing.T, s *graph.Store, m *history.Manager, pairs [][2]string) []*graph.State {
	t.Helper()
	engine := merge.NewEngine(s, zap.NewNop())
	snapshots := make([]*graph.State, 0, len(pairs))
	for _, p := range pairs {
		step, err := engine.MergeVertex(p[0], p[1])
		require.NoError(t, err)
		require.NoError(t, m.WriteStep(step))
		snapshots = append(snapshots, s.State())
	}
	return snapshots
}

var threeMerges = [][2]string{{"A", "B"}, {"C", "D"}, {"A_B", "C_D"}}

func TestManager_RoundTrip(t *testing.T) {
	s := seededStore(t)
	base := s.State()
	m := history.NewManager(s, history.WithLogger(zap.NewNop()))

	snapshots := mergeAndRecord(t, s, m, threeMerges)
	require.Equal(t, 2, m.Position())

	for pos := 1; pos >= 0; pos-- {
		require.NoError(t, m.Prev())
		if diff := cmp.Diff(snapshots[pos], s.State(), stateOpts); diff != "" {
			t.Fatalf("state after undo to position %d mismatch (-want +got):\n%s", pos, diff)
		}
	}
	require.NoError(t, m.Prev())
	assert.Equal(t, history.AtBase, m.Position())
	if diff := cmp.Diff(base, s.State(), stateOpts); diff != "" {
		t.Fatalf("base state mismatch (-want +got):\n%s", diff)
	}

	for pos := 0; pos < len(threeMerges); pos++ {
		require.NoError(t, m.Next())
		if diff := cmp.Diff(snapshots[pos], s.State(), stateOpts); diff != "" {
			t.Fatalf("state after replay to position %d mismatch (-want +got):\n%s", pos, diff)
		}
	}
}

func TestManager_ExhaustedHistory(t *testing.T) {
	s := seededStore(t)
	m := history.NewManager(s, history.WithLogger(zap.NewNop()))

	err := m.Prev()
	require.Error(t, err)
	assert.True(t, apperrors.IsExhausted(err))

	err = m.Next()
	require.Error(t, err)
	assert.True(t, apperrors.IsExhausted(err))

	mergeAndRecord(t, s, m, threeMerges[:1])
	before := s.State()
	err = m.Next()
	require.Error(t, err)
	assert.True(t, apperrors.IsExhausted(err))
	assert.Equal(t, before, s.State(), "exhausted navigation leaves the store alone")
	assert.Equal(t, 0, m.Position())
}

func TestManager_WriteBehindHeadDiverges(t *testing.T) {
	s := seededStore(t)
	m := history.NewManager(s, history.WithLogger(zap.NewNop()))
	mergeAndRecord(t, s, m, threeMerges[:2])

	require.NoError(t, m.Prev())
	assert.False(t, m.AtHead())

	step, err := merge.NewEngine(s, zap.NewNop()).MergeVertex("A_B", "C")
	require.NoError(t, err)
	err = m.WriteStep(step)
	require.Error(t, err)
	assert.True(t, apperrors.IsDiverged(err))
	assert.Equal(t, 2, m.Len())
}

func TestManager_Truncate(t *testing.T) {
	s := seededStore(t)
	m := history.NewManager(s, history.WithLogger(zap.NewNop()))
	mergeAndRecord(t, s, m, threeMerges)

	require.NoError(t, m.Prev())
	require.NoError(t, m.Prev())
	assert.Equal(t, 0, m.Position())

	assert.Equal(t, 2, m.Truncate())
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.AtHead())
	assert.Zero(t, m.Truncate())

	mergeAndRecord(t, s, m, [][2]string{{"A_B", "C"}})
	assert.Equal(t, 1, m.Position())
	assert.True(t, s.HasVertex("A_B_C"))
}

func TestManager_LimitFoldsOldestStep(t *testing.T) {
	s := seededStore(t)
	m := history.NewManager(s, history.WithLimit(2), history.WithLogger(zap.NewNop()))
	snapshots := mergeAndRecord(t, s, m, threeMerges)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 1, m.Position())
	if diff := cmp.Diff(snapshots[0], m.Base(), stateOpts); diff != "" {
		t.Fatalf("folded base mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, m.Prev())
	require.NoError(t, m.Prev())
	if diff := cmp.Diff(snapshots[0], s.State(), stateOpts); diff != "" {
		t.Fatalf("state at folded base mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, apperrors.IsExhausted(m.Prev()))
}

func TestManager_StepsAreDetached(t *testing.T) {
	s := seededStore(t)
	m := history.NewManager(s, history.WithLogger(zap.NewNop()))
	mergeAndRecord(t, s, m, threeMerges[:1])

	step, ok := m.Step(0)
	require.True(t, ok)
	step.Result.ID = "tampered"
	step.RemovedEdges = nil

	again, _ := m.Step(0)
	assert.Equal(t, "A_B", again.Result.ID)
	assert.Len(t, again.RemovedEdges, 3)

	summaries := m.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, [2]string{"A", "B"}, summaries[0].Predecessors)
	assert.True(t, summaries[0].Current)
}

func TestManager_ForwardFromBaseThenFullyBack(t *testing.T) {
	s := seededStore(t)
	base := s.State()
	m := history.NewManager(s, history.WithLogger(zap.NewNop()))
	snapshots := mergeAndRecord(t, s, m, threeMerges)

	for range threeMerges {
		require.NoError(t, m.Prev())
	}
	require.Equal(t, history.AtBase, m.Position())

	for pos := range threeMerges {
		require.NoError(t, m.Next())
		if diff := cmp.Diff(snapshots[pos], s.State(), stateOpts); diff != "" {
			t.Fatalf("state after replay to position %d mismatch (-want +got):\n%s", pos, diff)
		}
	}
	assert.True(t, m.AtHead())

	for pos := len(threeMerges) - 2; pos >= history.AtBase; pos-- {
		require.NoError(t, m.Prev())
		want := base
		if pos >= 0 {
			want = snapshots[pos]
		}
		if diff := cmp.Diff(want, s.State(), stateOpts); diff != "" {
			t.Fatalf("state after undo to position %d mismatch (-want +got):\n%s", pos, diff)
		}
	}
	assert.True(t, apperrors.IsExhausted(m.Prev()))

	// Replaying one step, dropping the rest and merging differently still undoes cleanly
	require.NoError(t, m.Next())
	assert.Equal(t, 2, m.Truncate())
	branched := mergeAndRecord(t, s, m, [][2]string{{"A_B", "E"}})
	assert.True(t, s.HasVertex("A_B_E"))

	require.NoError(t, m.Prev())
	if diff := cmp.Diff(snapshots[0], s.State(), stateOpts); diff != "" {
		t.Fatalf("state after undoing the branch mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, m.Next())
	if diff := cmp.Diff(branched[0], s.State(), stateOpts); diff != "" {
		t.Fatalf("state after replaying the branch mismatch (-want +got):\n%s", diff)
	}
}
