package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"graph-merge/backend/internal/graph"
	"graph-merge/backend/internal/services"
	apperrors "graph-merge/backend/pkg/errors"
)

type fakeExporter struct {
	runID string
	err   error
	got   *graph.State
}

func (f *fakeExporter) ExportState(_ context.Context, st *graph.State) (string, error) {
	f.got = st
	return f.runID, f.err
}

func setupRouter(t *testing.T, exporter Exporter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := graph.NewStore(graph.WithLogger(zap.NewNop()))
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, store.AddVertex(graph.NewVertex(id)))
	}
	_, err := store.AddEdge(graph.Edge{Weight: 3, V1: "A", V2: "C"})
	require.NoError(t, err)
	_, err = store.AddHyperedge(&graph.Hyperedge{Members: []string{"A", "B"}})
	require.NoError(t, err)

	svc, err := services.NewConsolidationService(store, services.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	return NewRouter(NewHandler(svc, exporter, zap.NewNop()), zap.NewNop())
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func TestHealthEndpoint(t *testing.T) {
	router := setupRouter(t, nil)

	w := do(router, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestMergeEndpoint(t *testing.T) {
	router := setupRouter(t, nil)

	w := do(router, "POST", "/api/merge", `{"v1":"A","v2":"B"}`)
	require.Equal(t, http.StatusOK, w.Code)
	result := decode(t, w)["result"].(map[string]interface{})
	assert.Equal(t, "A_B", result["id"])

	w = do(router, "GET", "/api/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	history := decode(t, w)
	assert.Equal(t, 0.0, history["position"])
	assert.Len(t, history["steps"], 1)
}

func TestMergeEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "missing fields", body: `{}`, want: http.StatusBadRequest},
		{name: "malformed json", body: `{"v1":`, want: http.StatusBadRequest},
		{name: "unknown vertex", body: `{"v1":"A","v2":"Z"}`, want: http.StatusNotFound},
		{name: "self merge", body: `{"v1":"A","v2":"A"}`, want: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(t, nil)
			w := do(router, "POST", "/api/merge", tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHistoryEndpoints(t *testing.T) {
	router := setupRouter(t, nil)

	w := do(router, "POST", "/api/history/prev", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Equal(t, http.StatusOK, do(router, "POST", "/api/merge", `{"v1":"A","v2":"B"}`).Code)
	require.Equal(t, http.StatusOK, do(router, "POST", "/api/history/prev", "").Code)

	w = do(router, "POST", "/api/merge", `{"v1":"B","v2":"C"}`)
	assert.Equal(t, http.StatusConflict, w.Code, "merging behind the head diverges")

	w = do(router, "POST", "/api/history/next", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, decode(t, w)["position"])

	require.Equal(t, http.StatusOK, do(router, "POST", "/api/history/prev", "").Code)
	w = do(router, "POST", "/api/history/truncate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["dropped"])
}

func TestCollapseEndpoints(t *testing.T) {
	router := setupRouter(t, nil)

	assert.Equal(t, http.StatusBadRequest, do(router, "POST", "/api/hyperedges/abc/collapse", "").Code)
	assert.Equal(t, http.StatusNotFound, do(router, "POST", "/api/hyperedges/99/collapse", "").Code)

	w := do(router, "POST", "/api/hyperedges/1/collapse", "")
	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, "A_B", response["result"])
	assert.Equal(t, 1.0, response["merges"])

	w = do(router, "POST", "/api/hyperedges/collapse", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"1": "A_B"}, decode(t, w)["results"])
}

func TestStateAndViewEndpoints(t *testing.T) {
	router := setupRouter(t, nil)

	w := do(router, "GET", "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["vertices"], 3)

	w = do(router, "GET", "/api/view", "")
	require.Equal(t, http.StatusOK, w.Code)
	view := decode(t, w)
	assert.Len(t, view["nodes"], 3)
	assert.Len(t, view["links"], 1)
	assert.Len(t, view["groups"], 1)
}

func TestExportEndpoint(t *testing.T) {
	router := setupRouter(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(router, "POST", "/api/export", "").Code)

	exporter := &fakeExporter{runID: "run-1"}
	router = setupRouter(t, exporter)
	w := do(router, "POST", "/api/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-1", decode(t, w)["run_id"])
	require.NotNil(t, exporter.got)
	assert.Len(t, exporter.got.Vertices, 3)

	exporter = &fakeExporter{err: apperrors.NewExportFailed("run-2", errors.New("connection refused"))}
	router = setupRouter(t, exporter)
	assert.Equal(t, http.StatusBadGateway, do(router, "POST", "/api/export", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	router := setupRouter(t, nil)

	w := do(router, "OPTIONS", "/api/merge", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
