package export

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"graph-merge/backend/internal/graph"
	apperrors "graph-merge/backend/pkg/errors"
	"graph-merge/backend/pkg/logger"
)

// Repository writes graph snapshots to Neo4j. Every export is tagged with a
// run id so several snapshots can live side by side in one database.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger

	write func(ctx context.Context, query, runID string, rows []map[string]interface{}) error
	clear func(ctx context.Context, runID string) error
}

// NewRepository creates an exporter. An empty database uses the server default.
func NewRepository(driver neo4j.DriverWithContext, database string) *Repository {
	r := &Repository{
		driver:   driver,
		database: database,
		logger:   logger.Named("export"),
	}
	r.write = r.writeBatch
	r.clear = r.ClearRun
	return r
}

// Close closes the Neo4j driver connection
func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// Ping verifies the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

// EnsureSchema creates the uniqueness constraints used by exports
func (r *Repository) EnsureSchema(ctx context.Context) error {
	constraints := []string{
		`CREATE CONSTRAINT vertex_run_id IF NOT EXISTS FOR (v:Vertex) REQUIRE (v.run_id, v.id) IS UNIQUE`,
		`CREATE CONSTRAINT hyperedge_run_id IF NOT EXISTS FOR (h:Hyperedge) REQUIRE (h.run_id, h.id) IS UNIQUE`,
	}

	session := r.session(ctx)
	defer session.Close(ctx)

	for _, query := range constraints {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	r.logger.Info("Export schema ensured", zap.Int("constraints", len(constraints)))
	return nil
}

// ExportState writes st under a fresh run id and returns that id. Vertices
// are written first; edges and hyperedges then go in parallel since both only
// reference vertices. Record attributes are stored as prop_<name> and
// trust_<name> so they never clash with the node's own keys. When any batch
// fails, whatever was written under the run id is removed again.
func (r *Repository) ExportState(ctx context.Context, st *graph.State) (string, error) {
	runID := uuid.New().String()
	if err := r.exportRun(ctx, runID, st); err != nil {
		r.discardRun(ctx, runID)
		return "", apperrors.NewExportFailed(runID, err)
	}

	r.logger.Info("Graph state exported",
		zap.String("run_id", runID),
		zap.Int("vertices", len(st.Vertices)),
		zap.Int("edges", len(st.Edges)),
		zap.Int("hyperedges", len(st.Hyperedges)),
	)
	return runID, nil
}

func (r *Repository) exportRun(ctx context.Context, runID string, st *graph.State) error {
	vertexQuery := `
		UNWIND $rows AS row
		MERGE (v:Vertex {run_id: $runID, id: row.id})
		SET v += row.props,
		    v.trusted = row.trusted,
		    v.completeness = row.completeness,
		    v.last_update = date(row.last_update)
	`
	if err := r.write(ctx, vertexQuery, runID, vertexRows(st)); err != nil {
		return fmt.Errorf("vertices: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		query := `
			UNWIND $rows AS row
			MATCH (a:Vertex {run_id: $runID, id: row.v1})
			MATCH (b:Vertex {run_id: $runID, id: row.v2})
			CREATE (a)-[:LINKED {id: row.id, weight: row.weight, run_id: $runID}]->(b)
		`
		if err := r.write(gctx, query, runID, edgeRows(st)); err != nil {
			return fmt.Errorf("edges: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		query := `
			UNWIND $rows AS row
			MERGE (h:Hyperedge {run_id: $runID, id: row.id})
			SET h.aggregate_weight = row.aggregate_weight
			WITH h, row
			UNWIND range(0, size(row.members) - 1) AS i
			MATCH (v:Vertex {run_id: $runID, id: row.members[i]})
			CREATE (h)-[:CONTAINS {position: i}]->(v)
		`
		if err := r.write(gctx, query, runID, hyperedgeRows(st)); err != nil {
			return fmt.Errorf("hyperedges: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// discardRun removes a partially written run. The caller's context may
// already be done, so cleanup runs detached from its cancellation.
func (r *Repository) discardRun(ctx context.Context, runID string) {
	if err := r.clear(context.WithoutCancel(ctx), runID); err != nil {
		r.logger.Error("Failed to clear partial export run",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return
	}
	r.logger.Warn("Partial export run cleared", zap.String("run_id", runID))
}

// ClearRun deletes everything written by one export
func (r *Repository) ClearRun(ctx context.Context, runID string) error {
	session := r.session(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (n {run_id: $runID})
		DETACH DELETE n
	`
	if _, err := session.Run(ctx, query, map[string]interface{}{"runID": runID}); err != nil {
		return apperrors.NewExportFailed(runID, fmt.Errorf("failed to clear run: %w", err))
	}

	r.logger.Info("Export run cleared", zap.String("run_id", runID))
	return nil
}

// CountRun returns the number of vertices stored under a run id
func (r *Repository) CountRun(ctx context.Context, runID string) (int64, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MATCH (v:Vertex {run_id: $runID}) RETURN count(v) AS n`,
		map[string]interface{}{"runID": runID})
	if err != nil {
		return 0, fmt.Errorf("failed to execute query: %w", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch record: %w", err)
	}
	n, _ := record.Get("n")
	count, _ := n.(int64)
	return count, nil
}

func (r *Repository) session(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: r.database,
	})
}

// writeBatch runs query once in a write transaction with rows bound to $rows.
// Sessions are not safe for concurrent use, so every batch opens its own.
func (r *Repository) writeBatch(ctx context.Context, query, runID string, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	session := r.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, query, map[string]interface{}{
			"runID": runID,
			"rows":  rows,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	return err
}

func vertexRows(st *graph.State) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(st.Vertices))
	for _, id := range st.VertexIDs() {
		v := st.Vertices[id]
		props := make(map[string]interface{}, len(v.Properties))
		for _, name := range v.PropertyNames() {
			p := v.Properties[name]
			props["prop_"+name] = p.Value
			props["trust_"+name] = p.Trust
		}
		rows = append(rows, map[string]interface{}{
			"id":           v.ID,
			"props":        props,
			"trusted":      v.Trusted,
			"completeness": v.Completeness,
			"last_update":  v.LastUpdate.Format(graph.DateLayout),
		})
	}
	return rows
}

func edgeRows(st *graph.State) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(st.Edges))
	for _, id := range st.EdgeIDs() {
		e := st.Edges[id]
		rows = append(rows, map[string]interface{}{
			"id":     e.ID,
			"v1":     e.V1,
			"v2":     e.V2,
			"weight": e.Weight,
		})
	}
	return rows
}

func hyperedgeRows(st *graph.State) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(st.Hyperedges))
	for _, id := range st.HyperedgeIDs() {
		h := st.Hyperedges[id]
		members := make([]interface{}, len(h.Members))
		for i, m := range h.Members {
			members[i] = m
		}
		rows = append(rows, map[string]interface{}{
			"id":               h.ID,
			"aggregate_weight": h.AggregateWeight,
			"members":          members,
		})
	}
	return rows
}
