package loader

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
	"graph-merge/backend/internal/graph"
	apperrors "graph-merge/backend/pkg/errors"
	"graph-merge/backend/pkg/logger"
)

// Record is one source record before it becomes a vertex. Attributes hold
// the raw values; Trust holds per-attribute trust and defaults to verified.
type Record struct {
	ID         string             `yaml:"id"`
	Attributes map[string]string  `yaml:"attributes"`
	Trust      map[string]float64 `yaml:"trust"`
	Trusted    bool               `yaml:"trusted"`
	LastUpdate string             `yaml:"last_update"`
}

// EdgeRecord is a weighted link between two records. A zero id is assigned
// by the store.
type EdgeRecord struct {
	ID     int64   `yaml:"id"`
	V1     string  `yaml:"v1"`
	V2     string  `yaml:"v2"`
	Weight float64 `yaml:"weight"`
}

// HyperedgeRecord groups records believed to describe the same entity
type HyperedgeRecord struct {
	ID      int64    `yaml:"id"`
	Members []string `yaml:"members"`
}

// Fixture is the on-disk description of a starting graph
type Fixture struct {
	Vertices     []Record           `yaml:"vertices"`
	Edges        []EdgeRecord       `yaml:"edges"`
	Hyperedges   []HyperedgeRecord  `yaml:"hyperedges"`
	Completeness map[string]float64 `yaml:"completeness"`
}

// ToVertex converts the record. An empty LastUpdate maps to
// graph.DefaultLastUpdate.
func (r Record) ToVertex() (*graph.Vertex, error) {
	v := graph.NewVertex(r.ID)
	v.Trusted = r.Trusted

	names := make([]string, 0, len(r.Attributes))
	for name := range r.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		trust := graph.TrustVerified
		if t, ok := r.Trust[name]; ok {
			trust = t
		}
		v.SetProperty(graph.Property{Name: name, Value: r.Attributes[name], Trust: trust})
	}

	if r.LastUpdate != "" {
		t, err := time.Parse(graph.DateLayout, r.LastUpdate)
		if err != nil {
			return nil, fmt.Errorf("record %s: invalid last_update %q: %w", r.ID, r.LastUpdate, err)
		}
		v.LastUpdate = t
	}
	return v, nil
}

// ParseFixture decodes a YAML fixture
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &f, nil
}

// ParseCompleteness decodes a YAML map of vertex id to completeness score.
// Scores must lie in [0, 1].
func ParseCompleteness(data []byte) (map[string]float64, error) {
	scores := make(map[string]float64)
	if err := yaml.Unmarshal(data, &scores); err != nil {
		return nil, fmt.Errorf("failed to parse completeness scores: %w", err)
	}
	if err := checkCompleteness(scores); err != nil {
		return nil, err
	}
	return scores, nil
}

// checkCompleteness rejects any score outside [0, 1], reporting the
// smallest offending id
func checkCompleteness(scores map[string]float64) error {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if score := scores[id]; score < 0 || score > 1 {
			return apperrors.NewInvariantViolation(fmt.Sprintf("completeness of %s out of range: %g", id, score))
		}
	}
	return nil
}

// LoadFiles reads a fixture and an optional completeness file concurrently.
// Scores from the completeness file override those inside the fixture.
func LoadFiles(ctx context.Context, fixturePath, completenessPath string) (*Fixture, error) {
	var (
		fixture *Fixture
		scores  map[string]float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := readFile(gctx, fixturePath)
		if err != nil {
			return err
		}
		fixture, err = ParseFixture(data)
		if err != nil {
			return fmt.Errorf("%s: %w", fixturePath, err)
		}
		return nil
	})
	if completenessPath != "" {
		g.Go(func() error {
			data, err := readFile(gctx, completenessPath)
			if err != nil {
				return err
			}
			scores, err = ParseCompleteness(data)
			if err != nil {
				return fmt.Errorf("%s: %w", completenessPath, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(scores) > 0 {
		if fixture.Completeness == nil {
			fixture.Completeness = make(map[string]float64, len(scores))
		}
		for id, score := range scores {
			fixture.Completeness[id] = score
		}
	}

	logger.Named("loader").Info("Fixture loaded",
		zap.String("path", fixturePath),
		zap.Int("vertices", len(fixture.Vertices)),
		zap.Int("edges", len(fixture.Edges)),
		zap.Int("hyperedges", len(fixture.Hyperedges)),
		zap.Int("completeness_scores", len(fixture.Completeness)),
	)
	return fixture, nil
}

// Populate inserts the fixture into store as one atomic unit. Completeness
// scores for unknown vertices are skipped.
func (f *Fixture) Populate(store *graph.Store) error {
	if err := checkCompleteness(f.Completeness); err != nil {
		return err
	}
	log := logger.Named("loader")
	return store.Update(func(tx *graph.Tx) error {
		for _, r := range f.Vertices {
			v, err := r.ToVertex()
			if err != nil {
				return err
			}
			if score, ok := f.Completeness[r.ID]; ok {
				v.Completeness = score
			}
			if err := tx.AddVertex(v); err != nil {
				return err
			}
		}
		for _, e := range f.Edges {
			if _, err := tx.AddEdge(graph.Edge{ID: e.ID, Weight: e.Weight, V1: e.V1, V2: e.V2}); err != nil {
				return err
			}
		}
		for _, h := range f.Hyperedges {
			if _, err := tx.AddHyperedge(&graph.Hyperedge{ID: h.ID, Members: h.Members}); err != nil {
				return err
			}
		}
		for id := range f.Completeness {
			if !tx.HasVertex(id) {
				log.Warn("Completeness score for unknown vertex", zap.String("vertex_id", id))
			}
		}
		return nil
	})
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
