package merge

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"graph-merge/backend/internal/graph"
	"graph-merge/backend/internal/history"
	apperrors "graph-merge/backend/pkg/errors"
)

// CollapseHyperedge folds every member of a hyperedge into one vertex by
// merging left to right: member[0] with member[1], the result with
// member[2], and so on. Because property tie-breaks depend on argument order,
// a different member order can give a different final vertex.
//
// The whole fold is one atomic unit. It returns the surviving vertex id and
// the step of every pairwise merge, in order. A hyperedge that already has a
// single member is left untouched.
func (e *Engine) CollapseHyperedge(id int64) (string, []*history.Step, error) {
	var (
		final string
		steps []*history.Step
	)
	err := e.store.Update(func(tx *graph.Tx) error {
		var err error
		final, steps, err = collapseInTx(tx, id)
		return err
	})
	if err != nil {
		e.logger.Warn("Hyperedge collapse rejected", zap.Int64("hyperedge_id", id), zap.Error(err))
		return "", nil, fmt.Errorf("collapse hyperedge %d: %w", id, err)
	}

	if len(steps) > 0 {
		e.logger.Info("Hyperedge collapsed",
			zap.Int64("hyperedge_id", id),
			zap.String("result", final),
			zap.Int("merges", len(steps)),
		)
	}
	return final, steps, nil
}

// CollapseAll collapses every hyperedge with more than one member, in
// ascending id order. On failure it returns what was collapsed so far; those
// collapses stay applied.
func (e *Engine) CollapseAll() (map[int64]string, []*history.Step, error) {
	results := make(map[int64]string)
	var steps []*history.Step

	for _, hid := range e.store.HyperedgeIDs() {
		final, collapsed, err := e.CollapseHyperedge(hid)
		if err != nil {
			return results, steps, err
		}
		results[hid] = final
		steps = append(steps, collapsed...)
	}
	return results, steps, nil
}

func collapseInTx(tx *graph.Tx, id int64) (string, []*history.Step, error) {
	h, ok := tx.Hyperedge(id)
	if !ok {
		return "", nil, apperrors.NewNotFound("hyperedge", strconv.FormatInt(id, 10))
	}
	if len(h.Members) == 0 {
		return "", nil, apperrors.NewInvariantViolation(fmt.Sprintf("hyperedge %d has no members", id))
	}

	acc := h.Members[0]
	steps := make([]*history.Step, 0, len(h.Members)-1)
	for _, member := range h.Members[1:] {
		step, err := mergeInTx(tx, acc, member)
		if err != nil {
			return "", nil, err
		}
		steps = append(steps, step)
		acc = step.Result.ID
	}

	after, _ := tx.Hyperedge(id)
	if len(after.Members) != 1 || after.Members[0] != acc {
		return "", nil, apperrors.NewInvariantViolation(
			fmt.Sprintf("hyperedge %d kept members %v after collapse", id, after.Members))
	}
	return acc, steps, nil
}
