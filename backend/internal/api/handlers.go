package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"graph-merge/backend/internal/graph"
	"graph-merge/backend/internal/services"
	apperrors "graph-merge/backend/pkg/errors"
)

// Exporter writes a graph snapshot somewhere durable and returns a run id
type Exporter interface {
	ExportState(ctx context.Context, st *graph.State) (string, error)
}

// Handler serves the consolidation service over HTTP
type Handler struct {
	svc      *services.ConsolidationService
	exporter Exporter
	logger   *zap.Logger
}

// NewHandler creates a handler. exporter may be nil, in which case the
// export route answers 503.
func NewHandler(svc *services.ConsolidationService, exporter Exporter, log *zap.Logger) *Handler {
	return &Handler{
		svc:      svc,
		exporter: exporter,
		logger:   log,
	}
}

type mergeRequest struct {
	V1 string `json:"v1" binding:"required"`
	V2 string `json:"v2" binding:"required"`
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetState returns the whole current graph
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.State())
}

// GetView returns the render-ready projection
func (h *Handler) GetView(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.View())
}

// GetHistory lists recorded steps and the current position
func (h *Handler) GetHistory(c *gin.Context) {
	pos, n := h.svc.Position()
	c.JSON(http.StatusOK, gin.H{
		"position": pos,
		"length":   n,
		"steps":    h.svc.Steps(),
	})
}

// Merge merges two vertices
func (h *Handler) Merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	step, err := h.svc.Merge(req.V1, req.V2)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, step)
}

// Collapse collapses one hyperedge
func (h *Handler) Collapse(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hyperedge id"})
		return
	}

	final, steps, err := h.svc.Collapse(id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"hyperedge_id": id,
		"result":       final,
		"merges":       len(steps),
	})
}

// CollapseAll collapses every hyperedge
func (h *Handler) CollapseAll(c *gin.Context) {
	results, err := h.svc.CollapseAll()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Next moves history forward
func (h *Handler) Next(c *gin.Context) {
	if err := h.svc.Next(); err != nil {
		h.writeError(c, err)
		return
	}
	h.GetHistory(c)
}

// Prev moves history back
func (h *Handler) Prev(c *gin.Context) {
	if err := h.svc.Prev(); err != nil {
		h.writeError(c, err)
		return
	}
	h.GetHistory(c)
}

// Truncate drops the redo tail of history
func (h *Handler) Truncate(c *gin.Context) {
	dropped := h.svc.Truncate()
	c.JSON(http.StatusOK, gin.H{"dropped": dropped})
}

// Export writes the current graph to the configured exporter
func (h *Handler) Export(c *gin.Context) {
	if h.exporter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Export is not configured"})
		return
	}

	runID, err := h.exporter.ExportState(c.Request.Context(), h.svc.State())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsExhausted(err), apperrors.IsDiverged(err):
		return http.StatusConflict
	case apperrors.IsRejected(err):
		return http.StatusUnprocessableEntity
	case apperrors.IsErrorType(err, apperrors.ErrorTypeExport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
