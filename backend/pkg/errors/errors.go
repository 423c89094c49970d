package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeGraph represents graph store errors (ids, endpoints, invariants)
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeMerge represents merge and collapse errors
	ErrorTypeMerge ErrorType = "merge"
	// ErrorTypeHistory represents history navigation errors
	ErrorTypeHistory ErrorType = "history"
	// ErrorTypeExport represents snapshot export errors
	ErrorTypeExport ErrorType = "export"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Category returns the error category. Typed errors inherit it through embedding.
func (e *BaseError) Category() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Graph Errors

// ErrDuplicateID is returned when a vertex, edge or hyperedge id already exists
type ErrDuplicateID struct {
	*BaseError
	Kind string
	ID   string
}

func NewDuplicateID(kind, id string) *ErrDuplicateID {
	return &ErrDuplicateID{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("duplicate %s id: %s", kind, id), nil),
		Kind:      kind,
		ID:        id,
	}
}

// ErrDanglingEndpoint is returned when an edge references a vertex that is not in the store
type ErrDanglingEndpoint struct {
	*BaseError
	EdgeID   int64
	VertexID string
}

func NewDanglingEndpoint(edgeID int64, vertexID string) *ErrDanglingEndpoint {
	return &ErrDanglingEndpoint{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("edge %d references missing vertex: %s", edgeID, vertexID), nil),
		EdgeID:    edgeID,
		VertexID:  vertexID,
	}
}

// ErrInvariantViolation is returned when a mutation would break a structural invariant
type ErrInvariantViolation struct {
	*BaseError
	Reason string
}

func NewInvariantViolation(reason string) *ErrInvariantViolation {
	return &ErrInvariantViolation{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("invariant violation: %s", reason), nil),
		Reason:    reason,
	}
}

// ErrSelfLoop is returned when an edge would connect a vertex to itself
type ErrSelfLoop struct {
	*BaseError
	VertexID string
}

func NewSelfLoop(vertexID string) *ErrSelfLoop {
	return &ErrSelfLoop{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("self-loop on vertex: %s", vertexID), nil),
		VertexID:  vertexID,
	}
}

// ErrNotFound is returned when a vertex, edge or hyperedge is not present
type ErrNotFound struct {
	*BaseError
	Kind string
	ID   string
}

func NewNotFound(kind, id string) *ErrNotFound {
	return &ErrNotFound{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("%s not found: %s", kind, id), nil),
		Kind:      kind,
		ID:        id,
	}
}

// History Errors

// ErrExhaustedHistory is returned when navigating past either end of the history
type ErrExhaustedHistory struct {
	*BaseError
	Direction string
	Position  int
}

func NewExhaustedHistory(direction string, position int) *ErrExhaustedHistory {
	return &ErrExhaustedHistory{
		BaseError: NewBaseError(ErrorTypeHistory, fmt.Sprintf("no %s step from position %d", direction, position), nil),
		Direction: direction,
		Position:  position,
	}
}

// ErrHistoryDiverged is returned when a merge is attempted while history is not at its latest step
type ErrHistoryDiverged struct {
	*BaseError
	Position int
	Head     int
}

func NewHistoryDiverged(position, head int) *ErrHistoryDiverged {
	return &ErrHistoryDiverged{
		BaseError: NewBaseError(ErrorTypeHistory, fmt.Sprintf("history at step %d, latest is %d", position, head), nil),
		Position:  position,
		Head:      head,
	}
}

// Export Errors

// ErrExportFailed is returned when writing a snapshot to the graph database fails
type ErrExportFailed struct {
	*BaseError
	RunID string
}

func NewExportFailed(runID string, err error) *ErrExportFailed {
	return &ErrExportFailed{
		BaseError: NewBaseError(ErrorTypeExport, fmt.Sprintf("export run %s failed", runID), err),
		RunID:     runID,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

type categorized interface {
	Category() ErrorType
}

// IsErrorType checks if an error, or any error it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if c, ok := err.(categorized); ok && c.Category() == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsNotFound reports whether err is an ErrNotFound
func IsNotFound(err error) bool {
	var target *ErrNotFound
	return stderrors.As(err, &target)
}

// IsExhausted reports whether err signals navigation past the end of history
func IsExhausted(err error) bool {
	var target *ErrExhaustedHistory
	return stderrors.As(err, &target)
}

// IsDiverged reports whether err signals a merge issued away from the latest history step
func IsDiverged(err error) bool {
	var target *ErrHistoryDiverged
	return stderrors.As(err, &target)
}

// IsRejected reports whether err is a structural rejection from the graph store
// (duplicate id, dangling endpoint, self-loop or invariant violation)
func IsRejected(err error) bool {
	var dup *ErrDuplicateID
	var dangling *ErrDanglingEndpoint
	var loop *ErrSelfLoop
	var inv *ErrInvariantViolation
	return stderrors.As(err, &dup) || stderrors.As(err, &dangling) ||
		stderrors.As(err, &loop) || stderrors.As(err, &inv)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	// Export failures are usually transient database problems
	return IsErrorType(err, ErrorTypeExport)
}
