package types

import "errors"

// Domain errors shared across the ranking pipeline
var (
	// Precondition violations
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyInput        = errors.New("empty input")
	ErrNonFiniteVector   = errors.New("vector has NaN or infinite components")

	// Request errors
	ErrEmptyQuery       = errors.New("query vector and query text are both empty")
	ErrInvalidMode      = errors.New("invalid filter mode")
	ErrUnknownReranker  = errors.New("unknown reranker type")
	ErrConflictingModes = errors.New("denseOnly and sparseOnly are mutually exclusive")

	// Validation errors
	ErrMissingNode           = errors.New("result has no node")
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidSource         = errors.New("source must be dense or sparse")
	ErrEmptyContent          = errors.New("content cannot be empty")
	ErrInvalidWordCount      = errors.New("word count must be >= 0")
	ErrInvalidHierarchyLevel = errors.New("hierarchy level must be >= 0")
)
