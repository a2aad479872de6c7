package mcp

import (
	"errors"
	"fmt"

	"github.com/dshills/hybridrank/internal/indexer"
	"github.com/dshills/hybridrank/internal/session"
	"github.com/dshills/hybridrank/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeEmptyQuery         = -32004 // Neither a query nor a vector was given
	ErrorCodeSessionNotFound    = -32005 // Unknown session ID
	ErrorCodeNoEmbedding        = -32006 // Node cannot become an anchor
)

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// invalidParam reports a missing or malformed argument
func invalidParam(param, reason string) error {
	return newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("invalid %s", param), map[string]interface{}{
		"param":  param,
		"reason": reason,
	})
}

// toMCPError maps domain errors to protocol codes
func toMCPError(message string, err error) error {
	data := map[string]interface{}{"error": err.Error()}

	switch {
	case errors.Is(err, types.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query or vector is required", data)
	case errors.Is(err, types.ErrConflictingModes),
		errors.Is(err, types.ErrUnknownReranker),
		errors.Is(err, types.ErrInvalidMode),
		errors.Is(err, types.ErrDimensionMismatch),
		errors.Is(err, types.ErrEmptyInput),
		errors.Is(err, session.ErrUnknownResult):
		return newMCPError(ErrorCodeInvalidParams, message, data)
	case errors.Is(err, indexer.ErrIndexInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", data)
	case errors.Is(err, session.ErrSessionNotFound):
		return newMCPError(ErrorCodeSessionNotFound, "session not found", data)
	case errors.Is(err, session.ErrNoEmbedding):
		return newMCPError(ErrorCodeNoEmbedding, "node has no embedding", data)
	default:
		return newMCPError(ErrorCodeInternalError, message, data)
	}
}
