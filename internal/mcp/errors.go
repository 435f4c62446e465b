// Package mcp exposes the retrieval engine to assistant clients over the
// Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	cderrors "github.com/uqsoft/crossdock/internal/errors"
)

// MCP error codes. The negative range below -32000 is reserved for
// server-defined conditions.
const (
	// ErrCodeIndexNotReady indicates no snapshot has been published yet.
	ErrCodeIndexNotReady = -32001

	// ErrCodeEmbeddingFailed indicates the embedding provider failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is a protocol error with a JSON-RPC code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var ce *cderrors.CrossdockError
	if errors.As(err, &ce) {
		return mapCrossdockError(ce)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was cancelled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an invalid-params error with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// mapCrossdockError picks the MCP code from the internal error taxonomy.
// The suggestion, when present, rides along in the message so assistant
// clients can surface the recovery step.
func mapCrossdockError(ce *cderrors.CrossdockError) *MCPError {
	message := ce.Message
	if ce.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ce.Message, ce.Suggestion)
	}

	switch ce.Code {
	case cderrors.ErrCodeRegistryUninitialized:
		return &MCPError{Code: ErrCodeIndexNotReady, Message: message}
	case cderrors.ErrCodeEmbedFailed, cderrors.ErrCodeEmbedUnavailable:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	}

	switch ce.Category {
	case cderrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case cderrors.CategoryProvider:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
