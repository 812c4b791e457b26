// Package toolcall declares the backend that actually runs tools. The
// controller hands it a validated name and argument map and renders the
// result; transport failures are distinguished from tool-level failures so
// the controller can answer with a retry message instead of surfacing
// internals.
package toolcall

import (
	"context"
	"errors"
	"fmt"
)

type (
	// Backend executes a named tool. Arguments have already passed catalog
	// schema validation. A non-nil error of type *TransportError means the
	// call never reached the tool; any other error is a tool failure.
	Backend interface {
		CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error)
	}

	// TransportError marks failures between the controller and the tool
	// host: timeouts, connection resets, serialization faults.
	TransportError struct {
		Tool  string
		Cause error
	}
)

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure calling %q: %v", e.Tool, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Cause }

// Transport wraps err as a TransportError for tool name.
func Transport(tool string, err error) *TransportError {
	return &TransportError{Tool: tool, Cause: err}
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
