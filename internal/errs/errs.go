// Package errs defines the error taxonomy shared by the router, the tool
// handlers and the transports. Each error carries a machine-readable Kind and
// a message that is safe to show to the calling model.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// MethodNotFound indicates an unknown JSON-RPC method.
	MethodNotFound Kind = "method_not_found"
	// UnknownTool indicates a tools/call for a name that is not registered.
	UnknownTool Kind = "unknown_tool"
	// InvalidArguments indicates tool arguments that could not be decoded or failed schema validation.
	InvalidArguments Kind = "invalid_arguments"
	// Configuration indicates a missing argument or credential detected before any network call.
	Configuration Kind = "configuration"
	// Upstream indicates a text-generation provider failure.
	Upstream Kind = "upstream"
	// QueryRuntime indicates a warehouse failure during real execution.
	QueryRuntime Kind = "query_runtime"
	// ConfirmationRejected indicates a run_sql_query call whose confirmation key did not verify.
	ConfirmationRejected Kind = "confirmation_rejected"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *E) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }
func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }

// Newf is New with fmt.Sprintf formatting.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
