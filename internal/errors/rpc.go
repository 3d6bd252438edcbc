// ABOUTME: Error types produced by a session while multiplexing calls
// ABOUTME: Each converts to the JSON-RPC error sent back over the wire

package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harper/rpcmux/internal/jsonrpc"
)

// ProcessExitError is delivered to every pending callback when the child
// process goes away. Its message is the stderr the child produced.
type ProcessExitError struct {
	SessionID string
	Code      int
	Stderr    string
}

func (e *ProcessExitError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	return fmt.Sprintf("process exited with code %d", e.Code)
}

// Clean reports whether the child exited with status zero.
func (e *ProcessExitError) Clean() bool {
	return e.Code == 0
}

func (e *ProcessExitError) ToJSONRPCError() *jsonrpc.Error {
	data := ErrorData{
		ErrorType:   "process_exited",
		Explanation: "The child process exited while the call was still pending.",
		PossibleCauses: []string{
			"The child crashed",
			"The session was stopped",
		},
		RelevantState: map[string]interface{}{
			"session_id": e.SessionID,
			"exit_code":  e.Code,
		},
		Recoverable: false,
		Details:     e.Stderr,
	}
	return &jsonrpc.Error{
		Code:    jsonrpc.ServerError,
		Message: e.Error(),
		Data:    data.raw(),
	}
}

// MethodNotFoundError is answered when the child calls a method that is not
// exported.
type MethodNotFoundError struct {
	Method string
}

func (e *MethodNotFoundError) Error() string {
	return "Method not found: " + e.Method
}

func (e *MethodNotFoundError) ToJSONRPCError() *jsonrpc.Error {
	return &jsonrpc.Error{
		Code:    jsonrpc.MethodNotFound,
		Message: e.Error(),
	}
}

// HandlerError wraps a failure (returned error or panic) from an exported
// method.
type HandlerError struct {
	Method string
	Err    error
	Panic  bool
}

func (e *HandlerError) Error() string {
	if e.Panic {
		return fmt.Sprintf("%s: panic: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func (e *HandlerError) ToJSONRPCError() *jsonrpc.Error {
	return &jsonrpc.Error{
		Code:    jsonrpc.InternalError,
		Message: e.Error(),
	}
}

// ToJSONRPC converts any error into a wire error. Remote errors pass
// through unchanged; typed errors use their own conversion.
func ToJSONRPC(err error) *jsonrpc.Error {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var conv interface{ ToJSONRPCError() *jsonrpc.Error }
	if errors.As(err, &conv) {
		return conv.ToJSONRPCError()
	}
	var encErr *jsonrpc.EncodeError
	if errors.As(err, &encErr) {
		return NewInvalidParamsError(encErr.What, "JSON-encodable value", encErr.Err.Error())
	}
	return NewInternalError(err.Error())
}
