// ABOUTME: Descriptive JSON-RPC errors with explanations and suggested actions
// ABOUTME: Used by the host-facing surfaces (management API, websocket bridge)

package errors

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/harper/rpcmux/internal/jsonrpc"
)

// ErrorData is the structured payload attached to error responses so that a
// caller (often another agent) can act on the failure without reading logs.
type ErrorData struct {
	ErrorType        string                 `json:"error_type"`
	Explanation      string                 `json:"explanation"`
	PossibleCauses   []string               `json:"possible_causes,omitempty"`
	SuggestedActions []string               `json:"suggested_actions,omitempty"`
	RelevantState    map[string]interface{} `json:"relevant_state,omitempty"`
	Recoverable      bool                   `json:"recoverable"`
	Details          string                 `json:"details,omitempty"`
}

func (d ErrorData) raw() json.RawMessage {
	dataBytes, err := json.Marshal(d)
	if err != nil {
		log.Printf("failed to marshal error data: %v", err)
		dataBytes = []byte("{}")
	}
	return dataBytes
}

func NewSessionNotFoundError(sessionID string) *jsonrpc.Error {
	message := fmt.Sprintf(
		"The session '%s' does not exist. It was never created, it was closed, "+
			"or its child process exited and the session was cleaned up.",
		sessionID,
	)

	data := ErrorData{
		ErrorType:   "session_not_found",
		Explanation: "No live session with this ID is tracked by the multiplexer.",
		PossibleCauses: []string{
			"The session ID was mistyped",
			"The session was closed explicitly",
			"The child process exited and the session was removed",
		},
		SuggestedActions: []string{
			"List live sessions with GET /api/sessions",
			"Open a new connection to get a fresh session",
		},
		RelevantState: map[string]interface{}{
			"session_id": sessionID,
		},
		Recoverable: true,
	}

	return &jsonrpc.Error{
		Code:    jsonrpc.ServerError,
		Message: message,
		Data:    data.raw(),
	}
}

func NewInvalidParamsError(paramName string, expectedType string, receivedValue string) *jsonrpc.Error {
	message := fmt.Sprintf(
		"The parameter '%s' is invalid. I expected a %s but received: %s.",
		paramName, expectedType, receivedValue,
	)

	data := ErrorData{
		ErrorType:   "invalid_params",
		Explanation: "The request contained parameters that don't match the expected shape for this method.",
		PossibleCauses: []string{
			"The parameter is missing or null when it's required",
			"The parameter has the wrong type",
		},
		SuggestedActions: []string{
			"Check that all required parameters are present",
			"Verify parameter types match what's expected",
		},
		RelevantState: map[string]interface{}{
			"param_name":     paramName,
			"expected_type":  expectedType,
			"received_value": receivedValue,
		},
		Recoverable: true,
	}

	return &jsonrpc.Error{
		Code:    jsonrpc.InvalidParams,
		Message: message,
		Data:    data.raw(),
	}
}

func NewParseError(details string) *jsonrpc.Error {
	message := fmt.Sprintf(
		"I couldn't parse the request as valid JSON. Details: %s",
		details,
	)

	data := ErrorData{
		ErrorType:   "parse_error",
		Explanation: "The request body is not valid JSON.",
		PossibleCauses: []string{
			"Missing quotes around strings",
			"Trailing commas in objects or arrays",
			"Incomplete JSON structure",
		},
		SuggestedActions: []string{
			"Validate the JSON before sending it",
			"Send exactly one JSON object per frame",
		},
		Recoverable: true,
		Details:     details,
	}

	return &jsonrpc.Error{
		Code:    jsonrpc.ParseError,
		Message: message,
		Data:    data.raw(),
	}
}

func NewInvalidRequestError(details string) *jsonrpc.Error {
	data := ErrorData{
		ErrorType:   "invalid_request",
		Explanation: "The message carries an id but is neither a request with a method nor a response.",
		PossibleCauses: []string{
			"The method field is empty",
			"A response was sent without result or error",
		},
		SuggestedActions: []string{
			"Send a non-empty method name with every request",
		},
		Recoverable: true,
		Details:     details,
	}

	return &jsonrpc.Error{
		Code:    jsonrpc.InvalidRequest,
		Message: fmt.Sprintf("Invalid request: %s", details),
		Data:    data.raw(),
	}
}

func NewInternalError(details string) *jsonrpc.Error {
	data := ErrorData{
		ErrorType:   "internal_error",
		Explanation: "The multiplexer hit an unexpected error while processing the request.",
		SuggestedActions: []string{
			"Check the multiplexer logs for details",
			"Retry the request",
		},
		Recoverable: false,
		Details:     details,
	}

	return &jsonrpc.Error{
		Code:    jsonrpc.InternalError,
		Message: fmt.Sprintf("internal error: %s", details),
		Data:    data.raw(),
	}
}

func NewSessionNotRunningError(sessionID string) *jsonrpc.Error {
	data := ErrorData{
		ErrorType:   "session_not_running",
		Explanation: "The session was stopped or its child process exited, so no further calls can be sent.",
		SuggestedActions: []string{
			"Check GET /api/history for the exit code",
			"Open a new connection to get a fresh session",
		},
		RelevantState: map[string]interface{}{
			"session_id": sessionID,
		},
		Recoverable: true,
	}

	return &jsonrpc.Error{
		Code:    jsonrpc.ServerError,
		Message: fmt.Sprintf("session '%s' is not running", sessionID),
		Data:    data.raw(),
	}
}

func NewCallTimeoutError(method string, seconds int) *jsonrpc.Error {
	data := ErrorData{
		ErrorType:   "call_timeout",
		Explanation: "The child did not answer before the call timeout. The call may still complete later; its result is discarded.",
		PossibleCauses: []string{
			"The child is busy or blocked",
			"The child never answers this method",
		},
		SuggestedActions: []string{
			"Raise session.call_timeout_seconds",
			"Check the child's stderr for errors",
		},
		RelevantState: map[string]interface{}{
			"method":          method,
			"timeout_seconds": seconds,
		},
		Recoverable: true,
	}

	return &jsonrpc.Error{
		Code:    jsonrpc.ServerError,
		Message: fmt.Sprintf("call to %s timed out after %d seconds", method, seconds),
		Data:    data.raw(),
	}
}
