// ABOUTME: JSON-RPC 2.0 message envelope exchanged with the child process
// ABOUTME: One struct covers requests, responses and stream chunks

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the only protocol version written or accepted.
const Version = "2.0"

// Message is a single line on the wire. Which role it plays depends on the
// fields present: Method makes it a request, Result or Error a response.
// Stream and Done are project extensions for chunked responses.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Stream  bool            `json:"stream,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Done    bool            `json:"done,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error makes a remote error usable as a Go error so it can be handed
// straight to callbacks.
func (e *Error) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s (data: %s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
	ServerError    = -32000
)

// HasID reports whether the message carries a usable id. A literal null
// counts as absent.
func (m *Message) HasID() bool {
	return len(m.ID) > 0 && !bytes.Equal(bytes.TrimSpace(m.ID), []byte("null"))
}

// IsNotification is true for messages without an id.
func (m *Message) IsNotification() bool {
	return !m.HasID()
}

// IsResponse is true when the message carries a result or an error.
func (m *Message) IsResponse() bool {
	return m.Result != nil || m.Error != nil
}

// IsRequest is true when the message names a method.
func (m *Message) IsRequest() bool {
	return m.Method != ""
}

// IntID returns the id as an integer. Ids we allocate are always positive
// integers, so anything else cannot correlate with a pending call.
func (m *Message) IntID() (int64, bool) {
	if !m.HasID() {
		return 0, false
	}
	id, err := strconv.ParseInt(string(bytes.TrimSpace(m.ID)), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// RawID renders an integer call id as a raw JSON id.
func RawID(id int64) json.RawMessage {
	return json.RawMessage(strconv.FormatInt(id, 10))
}
