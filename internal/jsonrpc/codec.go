// ABOUTME: Encoding and decoding of single JSON-RPC lines
// ABOUTME: Wraps failures in EncodeError/DecodeError so callers can tell them apart

package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// EncodeError means a value could not be serialized to JSON.
type EncodeError struct {
	What string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.What, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError means an inbound line was not valid JSON-RPC.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes a message without the trailing newline.
func Encode(msg *Message) ([]byte, error) {
	if msg.JSONRPC == "" {
		msg.JSONRPC = Version
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, &EncodeError{What: "message", Err: err}
	}
	return data, nil
}

// Decode parses one line into a message.
func Decode(line []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, &DecodeError{Line: string(line), Err: err}
	}
	return &msg, nil
}

// marshalValue turns an arbitrary payload into raw JSON. Raw messages pass
// through untouched once they are known to be valid.
func marshalValue(what string, v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if raw == nil {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(raw) {
			return nil, &EncodeError{What: what, Err: fmt.Errorf("invalid raw JSON %q", raw)}
		}
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &EncodeError{What: what, Err: err}
	}
	return data, nil
}

// NewRequest builds a request. A zero id produces a notification.
func NewRequest(id int64, method string, params any, stream bool) (*Message, error) {
	msg := &Message{JSONRPC: Version, Method: method, Stream: stream}
	if raw, ok := params.(json.RawMessage); ok && raw == nil {
		params = nil
	}
	if params != nil {
		raw, err := marshalValue("params", params)
		if err != nil {
			return nil, err
		}
		msg.Params = raw
	}
	if id > 0 {
		msg.ID = RawID(id)
	}
	return msg, nil
}

// NewResult builds a success response echoing the request id verbatim.
func NewResult(id json.RawMessage, result any) (*Message, error) {
	raw, err := marshalValue("result", result)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewChunk builds one piece of a streamed response.
func NewChunk(id json.RawMessage, value any, done bool) (*Message, error) {
	msg, err := NewResult(id, value)
	if err != nil {
		return nil, err
	}
	msg.Done = done
	return msg, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id json.RawMessage, rpcErr *Error) *Message {
	return &Message{JSONRPC: Version, ID: id, Error: rpcErr}
}
