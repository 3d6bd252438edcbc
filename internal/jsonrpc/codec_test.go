package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	req, err := NewRequest(1, "echo", map[string]int{"a": 1}, false)
	require.NoError(t, err)

	data, err := Encode(req)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, "echo", got.Method)
	assert.JSONEq(t, `{"a":1}`, string(got.Params))
	assert.False(t, got.Stream)
	id, ok := got.IntID()
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestStreamFlagRoundTrip(t *testing.T) {
	req, err := NewRequest(9, "tail", nil, true)
	require.NoError(t, err)
	data, err := Encode(req)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, got.Stream)
	assert.Nil(t, got.Params)
}

func TestNewRequestWithoutIDIsNotification(t *testing.T) {
	req, err := NewRequest(0, "log", "hello", false)
	require.NoError(t, err)
	assert.True(t, req.IsNotification())
}

func TestEncodeUnserializableParams(t *testing.T) {
	_, err := NewRequest(1, "bad", map[string]any{"ch": make(chan int)}, false)
	require.Error(t, err)

	var encErr *EncodeError
	assert.True(t, errors.As(err, &encErr))
	assert.Equal(t, "params", encErr.What)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"jsonrpc":"2.0",`))
	require.Error(t, err)

	var decErr *DecodeError
	assert.True(t, errors.As(err, &decErr))
}

func TestResultEchoesRawID(t *testing.T) {
	msg, err := NewResult(json.RawMessage(`"req-1"`), []string{"x"})
	require.NoError(t, err)
	data, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"req-1","result":["x"]}`, string(data))
}

func TestNilResultEncodesNull(t *testing.T) {
	msg, err := NewResult(RawID(3), nil)
	require.NoError(t, err)
	data, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":3,"result":null}`, string(data))
}

func TestChunkCarriesDone(t *testing.T) {
	msg, err := NewChunk(RawID(4), "tail", true)
	require.NoError(t, err)
	data, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":4,"result":"tail","done":true}`, string(data))
}

func TestNewRequestNilRawParamsOmitted(t *testing.T) {
	req, err := NewRequest(1, "ping", json.RawMessage(nil), false)
	require.NoError(t, err)
	assert.Nil(t, req.Params)
}

func TestInvalidRawPayloadRejected(t *testing.T) {
	_, err := NewResult(RawID(1), json.RawMessage(`{"broken"`))
	var encErr *EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "result", encErr.What)
}
