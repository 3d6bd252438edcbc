// ABOUTME: Routes each inbound line to the pending registry or an exported method
// ABOUTME: Handlers run off the loop and post their replies back to it

package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harper/rpcmux/internal/db"
	"github.com/harper/rpcmux/internal/errors"
	"github.com/harper/rpcmux/internal/jsonrpc"
	"github.com/harper/rpcmux/internal/logger"
)

// handleLine processes one complete line from the child's stdout.
func (s *Session) handleLine(line string) {
	raw := []byte(line)
	s.record(db.DirectionFromChild, raw)

	msg, err := jsonrpc.Decode(raw)
	if err != nil {
		s.log.Debug("discarding malformed line: %v", err)
		return
	}

	if !msg.HasID() {
		s.log.Debug("ignoring message without id: %s", logger.Preview(raw))
		return
	}

	switch {
	case msg.IsResponse():
		s.handleResponse(msg)
	case msg.IsRequest():
		s.handleRequest(msg)
	default:
		s.log.Debug("rejecting message with neither method nor result: %s", logger.Preview(raw))
		s.sendReply(jsonrpc.NewErrorResponse(msg.ID, errors.NewInvalidRequestError("missing method")), "")
	}
}

func (s *Session) handleResponse(msg *jsonrpc.Message) {
	id, ok := msg.IntID()
	if !ok {
		s.log.Debug("ignoring response with foreign id %s", string(msg.ID))
		return
	}

	var remoteErr error
	if msg.Error != nil {
		remoteErr = msg.Error
	}
	if !s.registry.Resolve(id, remoteErr, msg.Result, msg.Done) {
		s.log.Debug("ignoring response for unknown id %d", id)
		return
	}
	s.pending.Store(int64(s.registry.Len()))
}

func (s *Session) handleRequest(msg *jsonrpc.Message) {
	handler, ok := s.opts.Exports.lookup(msg.Method)
	if !ok {
		notFound := &errors.MethodNotFoundError{Method: msg.Method}
		s.log.Warn("%v", notFound)
		s.sendReply(jsonrpc.NewErrorResponse(msg.ID, notFound.ToJSONRPCError()), msg.Method)
		return
	}

	go s.runHandler(handler, msg)
}

// runHandler executes an exported method on its own goroutine. Panics and
// errors become InternalError replies; the session keeps running either way.
func (s *Session) runHandler(handler StreamHandler, msg *jsonrpc.Message) {
	id, method, streaming := msg.ID, msg.Method, msg.Stream

	emit := func(value any) error {
		if !s.running.Load() {
			return ErrNotRunning
		}
		if !streaming {
			return nil
		}
		chunk, err := jsonrpc.NewChunk(id, value, false)
		if err != nil {
			return err
		}
		if !s.tasks.push(func() { s.sendReply(chunk, method) }) {
			return ErrNotRunning
		}
		return nil
	}

	result, err := callHandler(s.handlerCtx, handler, method, msg.Params, emit)

	var reply *jsonrpc.Message
	if err != nil {
		s.log.Warn("%v", err)
		reply = jsonrpc.NewErrorResponse(id, err.ToJSONRPCError())
	} else {
		var encErr error
		if streaming {
			reply, encErr = jsonrpc.NewChunk(id, result, true)
		} else {
			reply, encErr = jsonrpc.NewResult(id, result)
		}
		if encErr != nil {
			reply = encodeFailure(id, method, encErr)
		}
	}

	s.tasks.push(func() { s.sendReply(reply, method) })
}

func callHandler(ctx context.Context, handler StreamHandler, method string, params json.RawMessage, emit Emitter) (result any, herr *errors.HandlerError) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			result, herr = nil, &errors.HandlerError{Method: method, Err: err, Panic: true}
		}
	}()

	result, err := handler(ctx, params, emit)
	if err != nil {
		return nil, &errors.HandlerError{Method: method, Err: err}
	}
	return result, nil
}

func encodeFailure(id json.RawMessage, method string, err error) *jsonrpc.Message {
	return jsonrpc.NewErrorResponse(id, &jsonrpc.Error{
		Code:    jsonrpc.InternalError,
		Message: fmt.Sprintf("%s: %v", method, err),
	})
}

// sendReply encodes and writes a reply on the loop. A reply that cannot be
// encoded is replaced by an error response; if that fails too it is dropped.
func (s *Session) sendReply(reply *jsonrpc.Message, method string) {
	data, err := jsonrpc.Encode(reply)
	if err != nil {
		s.log.Warn("failed to encode reply for %s: %v", method, err)
		data, err = jsonrpc.Encode(encodeFailure(reply.ID, method, err))
		if err != nil {
			s.log.Error("dropping reply for %s: %v", method, err)
			return
		}
	}
	s.write(data)
}
