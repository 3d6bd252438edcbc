// ABOUTME: Blocking and iterator conveniences built on the callback Call API
// ABOUTME: Context only bounds the wait; it never cancels the remote call

package session

import (
	"context"
	"encoding/json"
	"iter"
)

type callOutcome struct {
	value json.RawMessage
	err   error
}

// CallSync sends a single-shot call and waits for its reply. It must not be
// called from inside a Callback.
func (s *Session) CallSync(ctx context.Context, method string, params any) (json.RawMessage, error) {
	out := make(chan callOutcome, 1)
	_, err := s.Call(method, params, false, func(err error, res Result) {
		out <- callOutcome{value: res.Value, err: err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case o := <-out:
		return o.value, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		// The exit drain may already have delivered the outcome.
		select {
		case o := <-out:
			return o.value, o.err
		default:
			return nil, ErrNotRunning
		}
	}
}

// Stream sends a streaming call and yields each chunk as it arrives. The
// final chunk (done=true) is yielded too. An error ends the sequence.
// Breaking out of the loop stops delivery to the caller; the remote call
// keeps running until the child finishes it.
func (s *Session) Stream(ctx context.Context, method string, params any) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		chunks := newQueue[callOutcome]()
		_, err := s.Call(method, params, true, func(err error, res Result) {
			chunks.push(callOutcome{value: res.Value, err: err})
			if err != nil || res.Done {
				chunks.close()
			}
		})
		if err != nil {
			yield(nil, err)
			return
		}
		defer chunks.close()

		waitCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		// Exit drains before closing done, so anything delivered is already queued.
		go func() {
			select {
			case <-s.done:
				cancel()
			case <-waitCtx.Done():
			}
		}()

		for {
			batch, err := chunks.next(waitCtx)
			if err == errQueueClosed {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
				} else {
					yield(nil, ErrNotRunning)
				}
				return
			}
			for _, o := range batch {
				if o.err != nil {
					yield(nil, o.err)
					return
				}
				if !yield(o.value, nil) {
					return
				}
			}
		}
	}
}
