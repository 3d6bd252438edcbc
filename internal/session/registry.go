// ABOUTME: Pending-call registry correlating response ids with callbacks
// ABOUTME: Handles single-shot and streaming calls and the exit drain

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrDuplicateID is returned when an id is registered twice.
var ErrDuplicateID = errors.New("call id already pending")

// Mode selects how often a callback fires.
type Mode int

const (
	// ModeSingle callbacks fire exactly once.
	ModeSingle Mode = iota
	// ModeStream callbacks fire once per chunk until Done or an error.
	ModeStream
)

func (m Mode) String() string {
	if m == ModeStream {
		return "stream"
	}
	return "single"
}

// Result is what a callback receives alongside its error. Single-shot calls
// always see Done set.
type Result struct {
	Value json.RawMessage
	Done  bool
}

// Callback receives the outcome of a call. It runs on the session loop and
// must not block; CallSync and Stream must not be used from inside it.
type Callback func(err error, res Result)

type pendingCall struct {
	mode Mode
	cb   Callback
}

// Registry maps outstanding call ids to callbacks. It is not safe for
// concurrent use; a session touches it only from its loop.
type Registry struct {
	calls map[int64]pendingCall
}

func NewRegistry() *Registry {
	return &Registry{calls: make(map[int64]pendingCall)}
}

// Register adds a pending call.
func (r *Registry) Register(id int64, mode Mode, cb Callback) error {
	if cb == nil {
		return fmt.Errorf("register id %d: nil callback", id)
	}
	if _, exists := r.calls[id]; exists {
		return fmt.Errorf("register id %d: %w", id, ErrDuplicateID)
	}
	r.calls[id] = pendingCall{mode: mode, cb: cb}
	return nil
}

// Resolve delivers a response. Unknown ids are ignored and report false,
// which covers late duplicates and chunks after a stream finished.
func (r *Registry) Resolve(id int64, err error, value json.RawMessage, done bool) bool {
	call, ok := r.calls[id]
	if !ok {
		return false
	}

	if call.mode == ModeSingle || done || err != nil {
		delete(r.calls, id)
		done = true
	}
	call.cb(err, Result{Value: value, Done: done})
	return true
}

// Drain fails every pending call with err and empties the registry. Calls
// are failed in id order. It returns how many callbacks ran.
func (r *Registry) Drain(err error) int {
	ids := r.ids()
	calls := r.calls
	r.calls = make(map[int64]pendingCall)

	for _, id := range ids {
		call := calls[id]
		res := Result{Done: true}
		if call.mode == ModeStream {
			res.Value = json.RawMessage(`""`)
		}
		call.cb(err, res)
	}
	return len(ids)
}

// Forget empties the registry without invoking any callback.
func (r *Registry) Forget() int {
	n := len(r.calls)
	r.calls = make(map[int64]pendingCall)
	return n
}

// Len returns the number of pending calls.
func (r *Registry) Len() int {
	return len(r.calls)
}

// Has reports whether id is pending.
func (r *Registry) Has(id int64) bool {
	_, ok := r.calls[id]
	return ok
}

func (r *Registry) ids() []int64 {
	ids := make([]int64, 0, len(r.calls))
	for id := range r.calls {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
