// ABOUTME: Table of methods a session exports to its child process
// ABOUTME: Plain handlers return one result, stream handlers may emit chunks first

package session

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
)

// Handler answers one request from the child. The returned value becomes
// the result; a returned error becomes an error response.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Emitter sends one intermediate chunk of a streamed reply. It fails once
// the session is no longer running.
type Emitter func(value any) error

// StreamHandler answers a request that may be streamed. Values passed to
// emit go out as chunks with done=false when the child asked for a stream
// and are dropped otherwise. The returned value is always the final reply.
type StreamHandler func(ctx context.Context, params json.RawMessage, emit Emitter) (any, error)

// MethodTable holds exported methods. It is safe for concurrent use and may
// be shared by several sessions.
type MethodTable struct {
	mu      sync.RWMutex
	methods map[string]StreamHandler
}

func NewMethodTable() *MethodTable {
	return &MethodTable{methods: make(map[string]StreamHandler)}
}

// Register exports a plain handler under name, replacing any previous one.
func (t *MethodTable) Register(name string, h Handler) {
	t.RegisterStream(name, func(ctx context.Context, params json.RawMessage, _ Emitter) (any, error) {
		return h(ctx, params)
	})
}

// RegisterStream exports a streaming handler under name.
func (t *MethodTable) RegisterStream(name string, h StreamHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.methods[name] = h
}

func (t *MethodTable) lookup(name string) (StreamHandler, bool) {
	if t == nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.methods[name]
	return h, ok
}

// Has reports whether name is exported.
func (t *MethodTable) Has(name string) bool {
	_, ok := t.lookup(name)
	return ok
}

// Names lists exported methods in sorted order.
func (t *MethodTable) Names() []string {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	names := make([]string, 0, len(t.methods))
	for name := range t.methods {
		names = append(names, name)
	}
	t.mu.RUnlock()
	slices.Sort(names)
	return names
}
