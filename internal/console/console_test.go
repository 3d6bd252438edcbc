// ABOUTME: Unit tests for the call console: input parsing, status bar and model updates
// ABOUTME: A fake target answers calls from a goroutine the way a session loop would
package console

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harper/rpcmux/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Command
		wantErr bool
	}{
		{"method only", "host/ping", Command{Method: "host/ping"}, false},
		{"with params", `sum [1,2]`, Command{Method: "sum", Params: json.RawMessage(`[1,2]`)}, false},
		{"object params keep spaces", `echo {"a": 1}`, Command{Method: "echo", Params: json.RawMessage(`{"a": 1}`)}, false},
		{"streaming", "~count 3", Command{Method: "count", Params: json.RawMessage(`3`), Streaming: true}, false},
		{"streaming with space", "~ count", Command{Method: "count", Streaming: true}, false},
		{"empty", "   ", Command{}, true},
		{"tilde only", "~", Command{}, true},
		{"bad params", "echo {nope", Command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInput(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusBarView(t *testing.T) {
	sb := NewStatusBar(200, DefaultTheme, "sess_1234abcd")
	sb.SetState(true, 3, -1)

	view := sb.View()
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "sess_1234abcd")
	assert.Contains(t, view, "pending: 3")

	sb.SetState(false, 0, 2)
	sb.SetStatus("child exited")
	view = sb.View()
	assert.Contains(t, view, "exited 2")
	assert.Contains(t, view, "child exited")
	assert.NotContains(t, view, "sess_1234abcd")
}

func TestGetTheme(t *testing.T) {
	assert.Equal(t, LightTheme, GetTheme("light"))
	assert.Equal(t, DefaultTheme, GetTheme("anything"))
}

type call struct {
	method    string
	params    any
	streaming bool
}

type fakeTarget struct {
	mu      sync.Mutex
	calls   []call
	replies []session.Result
	fail    error
	callErr error
	done    chan struct{}
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{done: make(chan struct{})}
}

func (f *fakeTarget) ID() string { return "sess_fake" }

func (f *fakeTarget) Call(method string, params any, streaming bool, cb session.Callback) (int64, error) {
	if f.callErr != nil {
		return 0, f.callErr
	}
	f.mu.Lock()
	f.calls = append(f.calls, call{method, params, streaming})
	id := int64(len(f.calls))
	replies, fail := f.replies, f.fail
	f.mu.Unlock()

	go func() {
		if fail != nil {
			cb(fail, session.Result{Done: true})
			return
		}
		for _, r := range replies {
			cb(nil, r)
		}
	}()
	return id, nil
}

func (f *fakeTarget) IsRunning() bool       { return true }
func (f *fakeTarget) Pending() int          { return 0 }
func (f *fakeTarget) ExitCode() int         { return -1 }
func (f *fakeTarget) Done() <-chan struct{} { return f.done }

func submit(t *testing.T, m Model, line string) Model {
	t.Helper()
	m.input.SetValue(line)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model)
}

// pump feeds n pending events back through Update.
func pump(t *testing.T, m Model, n int) Model {
	t.Helper()
	for range n {
		next, _ := m.Update(m.waitForEvent()())
		m = next.(Model)
	}
	return m
}

func TestModelSubmitCall(t *testing.T) {
	target := newFakeTarget()
	target.replies = []session.Result{{Value: json.RawMessage(`"pong"`), Done: true}}

	m := NewModel(target, DefaultTheme)
	m = submit(t, m, "host/ping")

	require.Len(t, target.calls, 1)
	assert.Equal(t, "host/ping", target.calls[0].method)
	assert.False(t, target.calls[0].streaming)
	assert.Empty(t, m.input.Value())

	m = pump(t, m, 1)
	require.Len(t, m.lines, 2)
	assert.Contains(t, m.lines[0], "→ host/ping #1 (no params)")
	assert.Contains(t, m.lines[1], `← host/ping "pong"`)
}

func TestModelStreamingCall(t *testing.T) {
	target := newFakeTarget()
	target.replies = []session.Result{
		{Value: json.RawMessage(`1`)},
		{Value: json.RawMessage(`2`), Done: true},
	}

	m := NewModel(target, DefaultTheme)
	m = submit(t, m, "~count 2")
	require.True(t, target.calls[0].streaming)
	assert.Equal(t, json.RawMessage(`2`), target.calls[0].params)

	m = pump(t, m, 2)
	require.Len(t, m.lines, 3)
	assert.Contains(t, m.lines[1], "… count 1")
	assert.Contains(t, m.lines[2], "← count 2")
}

func TestModelCallFailure(t *testing.T) {
	target := newFakeTarget()
	target.fail = errors.New("rpc error -32601: Method not found: nope")

	m := NewModel(target, DefaultTheme)
	m = submit(t, m, "nope")
	m = pump(t, m, 1)

	assert.Contains(t, m.lines[1], "✗ nope rpc error -32601")
}

func TestModelRejectsBadInput(t *testing.T) {
	target := newFakeTarget()
	m := NewModel(target, DefaultTheme)

	m = submit(t, m, "echo {nope")
	assert.Empty(t, target.calls)
	require.Len(t, m.lines, 1)
	assert.Contains(t, m.lines[0], "not valid JSON")

	target.callErr = session.ErrNotRunning
	m = submit(t, m, "host/ping")
	assert.Contains(t, m.lines[1], session.ErrNotRunning.Error())
}

func TestModelExitAndQuit(t *testing.T) {
	target := newFakeTarget()
	m := NewModel(target, DefaultTheme)

	close(target.done)
	next, _ := m.Update(m.waitForExit()())
	m = next.(Model)
	assert.Contains(t, m.lines[0], "child exited (-1)")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModelCloseReleasesCallbacks(t *testing.T) {
	m := NewModel(newFakeTarget(), DefaultTheme)
	for range eventBuffer {
		m.deliver(EventMsg{})
	}

	m.Close()
	assert.NotPanics(t, func() { m.deliver(EventMsg{}) })
}

func TestModelView(t *testing.T) {
	m := NewModel(newFakeTarget(), DefaultTheme)
	assert.Equal(t, "Loading...", m.View())

	next, _ := m.Update(tea.WindowSizeMsg{Width: 200, Height: 10})
	m = next.(Model)
	assert.Equal(t, 8, m.view.Height)
	assert.Contains(t, m.View(), "sess_fake")
}
