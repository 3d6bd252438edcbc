package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harper/rpcmux/internal/config"
	"github.com/harper/rpcmux/internal/db"
	"github.com/harper/rpcmux/internal/jsonrpc"
	"github.com/harper/rpcmux/internal/process"
	"github.com/harper/rpcmux/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dial starts a bridge whose sessions run cat, so every call loops back to
// the host/ping export.
func dial(t *testing.T, database *db.DB) (*websocket.Conn, *session.Manager) {
	t.Helper()
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	cfg := config.Default()
	cfg.Agent.Command = "cat"

	exports := session.NewMethodTable()
	exports.Register("host/ping", func(context.Context, json.RawMessage) (any, error) {
		return "pong", nil
	})

	mgr := session.NewManager(session.ManagerConfig{
		Agent:   cfg.Agent,
		Session: cfg.Session,
		Exports: exports,
	}, process.ExecSpawner{}, database)
	t.Cleanup(mgr.CloseAll)

	httpSrv := httptest.NewServer(NewServer(mgr, database))
	t.Cleanup(httpSrv.Close)

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	return ws, mgr
}

func roundTrip(t *testing.T, ws *websocket.Conn, frame string) *jsonrpc.Message {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
	return read(t, ws)
}

func read(t *testing.T, ws *websocket.Conn) *jsonrpc.Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	msg, err := jsonrpc.Decode(data)
	require.NoError(t, err)
	return msg
}

func TestBridgeRelaysCallWithClientID(t *testing.T) {
	ws, _ := dial(t, nil)

	reply := roundTrip(t, ws, `{"jsonrpc":"2.0","id":"client-7","method":"host/ping"}`)
	assert.Equal(t, `"client-7"`, string(reply.ID))
	assert.Equal(t, `"pong"`, string(reply.Result))
	assert.Nil(t, reply.Error)
}

func TestBridgeRelaysStreamingCall(t *testing.T) {
	ws, _ := dial(t, nil)

	reply := roundTrip(t, ws, `{"jsonrpc":"2.0","id":3,"method":"host/ping","stream":true}`)
	assert.Equal(t, `3`, string(reply.ID))
	assert.Equal(t, `"pong"`, string(reply.Result))
	assert.True(t, reply.Done)
}

func TestBridgeErrors(t *testing.T) {
	ws, _ := dial(t, nil)

	tests := []struct {
		name     string
		frame    string
		wantID   string
		wantCode int
	}{
		{"malformed frame", `{nope`, "", jsonrpc.ParseError},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, "1", jsonrpc.InvalidRequest},
		{"method not exported", `{"jsonrpc":"2.0","id":2,"method":"host/nothing"}`, "2", jsonrpc.MethodNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := roundTrip(t, ws, tt.frame)
			require.NotNil(t, reply.Error)
			assert.Equal(t, tt.wantCode, reply.Error.Code)
			if tt.wantID != "" {
				assert.Equal(t, tt.wantID, string(reply.ID))
			}
		})
	}
}

func TestBridgeSessionInfo(t *testing.T) {
	ws, mgr := dial(t, nil)

	reply := roundTrip(t, ws, `{"jsonrpc":"2.0","id":1,"method":"session/info"}`)
	var info struct {
		SessionID string `json:"sessionId"`
		Command   string `json:"command"`
		Running   bool   `json:"running"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &info))
	assert.Equal(t, "cat", info.Command)
	assert.True(t, info.Running)

	_, ok := mgr.GetSession(info.SessionID)
	assert.True(t, ok)
}

func TestBridgeReportsSessionExit(t *testing.T) {
	ws, mgr := dial(t, nil)

	reply := roundTrip(t, ws, `{"jsonrpc":"2.0","id":1,"method":"session/info"}`)
	var info struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &info))

	require.NoError(t, mgr.CloseSession(info.SessionID))

	exited := read(t, ws)
	assert.Equal(t, MethodSessionExited, exited.Method)
	assert.False(t, exited.HasID())

	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestBridgeDisconnectClosesSession(t *testing.T) {
	ws, mgr := dial(t, nil)
	roundTrip(t, ws, `{"jsonrpc":"2.0","id":1,"method":"host/ping"}`)
	require.Len(t, mgr.ListSessions(), 1)

	ws.Close()

	assert.Eventually(t, func() bool {
		return len(mgr.ListSessions()) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestBridgeRecordsClientTraffic(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "traffic.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	ws, mgr := dial(t, database)
	reply := roundTrip(t, ws, `{"jsonrpc":"2.0","id":"x","method":"host/ping"}`)
	require.Equal(t, `"pong"`, string(reply.Result))

	sessions := mgr.ListSessions()
	require.Len(t, sessions, 1)

	messages, err := database.GetSessionMessages(sessions[0].ID())
	require.NoError(t, err)

	directions := map[db.MessageDirection]int{}
	for _, m := range messages {
		directions[m.Direction]++
	}
	assert.Equal(t, 1, directions[db.DirectionClientToRelay])
	assert.Equal(t, 1, directions[db.DirectionRelayToClient])
}
