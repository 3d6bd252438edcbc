// ABOUTME: WebSocket bridge giving each connection its own child session
// ABOUTME: Client frames become session calls; replies and stream chunks go back as frames

package websocket

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/harper/rpcmux/internal/db"
	"github.com/harper/rpcmux/internal/errors"
	"github.com/harper/rpcmux/internal/jsonrpc"
	"github.com/harper/rpcmux/internal/logger"
	"github.com/harper/rpcmux/internal/session"
)

// Methods answered by the bridge itself instead of the child.
const (
	MethodSessionInfo   = "session/info"
	MethodSessionExited = "session/exited"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Add proper origin checking
	},
}

type Server struct {
	sessionMgr *session.Manager
	db         *db.DB
}

// NewServer builds the bridge. database may be nil.
func NewServer(mgr *session.Manager, database *db.DB) *Server {
	return &Server{sessionMgr: mgr, db: database}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed: %v", err)
		return
	}

	s.handleConnection(conn)
}

// connection serializes frames to one client. Session callbacks run on the
// session loop, so they only enqueue; a single goroutine writes.
type connection struct {
	conn      *websocket.Conn
	sessionID string
	db        *db.DB
	log       *logger.Scoped

	mu      sync.Mutex
	pending [][]byte
	closed  bool
	wake    chan struct{}
}

func newConnection(conn *websocket.Conn, sessionID string, database *db.DB) *connection {
	return &connection{
		conn:      conn,
		sessionID: sessionID,
		db:        database,
		log:       logger.With("WS:" + sessionID),
		wake:      make(chan struct{}, 1),
	}
}

func (c *connection) send(msg *jsonrpc.Message) {
	data, err := jsonrpc.Encode(msg)
	if err != nil {
		c.log.Warn("failed to encode frame: %v", err)
		data, err = jsonrpc.Encode(jsonrpc.NewErrorResponse(msg.ID, errors.ToJSONRPC(err)))
		if err != nil {
			return
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, data)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *connection) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// writeLoop flushes queued frames until close is called and the queue is empty.
func (c *connection) writeLoop() {
	for range c.wake {
		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		closed := c.closed
		c.mu.Unlock()

		for _, frame := range batch {
			c.record(db.DirectionRelayToClient, frame)
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("websocket write error: %v", err)
				c.conn.Close()
				return
			}
		}
		if closed {
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
			c.conn.Close()
			return
		}
	}
}

func (c *connection) record(direction db.MessageDirection, frame []byte) {
	if c.db == nil {
		return
	}
	if err := c.db.LogMessage(c.sessionID, direction, frame); err != nil {
		c.log.Warn("failed to log %s message: %v", direction, err)
	}
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	// The session belongs to the connection, not to the upgrade request.
	sess, err := s.sessionMgr.CreateSession(context.Background())
	if err != nil {
		logger.Warn("websocket session failed to start: %v", err)
		if data, encErr := jsonrpc.Encode(jsonrpc.NewErrorResponse(nil, errors.NewInternalError(err.Error()))); encErr == nil {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
		conn.Close()
		return
	}

	c := newConnection(conn, sess.ID(), s.db)
	c.log.Info("client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()
	defer func() {
		c.close()
		<-writerDone
	}()

	go func() {
		<-sess.Done()
		exited, err := jsonrpc.NewRequest(0, MethodSessionExited, map[string]interface{}{
			"sessionId": sess.ID(),
			"exitCode":  sess.ExitCode(),
			"stderr":    sess.Stderr(),
		}, false)
		if err == nil {
			c.send(exited)
		}
		c.close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug("websocket read error: %v", err)
			break
		}
		c.record(db.DirectionClientToRelay, frame)
		s.handleFrame(c, sess, frame)
	}

	c.log.Info("client disconnected, closing session")
	if err := s.sessionMgr.CloseSession(sess.ID()); err != nil {
		c.log.Debug("close: %v", err)
	}
}

func (s *Server) handleFrame(c *connection, sess *session.Session, frame []byte) {
	msg, err := jsonrpc.Decode(frame)
	if err != nil {
		c.send(jsonrpc.NewErrorResponse(nil, errors.NewParseError(err.Error())))
		return
	}

	switch {
	case msg.IsResponse():
		// Exported methods are answered by the host, never by clients.
		c.log.Debug("ignoring client response: %s", logger.Preview(frame))
	case msg.Method == "":
		c.send(jsonrpc.NewErrorResponse(msg.ID, errors.NewInvalidRequestError("missing method")))
	case !msg.HasID():
		if err := sess.Notify(msg.Method, msg.Params); err != nil {
			c.log.Debug("notify %s: %v", msg.Method, err)
		}
	case msg.Method == MethodSessionInfo:
		reply, err := jsonrpc.NewResult(msg.ID, map[string]interface{}{
			"sessionId": sess.ID(),
			"command":   sess.Command(),
			"running":   sess.IsRunning(),
			"pending":   sess.Pending(),
		})
		if err == nil {
			c.send(reply)
		}
	default:
		s.relayCall(c, sess, msg)
	}
}

// relayCall forwards a client request. The child sees the session's own id;
// replies carry the client's original id.
func (s *Server) relayCall(c *connection, sess *session.Session, req *jsonrpc.Message) {
	clientID, streaming := req.ID, req.Stream

	_, err := sess.Call(req.Method, req.Params, streaming, func(err error, res session.Result) {
		if err != nil {
			c.send(jsonrpc.NewErrorResponse(clientID, toWireError(sess.ID(), err)))
			return
		}

		var reply *jsonrpc.Message
		var encErr error
		if streaming {
			reply, encErr = jsonrpc.NewChunk(clientID, res.Value, res.Done)
		} else {
			reply, encErr = jsonrpc.NewResult(clientID, res.Value)
		}
		if encErr != nil {
			reply = jsonrpc.NewErrorResponse(clientID, errors.ToJSONRPC(encErr))
		}
		c.send(reply)
	})
	if err != nil {
		c.send(jsonrpc.NewErrorResponse(clientID, toWireError(sess.ID(), err)))
	}
}

func toWireError(sessionID string, err error) *jsonrpc.Error {
	if stderrors.Is(err, session.ErrNotRunning) {
		return errors.NewSessionNotRunningError(sessionID)
	}
	return errors.ToJSONRPC(err)
}
