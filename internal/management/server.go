// ABOUTME: Management API for health, live sessions, traffic history and one-shot calls
// ABOUTME: JSON over HTTP; call results use JSON-RPC response envelopes

package management

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/harper/rpcmux/internal/config"
	"github.com/harper/rpcmux/internal/db"
	"github.com/harper/rpcmux/internal/errors"
	"github.com/harper/rpcmux/internal/jsonrpc"
	"github.com/harper/rpcmux/internal/logger"
	"github.com/harper/rpcmux/internal/session"
)

// maxCallBody caps the size of a call request body.
const maxCallBody = 1 << 20

type Server struct {
	config     *config.Config
	sessionMgr *session.Manager
	db         *db.DB
	mux        *http.ServeMux
}

// NewServer builds the management API. database may be nil, in which case
// the history endpoints report 503.
func NewServer(cfg *config.Config, mgr *session.Manager, database *db.DB) *Server {
	s := &Server{
		config:     cfg,
		sessionMgr: mgr,
		db:         database,
		mux:        http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/config", s.handleConfig)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleCloseSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/call", s.handleCall)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/history/{id}", s.handleHistoryMessages)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Enable CORS for web interface
	w.Header().Set("Access-Control-Allow-Origin", "*")
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode management response: %v", err)
	}
}

// writeRPC sends a JSON-RPC envelope. JSON-RPC errors still return 200.
func writeRPC(w http.ResponseWriter, msg *jsonrpc.Message) {
	data, err := jsonrpc.Encode(msg)
	if err != nil {
		data, _ = jsonrpc.Encode(jsonrpc.NewErrorResponse(msg.ID, errors.NewInternalError(err.Error())))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"agent_command": s.config.Agent.Command,
		"agent_mode":    s.config.Agent.Mode,
		"sessions":      len(s.sessionMgr.ListSessions()),
		"recording":     s.db != nil,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config)
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Args      []string  `json:"args,omitempty"`
	Running   bool      `json:"running"`
	Pending   int       `json:"pending"`
	StartedAt time.Time `json:"started_at"`
}

func describe(sess *session.Session) sessionResponse {
	return sessionResponse{
		ID:        sess.ID(),
		Command:   sess.Command(),
		Args:      sess.Args(),
		Running:   sess.IsRunning(),
		Pending:   sess.Pending(),
		StartedAt: sess.StartedAt(),
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	live := s.sessionMgr.ListSessions()
	response := make([]sessionResponse, 0, len(live))
	for _, sess := range live {
		response = append(response, describe(sess))
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	// Sessions outlive the request that created them.
	sess, err := s.sessionMgr.CreateSession(context.Background())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errors.NewInternalError(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, describe(sess))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.sessionMgr.GetSession(id); !ok {
		writeJSON(w, http.StatusNotFound, errors.NewSessionNotFoundError(id))
		return
	}
	if err := s.sessionMgr.CloseSession(id); err != nil {
		writeJSON(w, http.StatusInternalServerError, errors.NewInternalError(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCall relays one JSON-RPC request body to the session's child and
// answers with the child's response. Streaming calls collect every chunk
// into an array result.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallBody))
	if err != nil {
		writeRPC(w, jsonrpc.NewErrorResponse(nil, errors.NewParseError(err.Error())))
		return
	}

	req, err := jsonrpc.Decode(body)
	if err != nil {
		writeRPC(w, jsonrpc.NewErrorResponse(nil, errors.NewParseError(err.Error())))
		return
	}
	if req.Method == "" {
		writeRPC(w, jsonrpc.NewErrorResponse(req.ID, errors.NewInvalidRequestError("missing method")))
		return
	}

	id := r.PathValue("id")
	sess, ok := s.sessionMgr.GetSession(id)
	if !ok {
		writeRPC(w, jsonrpc.NewErrorResponse(req.ID, errors.NewSessionNotFoundError(id)))
		return
	}

	timeout := s.sessionMgr.CallTimeout()
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	var result interface{}
	if req.Stream {
		chunks := []json.RawMessage{}
		for chunk, cerr := range sess.Stream(ctx, req.Method, req.Params) {
			if cerr != nil {
				err = cerr
				break
			}
			chunks = append(chunks, chunk)
		}
		result = chunks
	} else {
		result, err = sess.CallSync(ctx, req.Method, req.Params)
	}

	if err != nil {
		writeRPC(w, jsonrpc.NewErrorResponse(req.ID, s.callError(id, req.Method, err)))
		return
	}

	reply, err := jsonrpc.NewResult(req.ID, result)
	if err != nil {
		reply = jsonrpc.NewErrorResponse(req.ID, errors.ToJSONRPC(err))
	}
	writeRPC(w, reply)
}

func (s *Server) callError(sessionID, method string, err error) *jsonrpc.Error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewCallTimeoutError(method, int(s.sessionMgr.CallTimeout()/time.Second))
	case stderrors.Is(err, session.ErrNotRunning):
		return errors.NewSessionNotRunningError(sessionID)
	default:
		return errors.ToJSONRPC(err)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "recording is disabled", http.StatusServiceUnavailable)
		return
	}

	sessions, err := s.db.GetAllSessions()
	if err != nil {
		http.Error(w, "failed to get sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleHistoryMessages(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "recording is disabled", http.StatusServiceUnavailable)
		return
	}

	messages, err := s.db.GetSessionMessages(r.PathValue("id"))
	if err != nil {
		http.Error(w, "failed to get messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []db.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}
