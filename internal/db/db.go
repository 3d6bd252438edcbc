// ABOUTME: SQLite traffic recorder for every line a session exchanges
// ABOUTME: Tracks session lifecycle and classifies JSON-RPC messages

package db

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harper/rpcmux/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

type DB struct {
	conn *sql.DB
}

type MessageDirection string

const (
	DirectionToChild       MessageDirection = "to_child"
	DirectionFromChild     MessageDirection = "from_child"
	DirectionClientToRelay MessageDirection = "client_to_relay"
	DirectionRelayToClient MessageDirection = "relay_to_client"
)

// Open opens or creates the SQLite database
func Open(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database exists per connection.
	conn.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Debug("Database initialized at %s", dbPath)
	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// CreateSession records a newly spawned child.
func (db *DB) CreateSession(sessionID, command string) error {
	_, err := db.conn.Exec(
		"INSERT INTO sessions (id, command) VALUES (?, ?)",
		sessionID, command,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// CloseSession marks a session as closed with the child's exit code.
func (db *DB) CloseSession(sessionID string, exitCode int) error {
	_, err := db.conn.Exec(
		"UPDATE sessions SET closed_at = CURRENT_TIMESTAMP, exit_code = ? WHERE id = ?",
		exitCode, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// classify extracts the message type, method and integer id from a raw
// line. Lines that are not JSON are stored unclassified.
func classify(raw []byte) (messageType, method string, jsonrpcID *int64) {
	var msg struct {
		Method *string          `json:"method"`
		ID     json.RawMessage  `json:"id"`
		Result json.RawMessage  `json:"result"`
		Error  *json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", "", nil
	}

	var id int64
	hasID := len(msg.ID) > 0 && string(msg.ID) != "null"
	if hasID && json.Unmarshal(msg.ID, &id) == nil {
		jsonrpcID = &id
	}

	switch {
	case msg.Method != nil:
		method = *msg.Method
		if hasID {
			messageType = "request"
		} else {
			messageType = "notification"
		}
	case msg.Result != nil || msg.Error != nil:
		messageType = "response"
	}
	return messageType, method, jsonrpcID
}

// LogMessage logs a message with direction and parsed details
func (db *DB) LogMessage(sessionID string, direction MessageDirection, rawMessage []byte) error {
	messageType, method, jsonrpcID := classify(rawMessage)

	_, err := db.conn.Exec(
		`INSERT INTO messages (session_id, direction, message_type, method, jsonrpc_id, raw_message)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, direction, nullString(messageType), nullString(method), jsonrpcID, string(rawMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to log message: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Message represents a logged message
type Message struct {
	ID          int64            `json:"id"`
	SessionID   string           `json:"session_id"`
	Direction   MessageDirection `json:"direction"`
	MessageType string           `json:"message_type,omitempty"`
	Method      string           `json:"method,omitempty"`
	JSONRPCId   *int64           `json:"jsonrpc_id,omitempty"`
	RawMessage  string           `json:"raw_message"`
	Timestamp   time.Time        `json:"timestamp"`
}

// GetSessionMessages retrieves all messages for a session in arrival order.
func (db *DB) GetSessionMessages(sessionID string) ([]Message, error) {
	rows, err := db.conn.Query(
		`SELECT id, session_id, direction, message_type, method, jsonrpc_id, raw_message, timestamp
		 FROM messages WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var jsonrpcID sql.NullInt64
		var method sql.NullString
		var messageType sql.NullString

		err := rows.Scan(&m.ID, &m.SessionID, &m.Direction, &messageType, &method, &jsonrpcID, &m.RawMessage, &m.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		if jsonrpcID.Valid {
			m.JSONRPCId = &jsonrpcID.Int64
		}
		m.Method = method.String
		m.MessageType = messageType.String

		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// Session represents a logged session
type Session struct {
	ID        string     `json:"id"`
	Command   string     `json:"command"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
}

// GetAllSessions retrieves all sessions, newest first.
func (db *DB) GetAllSessions() ([]Session, error) {
	rows, err := db.conn.Query(
		`SELECT id, command, created_at, closed_at, exit_code
		 FROM sessions ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var closedAt sql.NullTime
		var exitCode sql.NullInt64

		if err := rows.Scan(&s.ID, &s.Command, &s.CreatedAt, &closedAt, &exitCode); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		if closedAt.Valid {
			s.ClosedAt = &closedAt.Time
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			s.ExitCode = &code
		}

		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}
