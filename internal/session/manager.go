// ABOUTME: Session manager for creating and tracking child process sessions
// ABOUTME: Picks the process or container spawner and records lifecycle in the DB

package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/harper/rpcmux/internal/config"
	"github.com/harper/rpcmux/internal/container"
	"github.com/harper/rpcmux/internal/db"
	"github.com/harper/rpcmux/internal/logger"
	"github.com/harper/rpcmux/internal/process"
)

// closeGrace is how long CloseSession waits after SIGTERM before SIGKILL.
const closeGrace = 10 * time.Second

type ManagerConfig struct {
	Agent   config.AgentConfig
	Session config.SessionConfig
	Exports *MethodTable
}

type Manager struct {
	config   ManagerConfig
	spawner  process.Spawner
	sessions map[string]*Session
	mu       sync.RWMutex
	db       *db.DB
	watchers sync.WaitGroup
}

// NewSpawner builds the spawner for the configured agent mode.
func NewSpawner(ctx context.Context, agent config.AgentConfig) (process.Spawner, error) {
	if agent.Mode == "container" {
		spawner, err := container.NewSpawner(ctx, agent.Container, agent.Environ(), agent.WorkingDir)
		if err != nil {
			return nil, err
		}
		return spawner, nil
	}
	return process.ExecSpawner{Env: agent.Environ(), Dir: agent.WorkingDir}, nil
}

// NewManager creates a manager. database may be nil.
func NewManager(cfg ManagerConfig, spawner process.Spawner, database *db.DB) *Manager {
	return &Manager{
		config:   cfg,
		spawner:  spawner,
		sessions: make(map[string]*Session),
		db:       database,
	}
}

// CallTimeout bounds synchronous calls made on behalf of remote clients.
func (m *Manager) CallTimeout() time.Duration {
	if m.config.Session.CallTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(m.config.Session.CallTimeoutSeconds) * time.Second
}

// CreateSession spawns a new child running the configured agent command.
func (m *Manager) CreateSession(ctx context.Context) (*Session, error) {
	sessionID := "sess_" + uuid.New().String()[:8]
	command := m.config.Agent.Command

	opts := Options{
		ID:          sessionID,
		Exports:     m.config.Exports,
		Spawner:     m.spawner,
		CleanExit:   m.config.Session.CleanExit,
		StderrLimit: m.config.Session.StderrLimitBytes,
	}
	if m.db != nil {
		if err := m.db.CreateSession(sessionID, command); err != nil {
			return nil, fmt.Errorf("failed to log session creation: %w", err)
		}
		opts.Recorder = m.db
	}

	logger.Info("[%s] Creating %s session (command: %s)", sessionID, m.config.Agent.Mode, command)
	sess, err := Start(ctx, command, m.config.Agent.Args, opts)
	if err != nil {
		m.recordClose(sessionID, -1)
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	m.watchers.Add(1)
	go m.watch(sess)

	return sess, nil
}

// watch forgets a session once its child exits, however that happens.
func (m *Manager) watch(sess *Session) {
	defer m.watchers.Done()
	<-sess.Done()

	m.forget(sess.ID())

	m.recordClose(sess.ID(), sess.ExitCode())
	logger.Debug("[%s] Session removed (exit code %d)", sess.ID(), sess.ExitCode())
}

func (m *Manager) forget(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

func (m *Manager) recordClose(sessionID string, exitCode int) {
	if m.db == nil {
		return
	}
	if err := m.db.CloseSession(sessionID, exitCode); err != nil {
		// Log error but don't fail the close operation
		logger.Warn("[%s] failed to log session closure: %v", sessionID, err)
	}
}

// CloseSession stops a session and waits for its child to exit. A child
// that ignores SIGTERM is killed after a grace period. The session is gone
// from GetSession and ListSessions once CloseSession returns.
func (m *Manager) CloseSession(sessionID string) error {
	sess, exists := m.GetSession(sessionID)
	if !exists {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	sess.Stop()
	select {
	case <-sess.Done():
	case <-time.After(closeGrace):
		logger.Warn("[%s] child ignored SIGTERM, killing", sessionID)
		if err := sess.proc.Signal(syscall.SIGKILL); err != nil {
			return fmt.Errorf("failed to kill session %s: %w", sessionID, err)
		}
		<-sess.Done()
	}

	m.forget(sessionID)
	return nil
}

// CloseAll stops every session and waits until each is recorded as closed.
func (m *Manager) CloseAll() {
	for _, sess := range m.ListSessions() {
		if err := m.CloseSession(sess.ID()); err != nil {
			logger.Warn("%v", err)
		}
	}
	m.watchers.Wait()
}

func (m *Manager) GetSession(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, exists := m.sessions[sessionID]
	return sess, exists
}

// ListSessions returns live sessions, oldest first.
func (m *Manager) ListSessions() []*Session {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		list = append(list, sess)
	}
	m.mu.RUnlock()

	slices.SortFunc(list, func(a, b *Session) int {
		return a.StartedAt().Compare(b.StartedAt())
	})
	return list
}
