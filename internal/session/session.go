// ABOUTME: Session multiplexes JSON-RPC calls over one child process's stdio
// ABOUTME: Owns the call id counter, pending registry, and process lifecycle

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/harper/rpcmux/internal/config"
	"github.com/harper/rpcmux/internal/db"
	"github.com/harper/rpcmux/internal/jsonrpc"
	"github.com/harper/rpcmux/internal/logger"
	"github.com/harper/rpcmux/internal/process"
)

// ErrNotRunning is returned for calls made after Stop or after the child
// exited.
var ErrNotRunning = errors.New("session is not running")

// DefaultStderrLimit is how much trailing stderr a session keeps.
const DefaultStderrLimit = 64 * 1024

// Client is the surface hosts program against.
type Client interface {
	Call(method string, params any, streaming bool, cb Callback) (int64, error)
	Stop()
	IsRunning() bool
}

// Recorder receives every line that crosses the stdio boundary.
type Recorder interface {
	LogMessage(sessionID string, direction db.MessageDirection, raw []byte) error
}

type Options struct {
	// ID names the session in logs and recordings. Generated when empty.
	ID string
	// Exports are the methods the child may call. Nil exports nothing.
	Exports *MethodTable
	// Spawner defaults to process.ExecSpawner.
	Spawner process.Spawner
	// CleanExit is config.CleanExitError (default) or config.CleanExitSilent.
	CleanExit   string
	StderrLimit int
	Recorder    Recorder
}

type Session struct {
	id        string
	command   string
	args      []string
	startedAt time.Time
	proc      process.Process
	opts      Options
	log       *logger.Scoped

	running atomic.Bool
	pending atomic.Int64
	exit    atomic.Int64

	callMu sync.Mutex
	nextID int64

	tasks  *queue[func()]
	outbox *queue[[]byte]

	// Loop-owned.
	framer   jsonrpc.Framer
	registry *Registry

	stderrMu sync.Mutex
	stderr   bytes.Buffer

	handlerCtx    context.Context
	cancelHandler context.CancelFunc
	done          chan struct{}
}

var _ Client = (*Session)(nil)

// Start spawns command and begins multiplexing over its stdio.
func Start(ctx context.Context, command string, args []string, opts Options) (*Session, error) {
	if opts.Spawner == nil {
		opts.Spawner = process.ExecSpawner{}
	}
	if opts.ID == "" {
		opts.ID = "sess_" + uuid.New().String()[:8]
	}
	if opts.CleanExit == "" {
		opts.CleanExit = config.CleanExitError
	}
	if opts.StderrLimit <= 0 {
		opts.StderrLimit = DefaultStderrLimit
	}

	proc, err := opts.Spawner.Spawn(ctx, command, args)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", command, err)
	}

	handlerCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:            opts.ID,
		command:       command,
		args:          args,
		startedAt:     time.Now(),
		proc:          proc,
		opts:          opts,
		log:           logger.With(opts.ID),
		tasks:         newQueue[func()](),
		outbox:        newQueue[[]byte](),
		registry:      NewRegistry(),
		handlerCtx:    handlerCtx,
		cancelHandler: cancel,
		done:          make(chan struct{}),
	}
	s.running.Store(true)

	go runTasks(s.tasks)
	s.startStdioBridge()

	s.log.Info("started %s (exports: %d)", command, len(opts.Exports.Names()))
	return s, nil
}

// Call sends method to the child. When cb is nil the request is still
// sent with an id but the reply is ignored. It returns the id used.
func (s *Session) Call(method string, params any, streaming bool, cb Callback) (int64, error) {
	if !s.running.Load() {
		return 0, ErrNotRunning
	}

	req, err := jsonrpc.NewRequest(0, method, params, streaming)
	if err != nil {
		return 0, err
	}

	// Ids are allocated and queued under one lock so the child sees them in order.
	s.callMu.Lock()
	defer s.callMu.Unlock()

	s.nextID++
	id := s.nextID
	req.ID = jsonrpc.RawID(id)

	data, err := jsonrpc.Encode(req)
	if err != nil {
		return 0, err
	}

	mode := ModeSingle
	if streaming {
		mode = ModeStream
	}
	if !s.tasks.push(func() { s.sendCall(id, mode, cb, data) }) {
		return 0, ErrNotRunning
	}
	return id, nil
}

// Notify sends a request without an id. No reply is expected.
func (s *Session) Notify(method string, params any) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	req, err := jsonrpc.NewRequest(0, method, params, false)
	if err != nil {
		return err
	}
	data, err := jsonrpc.Encode(req)
	if err != nil {
		return err
	}
	if !s.tasks.push(func() { s.write(data) }) {
		return ErrNotRunning
	}
	return nil
}

func (s *Session) sendCall(id int64, mode Mode, cb Callback, data []byte) {
	if !s.running.Load() {
		if cb != nil {
			cb(ErrNotRunning, Result{Done: true})
		}
		return
	}
	if cb != nil {
		if err := s.registry.Register(id, mode, cb); err != nil {
			s.log.Error("%v", err)
			cb(err, Result{Done: true})
			return
		}
		s.pending.Store(int64(s.registry.Len()))
	}
	s.write(data)
}

// write queues one line for the child. It does nothing once stopped.
func (s *Session) write(data []byte) {
	if !s.running.Load() {
		s.log.Debug("dropping write, session not running: %s", logger.Preview(data))
		return
	}
	line := make([]byte, len(data)+1)
	copy(line, data)
	line[len(data)] = '\n'
	s.outbox.push(line)
}

// Stop asks the child to terminate. Pending calls are failed once it exits.
func (s *Session) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.log.Info("stopping")
	if err := s.proc.Signal(syscall.SIGTERM); err != nil {
		s.log.Debug("signal failed: %v", err)
	}
}

func (s *Session) IsRunning() bool {
	return s.running.Load()
}

// Done is closed once the child has exited and every pending call has been
// settled.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ExitCode is the child's exit status, or -1 while it is still running or
// when it was killed by a signal.
func (s *Session) ExitCode() int {
	select {
	case <-s.done:
		return int(s.exit.Load())
	default:
		return -1
	}
}

// Stderr returns the tail of what the child wrote to stderr.
func (s *Session) Stderr() string {
	s.stderrMu.Lock()
	defer s.stderrMu.Unlock()
	return s.stderr.String()
}

// Pending returns how many calls await a reply.
func (s *Session) Pending() int {
	return int(s.pending.Load())
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Command() string      { return s.command }
func (s *Session) Args() []string       { return s.args }
func (s *Session) StartedAt() time.Time { return s.startedAt }
