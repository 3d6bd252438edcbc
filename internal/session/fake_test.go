package session

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/harper/rpcmux/internal/jsonrpc"
	"github.com/harper/rpcmux/internal/process"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// fakeChild stands in for a child process. Tests play the child's side:
// they read what the session wrote and write replies to its stdout.
type fakeChild struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	received chan *jsonrpc.Message
	exitCode chan int
	exitOnce sync.Once

	mu      sync.Mutex
	signals []os.Signal
	// ignoreSignals keeps the child alive after Signal.
	ignoreSignals bool
}

func newFakeChild() *fakeChild {
	c := &fakeChild{
		received: make(chan *jsonrpc.Message, 256),
		exitCode: make(chan int, 1),
	}
	c.stdinR, c.stdinW = io.Pipe()
	c.stdoutR, c.stdoutW = io.Pipe()
	c.stderrR, c.stderrW = io.Pipe()

	go func() {
		scanner := bufio.NewScanner(c.stdinR)
		for scanner.Scan() {
			msg, err := jsonrpc.Decode(scanner.Bytes())
			if err != nil {
				continue
			}
			c.received <- msg
		}
	}()
	return c
}

func (c *fakeChild) Stdin() io.WriteCloser { return c.stdinW }
func (c *fakeChild) Stdout() io.Reader     { return c.stdoutR }
func (c *fakeChild) Stderr() io.Reader     { return c.stderrR }

func (c *fakeChild) Wait() (int, error) {
	return <-c.exitCode, nil
}

func (c *fakeChild) Signal(sig os.Signal) error {
	c.mu.Lock()
	c.signals = append(c.signals, sig)
	ignore := c.ignoreSignals
	c.mu.Unlock()
	if !ignore {
		c.exit(-1, "")
	}
	return nil
}

func (c *fakeChild) signalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.signals)
}

// exit writes stderr, closes the child's pipes and reports code.
func (c *fakeChild) exit(code int, stderr string) {
	c.exitOnce.Do(func() {
		go func() {
			if stderr != "" {
				_, _ = io.WriteString(c.stderrW, stderr)
			}
			c.stderrW.Close()
			c.stdoutW.Close()
			c.stdinR.Close()
			c.exitCode <- code
		}()
	})
}

// send writes raw bytes to the session as if the child printed them.
func (c *fakeChild) send(t *testing.T, raw string) {
	t.Helper()
	_, err := io.WriteString(c.stdoutW, raw)
	require.NoError(t, err)
}

// next returns the next message the session wrote to the child.
func (c *fakeChild) next(t *testing.T) *jsonrpc.Message {
	t.Helper()
	select {
	case msg := <-c.received:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a message from the session")
		return nil
	}
}

func (c *fakeChild) expectQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-c.received:
		t.Fatalf("unexpected message to child: %+v", msg)
	case <-time.After(d):
	}
}

type fakeSpawner struct {
	child *fakeChild
	err   error
}

func (s fakeSpawner) Spawn(context.Context, string, []string) (process.Process, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.child, nil
}

func startFake(t *testing.T, opts Options) (*Session, *fakeChild) {
	t.Helper()
	child := newFakeChild()
	opts.Spawner = fakeSpawner{child: child}
	sess, err := Start(context.Background(), "fake-agent", nil, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		child.exit(0, "")
		select {
		case <-sess.Done():
		case <-time.After(waitTimeout):
			t.Error("session did not finish")
		}
	})
	return sess, child
}

type outcome struct {
	err error
	res Result
}

// collect returns a callback that records every invocation.
func collect() (Callback, chan outcome) {
	ch := make(chan outcome, 64)
	return func(err error, res Result) { ch <- outcome{err: err, res: res} }, ch
}

func await(t *testing.T, ch chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for callback")
		return outcome{}
	}
}

// expectNoCallback fails if ch receives anything within d.
func expectNoCallback(t *testing.T, ch chan outcome, d time.Duration) {
	t.Helper()
	select {
	case o := <-ch:
		t.Fatalf("unexpected callback: err=%v value=%s", o.err, o.res.Value)
	case <-time.After(d):
	}
}

func awaitDone(t *testing.T, sess *Session) {
	t.Helper()
	select {
	case <-sess.Done():
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for session exit")
	}
}
