// ABOUTME: Goroutines pumping bytes between the session loop and child stdio
// ABOUTME: Also watches for process exit and settles pending calls

package session

import (
	"context"
	"io"
	"sync"

	"github.com/harper/rpcmux/internal/config"
	"github.com/harper/rpcmux/internal/db"
	"github.com/harper/rpcmux/internal/errors"
	"github.com/harper/rpcmux/internal/logger"
)

const readChunkSize = 32 * 1024

// startStdioBridge starts the stdin writer, the two pipe readers and the
// exit watcher. Readers only post tasks; all state changes happen on the loop.
func (s *Session) startStdioBridge() {
	go s.pumpStdin()

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.pumpReader(s.proc.Stdout(), s.onStdout)
	}()
	go func() {
		defer readers.Done()
		s.pumpReader(s.proc.Stderr(), s.onStderr)
	}()

	go func() {
		readers.Wait()
		code, err := s.proc.Wait()
		if err != nil {
			s.log.Warn("wait failed: %v", err)
		}
		s.tasks.push(func() { s.onExit(code) })
	}()
}

// pumpStdin drains the outbox into the child's stdin until the session ends.
func (s *Session) pumpStdin() {
	stdin := s.proc.Stdin()
	defer stdin.Close()

	msgCount := 0
	broken := false
	for {
		batch, err := s.outbox.next(context.Background())
		if err != nil {
			s.log.Debug("outbox closed after %d messages", msgCount)
			return
		}
		for _, line := range batch {
			if broken {
				continue
			}
			msgCount++
			s.log.Debug("-> #%d %s", msgCount, logger.Preview(line))
			s.record(db.DirectionToChild, line[:len(line)-1])

			if _, err := stdin.Write(line); err != nil {
				// Keep draining so the loop never stalls; exit handling follows.
				s.log.Warn("error writing to child stdin: %v", err)
				broken = true
			}
		}
	}
}

func (s *Session) pumpReader(r io.Reader, deliver func([]byte)) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.tasks.push(func() { deliver(chunk) })
		}
		if err != nil {
			if err != io.EOF {
				s.log.Debug("read error: %v", err)
			}
			return
		}
	}
}

func (s *Session) onStdout(chunk []byte) {
	for line := range s.framer.Feed(chunk) {
		s.handleLine(line)
	}
}

func (s *Session) onStderr(chunk []byte) {
	s.stderrMu.Lock()
	defer s.stderrMu.Unlock()

	s.stderr.Write(chunk)
	if over := s.stderr.Len() - s.opts.StderrLimit; over > 0 {
		s.stderr.Next(over)
	}
	s.log.Debug("stderr: %s", logger.Preview(chunk))
}

// onExit runs on the loop once both pipes hit EOF and the child was reaped.
func (s *Session) onExit(code int) {
	s.running.Store(false)
	s.exit.Store(int64(code))

	if rest := s.framer.Buffered(); rest > 0 {
		s.log.Debug("discarding %d bytes of unterminated output", rest)
		s.framer.Reset()
	}

	exitErr := &errors.ProcessExitError{SessionID: s.id, Code: code, Stderr: s.Stderr()}
	switch {
	case code == 0 && s.opts.CleanExit == config.CleanExitSilent:
		if n := s.registry.Forget(); n > 0 {
			s.log.Debug("clean exit, forgot %d pending calls", n)
		}
	default:
		if n := s.registry.Drain(exitErr); n > 0 {
			s.log.Info("failed %d pending calls: %v", n, exitErr)
		}
	}
	s.pending.Store(0)

	s.log.Info("child exited with code %d", code)

	s.outbox.close()
	s.tasks.close()
	s.cancelHandler()
	close(s.done)
}

func (s *Session) record(direction db.MessageDirection, raw []byte) {
	if s.opts.Recorder == nil {
		return
	}
	if err := s.opts.Recorder.LogMessage(s.id, direction, raw); err != nil {
		s.log.Warn("failed to record message: %v", err)
	}
}
