// ABOUTME: Process facility used by sessions to run their child
// ABOUTME: Spawner/Process interfaces plus the os/exec implementation

package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// Process is a running child with piped stdio.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the child exits and returns its exit status. A child
	// killed by a signal reports -1. Callers must finish reading Stdout and
	// Stderr before calling Wait.
	Wait() (int, error)
	Signal(sig os.Signal) error
}

// Spawner starts child processes.
type Spawner interface {
	Spawn(ctx context.Context, command string, args []string) (Process, error)
}

// ExecSpawner runs children as local processes.
type ExecSpawner struct {
	// Env is appended to the parent environment.
	Env []string
	Dir string
}

func (s ExecSpawner) Spawn(ctx context.Context, command string, args []string) (Process, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(), s.Env...)
	if s.Dir != "" {
		cmd.Env = append(cmd.Env, "PWD="+s.Dir)
	}
	// On context cancellation ask politely first, like Stop does.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", command, err)
	}

	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Stderr() io.Reader     { return p.stderr }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ExitCode is -1 when the child was terminated by a signal.
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (p *execProcess) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	return p.cmd.Process.Signal(sig)
}
