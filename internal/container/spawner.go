// ABOUTME: Spawner that runs the child process inside a Docker container
// ABOUTME: Attaches to container stdio and demuxes it into separate streams

package container

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/harper/rpcmux/internal/config"
	"github.com/harper/rpcmux/internal/logger"
	"github.com/harper/rpcmux/internal/process"
	"github.com/harper/rpcmux/internal/runtime"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// dockerAPI is the slice of the Docker client a Spawner needs.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerAttach(ctx context.Context, container string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerStart(ctx context.Context, container string, options container.StartOptions) error
	ContainerWait(ctx context.Context, container string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, container, signal string) error
	ContainerRemove(ctx context.Context, container string, options container.RemoveOptions) error
}

// Spawner starts each child in a fresh container built from one image.
type Spawner struct {
	cfg           config.ContainerConfig
	env           []string
	hostWorkspace string
	docker        dockerAPI
}

var _ process.Spawner = (*Spawner)(nil)

// NewSpawner connects to the Docker daemon and checks the image is present.
// When hostWorkspace is set it is bind-mounted at cfg.WorkspaceContainerPath.
func NewSpawner(ctx context.Context, cfg config.ContainerConfig, env []string, hostWorkspace string) (*Spawner, error) {
	host, err := runtime.ResolveDockerHost(cfg.DockerHost)
	if err != nil {
		return nil, NewDockerUnavailableError("", err)
	}

	dockerClient, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := dockerClient.Ping(pingCtx); err != nil {
		return nil, NewDockerUnavailableError(host, err)
	}
	if _, _, err := dockerClient.ImageInspectWithRaw(pingCtx, cfg.Image); err != nil {
		return nil, NewImageNotFoundError(cfg.Image, err)
	}

	logger.Info("Container spawner ready (image: %s, host: %s)", cfg.Image, host)
	return newSpawner(cfg, env, hostWorkspace, dockerClient), nil
}

func newSpawner(cfg config.ContainerConfig, env []string, hostWorkspace string, docker dockerAPI) *Spawner {
	return &Spawner{cfg: cfg, env: env, hostWorkspace: hostWorkspace, docker: docker}
}

func (s *Spawner) Spawn(ctx context.Context, command string, args []string) (process.Process, error) {
	name := sanitizeContainerName(uuid.New().String()[:8])

	memoryLimit, err := parseMemoryLimit(s.cfg.MemoryLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid memory limit: %w", err)
	}

	containerConfig := &container.Config{
		Image:        s.cfg.Image,
		Cmd:          append([]string{command}, args...),
		Env:          s.env,
		Labels:       buildContainerLabels(command),
		Tty:          false, // must stay false so stdout and stderr are multiplexed
		OpenStdin:    true,
		StdinOnce:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	}

	hostConfig := &container.HostConfig{
		AutoRemove:  s.cfg.AutoRemove,
		NetworkMode: container.NetworkMode(s.cfg.NetworkMode),
		Resources: container.Resources{
			Memory:   memoryLimit,
			NanoCPUs: int64(s.cfg.CPULimit * 1e9),
		},
	}
	if s.hostWorkspace != "" {
		if err := os.MkdirAll(s.hostWorkspace, 0755); err != nil {
			return nil, fmt.Errorf("failed to create workspace directory: %w", err)
		}
		hostConfig.Binds = []string{fmt.Sprintf("%s:%s", s.hostWorkspace, s.cfg.WorkspaceContainerPath)}
		containerConfig.WorkingDir = s.cfg.WorkspaceContainerPath
	}

	resp, err := s.docker.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, NewCreateFailedError(s.cfg.Image, err)
	}

	// Attach and wait before starting so no output or exit is missed.
	hijacked, err := s.docker.ContainerAttach(ctx, resp.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		s.remove(resp.ID)
		return nil, NewAttachFailedError(err)
	}

	statusCh, errCh := s.docker.ContainerWait(context.Background(), resp.ID, container.WaitConditionNextExit)

	if err := s.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		hijacked.Close()
		s.remove(resp.ID)
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	stdout, stderr := demuxStreams(hijacked.Reader)
	logger.Debug("Started container %s (%s) for %s", name, shortID(resp.ID), command)

	return &containerProcess{
		spawner:  s,
		id:       resp.ID,
		hijacked: hijacked,
		stdout:   stdout,
		stderr:   stderr,
		statusCh: statusCh,
		errCh:    errCh,
	}, nil
}

func (s *Spawner) remove(id string) {
	if s.cfg.AutoRemove {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.docker.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		logger.Warn("Failed to remove container %s: %v", shortID(id), err)
	}
}

type containerProcess struct {
	spawner  *Spawner
	id       string
	hijacked types.HijackedResponse
	stdout   io.ReadCloser
	stderr   io.ReadCloser
	statusCh <-chan container.WaitResponse
	errCh    <-chan error
}

func (p *containerProcess) Stdin() io.WriteCloser { return attachStdin{p.hijacked} }
func (p *containerProcess) Stdout() io.Reader     { return p.stdout }
func (p *containerProcess) Stderr() io.Reader     { return p.stderr }

func (p *containerProcess) Wait() (int, error) {
	defer p.hijacked.Close()

	select {
	case status := <-p.statusCh:
		if !p.spawner.cfg.AutoRemove {
			p.spawner.remove(p.id)
		}
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("container wait: %s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	case err := <-p.errCh:
		return -1, fmt.Errorf("container wait: %w", err)
	}
}

func (p *containerProcess) Signal(sig os.Signal) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.spawner.docker.ContainerKill(ctx, p.id, signalName(sig))
}

// attachStdin closes only the write half of the attach connection so the
// child sees EOF while its output keeps flowing.
type attachStdin struct {
	hijacked types.HijackedResponse
}

func (w attachStdin) Write(p []byte) (int, error) { return w.hijacked.Conn.Write(p) }
func (w attachStdin) Close() error                { return w.hijacked.CloseWrite() }

func signalName(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		return strconv.Itoa(int(s))
	}
	return "SIGTERM"
}

var invalidNameChars = regexp.MustCompile(`[^a-z0-9_-]`)

func sanitizeContainerName(id string) string {
	return "rpcmux-" + invalidNameChars.ReplaceAllString(strings.ToLower(id), "-")
}

func buildContainerLabels(command string) map[string]string {
	return map[string]string{
		"managed-by": "rpcmux",
		"command":    command,
		"created-at": time.Now().UTC().Format(time.RFC3339),
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func parseMemoryLimit(limit string) (int64, error) {
	if limit == "" {
		return 0, nil
	}

	// Accepts values like "512m" or "1g".
	var value float64
	var unit string
	if _, err := fmt.Sscanf(limit, "%f%s", &value, &unit); err != nil {
		return 0, err
	}

	switch unit {
	case "k", "K":
		return int64(value * 1024), nil
	case "m", "M":
		return int64(value * 1024 * 1024), nil
	case "g", "G":
		return int64(value * 1024 * 1024 * 1024), nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}
