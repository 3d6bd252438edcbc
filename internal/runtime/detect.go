// ABOUTME: Container runtime detection for Docker, Podman, and Colima
// ABOUTME: Resolves which daemon socket the container spawner should dial

package runtime

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoRuntime means no daemon socket could be found.
var ErrNoRuntime = errors.New("no container runtime found (tried DOCKER_HOST, colima, docker, podman)")

// RuntimeInfo describes one container runtime on this host.
type RuntimeInfo struct {
	Name       string // "docker", "podman", "colima"
	Status     string // "available", "cli-only", "unavailable"
	SocketPath string
	Version    string
}

func (r RuntimeInfo) String() string {
	return fmt.Sprintf("%s (%s) v%s @ %s", r.Name, r.Status, r.Version, r.SocketPath)
}

// Host returns the daemon address in DOCKER_HOST form.
func (r RuntimeInfo) Host() string {
	return "unix://" + r.SocketPath
}

type probe struct {
	name    string
	version []string
	sockets func(home string) []string
}

// probes are listed in preference order.
var probes = []probe{
	{
		name:    "colima",
		version: []string{"colima", "version"},
		sockets: func(home string) []string {
			return []string{filepath.Join(home, ".colima", "default", "docker.sock")}
		},
	},
	{
		name:    "docker",
		version: []string{"docker", "version", "--format", "{{.Client.Version}}"},
		sockets: func(home string) []string {
			return []string{"/var/run/docker.sock", filepath.Join(home, ".docker", "run", "docker.sock")}
		},
	},
	{
		name:    "podman",
		version: []string{"podman", "version", "--format", "{{.Client.Version}}"},
		sockets: func(home string) []string {
			paths := []string{"/var/run/podman/podman.sock"}
			if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
				paths = append(paths, filepath.Join(dir, "podman", "podman.sock"))
			}
			return paths
		},
	},
}

// lookupVersion runs a CLI to learn its version; swapped out in tests.
var lookupVersion = func(argv []string) (string, error) {
	out, err := exec.Command(argv[0], argv[1:]...).Output()
	if err != nil {
		return "", err
	}
	return parseVersion(string(out)), nil
}

// parseVersion accepts plain "24.0.7" and "colima version 0.6.6" style output.
func parseVersion(out string) string {
	fields := strings.Fields(out)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	if len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func detect(p probe, home string) RuntimeInfo {
	info := RuntimeInfo{Name: p.name, Status: "unavailable"}

	version, err := lookupVersion(p.version)
	if err == nil {
		info.Version = version
		info.Status = "cli-only"
	}

	for _, path := range p.sockets(home) {
		if _, err := os.Stat(path); err == nil {
			info.SocketPath = path
			info.Status = "available"
			break
		}
	}
	return info
}

// DetectAll reports every known runtime, available or not.
func DetectAll() []RuntimeInfo {
	home := getHome()
	all := make([]RuntimeInfo, 0, len(probes))
	for _, p := range probes {
		all = append(all, detect(p, home))
	}
	return all
}

// DetectBest returns the first available runtime (colima, docker, podman)
// or nil.
func DetectBest() *RuntimeInfo {
	for _, rt := range DetectAll() {
		if rt.Status == "available" {
			return &rt
		}
	}
	return nil
}

// ResolveDockerHost picks the daemon address: an explicit value wins, then
// DOCKER_HOST, then the best detected socket.
func ResolveDockerHost(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if env := os.Getenv("DOCKER_HOST"); env != "" {
		return env, nil
	}
	if best := DetectBest(); best != nil {
		return best.Host(), nil
	}
	return "", ErrNoRuntime
}

// getHome returns HOME with fallback to current directory
func getHome() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}
