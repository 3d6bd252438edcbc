// ABOUTME: XDG base directory lookup for rpcmux config, data and cache
// ABOUTME: Also expands $XDG_* and ~ prefixes found in config paths

package xdg

import (
	"os"
	"path/filepath"
	"strings"
)

// AppName is the directory created under each XDG base.
const AppName = "rpcmux"

type base struct {
	env      string
	fallback []string
}

var (
	configBase = base{env: "XDG_CONFIG_HOME", fallback: []string{".config"}}
	dataBase   = base{env: "XDG_DATA_HOME", fallback: []string{".local", "share"}}
	cacheBase  = base{env: "XDG_CACHE_HOME", fallback: []string{".cache"}}
)

func (b base) dir() string {
	if v := os.Getenv(b.env); v != "" {
		return v
	}
	return filepath.Join(append([]string{getHome()}, b.fallback...)...)
}

// ConfigHome returns ~/.config/rpcmux or respects XDG_CONFIG_HOME.
func ConfigHome() string {
	return filepath.Join(configBase.dir(), AppName)
}

// DataHome returns ~/.local/share/rpcmux or respects XDG_DATA_HOME.
func DataHome() string {
	return filepath.Join(dataBase.dir(), AppName)
}

// CacheHome returns ~/.cache/rpcmux or respects XDG_CACHE_HOME.
func CacheHome() string {
	return filepath.Join(cacheBase.dir(), AppName)
}

// DefaultConfigPath is where the CLI looks when -config is not given.
func DefaultConfigPath() string {
	return filepath.Join(ConfigHome(), "config.yaml")
}

// DefaultDatabasePath is the traffic log location used when the config
// leaves database.path empty.
func DefaultDatabasePath() string {
	return filepath.Join(DataHome(), "traffic.db")
}

// ExpandPath expands a leading ~ or $XDG_* variable. The variables expand to
// the base directories, not the app-specific ones.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(getHome(), path[2:])
	}

	for _, b := range []base{dataBase, configBase, cacheBase} {
		prefix := "$" + b.env
		if strings.HasPrefix(path, prefix) {
			return strings.Replace(path, prefix, b.dir(), 1)
		}
	}

	return path
}

// getHome returns HOME, falling back to the working directory.
func getHome() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}
