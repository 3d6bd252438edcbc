// ABOUTME: Configuration loading for the rpcmux child process and its surfaces
// ABOUTME: YAML via viper, case-preserving agent env, optional .env merge

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/harper/rpcmux/internal/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Clean-exit policies for sessions whose child exits with status 0 while
// calls are still pending.
const (
	CleanExitError  = "error"
	CleanExitSilent = "silent"
)

type Config struct {
	Agent    AgentConfig    `mapstructure:"agent" json:"agent"`
	Session  SessionConfig  `mapstructure:"session" json:"session"`
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Server   ServerConfig   `mapstructure:"server" json:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" json:"logging"`
}

type AgentConfig struct {
	Command    string            `mapstructure:"command" json:"command"`
	Args       []string          `mapstructure:"args" json:"args"`
	Env        map[string]string `mapstructure:"env" json:"-"`
	EnvFile    string            `mapstructure:"env_file" json:"env_file,omitempty"`
	WorkingDir string            `mapstructure:"working_dir" json:"working_dir,omitempty"`
	Mode       string            `mapstructure:"mode" json:"mode"` // "process" or "container"
	Container  ContainerConfig   `mapstructure:"container" json:"container"`
}

type ContainerConfig struct {
	Image                  string  `mapstructure:"image" json:"image"`
	DockerHost             string  `mapstructure:"docker_host" json:"docker_host,omitempty"`
	NetworkMode            string  `mapstructure:"network_mode" json:"network_mode,omitempty"`
	MemoryLimit            string  `mapstructure:"memory_limit" json:"memory_limit,omitempty"`
	CPULimit               float64 `mapstructure:"cpu_limit" json:"cpu_limit,omitempty"`
	WorkspaceContainerPath string  `mapstructure:"workspace_container_path" json:"workspace_container_path,omitempty"`
	AutoRemove             bool    `mapstructure:"auto_remove" json:"auto_remove"`
}

type SessionConfig struct {
	CleanExit          string `mapstructure:"clean_exit" json:"clean_exit"`
	CallTimeoutSeconds int    `mapstructure:"call_timeout_seconds" json:"call_timeout_seconds"`
	StderrLimitBytes   int    `mapstructure:"stderr_limit_bytes" json:"stderr_limit_bytes"`
}

type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" json:"path"`
}

type ServerConfig struct {
	ManagementHost string `mapstructure:"management_host" json:"management_host"`
	ManagementPort int    `mapstructure:"management_port" json:"management_port"`
	WebSocketHost  string `mapstructure:"websocket_host" json:"websocket_host"`
	WebSocketPort  int    `mapstructure:"websocket_port" json:"websocket_port"`
}

type LoggingConfig struct {
	Verbose bool `mapstructure:"verbose" json:"verbose"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.mode", "process")
	v.SetDefault("agent.container.network_mode", "bridge")
	v.SetDefault("agent.container.workspace_container_path", "/workspace")
	v.SetDefault("agent.container.auto_remove", true)
	v.SetDefault("session.clean_exit", CleanExitError)
	v.SetDefault("session.call_timeout_seconds", 30)
	v.SetDefault("session.stderr_limit_bytes", 64*1024)
	v.SetDefault("database.enabled", false)
	v.SetDefault("server.management_host", "127.0.0.1")
	v.SetDefault("server.management_port", 8090)
	v.SetDefault("server.websocket_host", "127.0.0.1")
	v.SetDefault("server.websocket_port", 8091)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults only; decoding cannot fail.
	_ = v.Unmarshal(&cfg)
	cfg.Database.Path = xdg.DefaultDatabasePath()
	return &cfg
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	// Viper lowercases map keys, but environment variables are case-sensitive.
	// Parse YAML directly to keep agent.env keys as written.
	//nolint:gosec // config file path from validated user input
	data, err := os.ReadFile(path)
	if err == nil {
		var rawConfig struct {
			Agent struct {
				Env map[string]string `yaml:"env"`
			} `yaml:"agent"`
		}
		if yaml.Unmarshal(data, &rawConfig) == nil && len(rawConfig.Agent.Env) > 0 {
			cfg.Agent.Env = rawConfig.Agent.Env
		}
	}

	if cfg.Agent.EnvFile != "" {
		envFile := xdg.ExpandPath(cfg.Agent.EnvFile)
		if !filepath.IsAbs(envFile) {
			envFile = filepath.Join(filepath.Dir(path), envFile)
		}
		if err := mergeEnvFile(&cfg.Agent, envFile); err != nil {
			return nil, err
		}
	}

	cfg.Database.Path = xdg.ExpandPath(cfg.Database.Path)
	if cfg.Database.Path == "" {
		cfg.Database.Path = xdg.DefaultDatabasePath()
	}
	cfg.Agent.WorkingDir = xdg.ExpandPath(cfg.Agent.WorkingDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeEnvFile adds variables from a dotenv file. Values set explicitly in
// agent.env win.
func mergeEnvFile(agent *AgentConfig, path string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("read agent.env_file %s: %w", path, err)
	}
	if agent.Env == nil {
		agent.Env = make(map[string]string, len(vars))
	}
	for k, val := range vars {
		if _, ok := agent.Env[k]; !ok {
			agent.Env[k] = val
		}
	}
	return nil
}

// Validate checks the fields a session cannot start without.
func (c *Config) Validate() error {
	if c.Agent.Mode != "process" && c.Agent.Mode != "container" {
		return fmt.Errorf("invalid agent.mode: %s (must be 'process' or 'container')", c.Agent.Mode)
	}
	if c.Agent.Command == "" {
		return fmt.Errorf("agent.command is required")
	}
	if c.Agent.Mode == "container" && c.Agent.Container.Image == "" {
		return fmt.Errorf("agent.container.image is required in container mode")
	}
	if c.Session.CleanExit != CleanExitError && c.Session.CleanExit != CleanExitSilent {
		return fmt.Errorf("invalid session.clean_exit: %s (must be '%s' or '%s')",
			c.Session.CleanExit, CleanExitError, CleanExitSilent)
	}
	if c.Session.CallTimeoutSeconds < 0 {
		return fmt.Errorf("session.call_timeout_seconds must not be negative")
	}
	return nil
}

// Environ renders agent.env as KEY=VALUE pairs, expanding references to the
// parent environment.
func (a AgentConfig) Environ() []string {
	env := make([]string, 0, len(a.Env))
	for k, v := range a.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, os.ExpandEnv(v)))
	}
	return env
}
