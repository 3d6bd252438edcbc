package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
agent:
  command: "/usr/local/bin/test-agent"
  args: ["--stdio"]
server:
  management_port: 9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/test-agent", cfg.Agent.Command)
	assert.Equal(t, []string{"--stdio"}, cfg.Agent.Args)
	assert.Equal(t, 9000, cfg.Server.ManagementPort)

	// Defaults
	assert.Equal(t, "process", cfg.Agent.Mode)
	assert.Equal(t, CleanExitError, cfg.Session.CleanExit)
	assert.Equal(t, 30, cfg.Session.CallTimeoutSeconds)
	assert.Equal(t, 64*1024, cfg.Session.StderrLimitBytes)
	assert.Equal(t, 8091, cfg.Server.WebSocketPort)
}

func TestLoadConfig_EnvCasePreservation(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
agent:
  command: "agent"
  env:
    ANTHROPIC_API_KEY: "${ANTHROPIC_API_KEY}"
    lowercase_var: "test"
    MixedCase_Var: "test2"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	for _, key := range []string{"ANTHROPIC_API_KEY", "lowercase_var", "MixedCase_Var"} {
		_, ok := cfg.Agent.Env[key]
		assert.True(t, ok, "expected key %q with exact case", key)
	}
	assert.Len(t, cfg.Agent.Env, 3)
	assert.Equal(t, "${ANTHROPIC_API_KEY}", cfg.Agent.Env["ANTHROPIC_API_KEY"])
}

func TestLoadConfig_EnvFileMerge(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.env"),
		[]byte("TOKEN=from-file\nLEVEL=debug\n"), 0600))

	path := writeConfig(t, dir, `
agent:
  command: "agent"
  env_file: "agent.env"
  env:
    LEVEL: "info"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Agent.Env["TOKEN"])
	assert.Equal(t, "info", cfg.Agent.Env["LEVEL"], "explicit env wins over env_file")
}

func TestLoadConfig_MissingEnvFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
agent:
  command: "agent"
  env_file: "nope.env"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent.env_file")
}

func TestLoad_XDGExpansion(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("XDG_DATA_HOME", "")

	path := writeConfig(t, t.TempDir(), `
agent:
  command: "/bin/echo"
database:
  path: "$XDG_DATA_HOME/db.sqlite"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/.local/share/db.sqlite", cfg.Database.Path)
}

func TestLoad_NonXDGPathUnchanged(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
agent:
  command: "/bin/echo"
database:
  path: "/absolute/path/db.sqlite"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/absolute/path/db.sqlite", cfg.Database.Path)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"agent.mode": `
agent:
  command: "x"
  mode: "vm"
`,
		"agent.command": `
agent:
  args: ["x"]
`,
		"agent.container.image": `
agent:
  command: "x"
  mode: "container"
`,
		"session.clean_exit": `
agent:
  command: "x"
session:
  clean_exit: "maybe"
`,
	}

	for key, content := range cases {
		t.Run(key, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestEnviron(t *testing.T) {
	t.Setenv("RPCMUX_TEST_HOME", "/srv")
	agent := AgentConfig{Env: map[string]string{"ROOT": "${RPCMUX_TEST_HOME}/app"}}

	env := agent.Environ()
	require.Len(t, env, 1)
	assert.True(t, strings.HasPrefix(env[0], "ROOT=/srv/app"))
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "process", cfg.Agent.Mode)
	assert.NotEmpty(t, cfg.Database.Path)
	assert.Equal(t, CleanExitError, cfg.Session.CleanExit)
}
