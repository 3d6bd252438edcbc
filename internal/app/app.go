// ABOUTME: Shared startup for the rpcmux binaries: config, logging, recorder and session manager
// ABOUTME: Falls back to built-in defaults when no config file exists and an agent command is given

package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/harper/rpcmux/internal/config"
	"github.com/harper/rpcmux/internal/db"
	"github.com/harper/rpcmux/internal/logger"
	"github.com/harper/rpcmux/internal/session"
)

// Options are the command-line inputs every binary shares.
type Options struct {
	ConfigPath string
	// Agent overrides agent.command and agent.args, split on whitespace.
	Agent   string
	Verbose bool
}

// App holds the long-lived pieces a binary wires together.
type App struct {
	Config  *config.Config
	DB      *db.DB
	Manager *session.Manager
	Exports *session.MethodTable
}

// LoadConfig reads opts.ConfigPath. A missing file is only an error when no
// agent override is given.
func LoadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) || opts.Agent == "" {
			return nil, err
		}
		cfg = config.Default()
	}

	if opts.Agent != "" {
		fields := strings.Fields(opts.Agent)
		cfg.Agent.Command, cfg.Agent.Args = fields[0], fields[1:]
	}
	if opts.Verbose {
		cfg.Logging.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New loads configuration and builds the manager. The caller must Close it.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger.SetVerbose(cfg.Logging.Verbose)

	a := &App{Config: cfg, Exports: session.BuiltinExports()}

	if cfg.Database.Enabled {
		a.DB, err = db.Open(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open traffic database: %w", err)
		}
		logger.Info("recording traffic to %s", cfg.Database.Path)
	}

	spawner, err := session.NewSpawner(ctx, cfg.Agent)
	if err != nil {
		a.closeDB()
		return nil, err
	}

	a.Manager = session.NewManager(session.ManagerConfig{
		Agent:   cfg.Agent,
		Session: cfg.Session,
		Exports: a.Exports,
	}, spawner, a.DB)

	logger.Info("agent: %s %s (mode %s)", cfg.Agent.Command, strings.Join(cfg.Agent.Args, " "), cfg.Agent.Mode)
	return a, nil
}

// Close stops every session, then the recorder.
func (a *App) Close() {
	a.Manager.CloseAll()
	a.closeDB()
}

func (a *App) closeDB() {
	if a.DB == nil {
		return
	}
	if err := a.DB.Close(); err != nil {
		logger.Warn("close traffic database: %v", err)
	}
}

// Exit prints err the way the binaries report fatal errors and exits.
func Exit(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
