// ABOUTME: Entry point for the rpcmux call console
// ABOUTME: Starts one agent session and runs the Bubbletea console against it
package main

import (
	"context"
	"flag"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harper/rpcmux/internal/app"
	"github.com/harper/rpcmux/internal/console"
	"github.com/harper/rpcmux/internal/logger"
	"github.com/harper/rpcmux/internal/xdg"
)

type options struct {
	app.Options
	theme   string
	logFile string
}

func main() {
	var opts options
	flag.StringVar(&opts.ConfigPath, "config", xdg.DefaultConfigPath(), "path to config file")
	flag.StringVar(&opts.Agent, "agent", "", "agent command line, overrides agent.command and agent.args")
	flag.BoolVar(&opts.Verbose, "verbose", false, "enable debug logging")
	flag.StringVar(&opts.theme, "theme", "default", "color theme: default or light")
	flag.StringVar(&opts.logFile, "log", "", "write logs to this file instead of discarding them")
	flag.Parse()

	if err := run(opts); err != nil {
		app.Exit(err)
	}
}

func run(opts options) error {
	// Log lines would tear the alt screen.
	var logOut io.Writer = io.Discard
	if opts.logFile != "" {
		f, err := os.OpenFile(xdg.ExpandPath(opts.logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	logger.SetOutput(logOut)

	a, err := app.New(context.Background(), opts.Options)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Manager.CreateSession(context.Background())
	if err != nil {
		return err
	}

	m := console.NewModel(sess, console.GetTheme(opts.theme))
	defer m.Close()

	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
