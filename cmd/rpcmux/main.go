// ABOUTME: Main entry point for rpcmux
// ABOUTME: "serve" runs the management API and WebSocket bridge; "call" makes one call into a fresh child

package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/harper/rpcmux/internal/app"
	"github.com/harper/rpcmux/internal/logger"
	"github.com/harper/rpcmux/internal/management"
	"github.com/harper/rpcmux/internal/websocket"
	"github.com/harper/rpcmux/internal/xdg"
)

const usage = `usage: rpcmux [-config path] [-agent "cmd args"] [-verbose] <command>

commands:
  serve                            run the management API and WebSocket bridge
  call [-stream] <method> [params] start the agent, make one call, print the result
`

const shutdownGrace = 5 * time.Second

func main() {
	var opts app.Options
	flag.StringVar(&opts.ConfigPath, "config", xdg.DefaultConfigPath(), "path to config file")
	flag.StringVar(&opts.Agent, "agent", "", "agent command line, overrides agent.command and agent.args")
	flag.BoolVar(&opts.Verbose, "verbose", false, "enable debug logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "serve":
		err = serve(ctx, opts)
	case "call":
		err = call(ctx, opts, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		app.Exit(err)
	}
}

func serve(ctx context.Context, opts app.Options) error {
	a, err := app.New(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := a.Config.Server
	servers := []*http.Server{
		{
			Addr:              net.JoinHostPort(srv.ManagementHost, strconv.Itoa(srv.ManagementPort)),
			Handler:           management.NewServer(a.Config, a.Manager, a.DB),
			ReadHeaderTimeout: 10 * time.Second,
		},
		{
			Addr:              net.JoinHostPort(srv.WebSocketHost, strconv.Itoa(srv.WebSocketPort)),
			Handler:           websocket.NewServer(a.Manager, a.DB),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	errs := make(chan error, len(servers))
	for _, s := range servers {
		go func() {
			logger.Info("listening on %s", s.Addr)
			if err := s.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("listen %s: %w", s.Addr, err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	for _, s := range servers {
		if serr := s.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("shutdown %s: %v", s.Addr, serr)
		}
	}
	return err
}

func call(ctx context.Context, opts app.Options, args []string) error {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	streaming := fs.Bool("stream", false, "make a streaming call and print each chunk")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return fmt.Errorf("call needs <method> [params-json]")
	}

	method := fs.Arg(0)
	var params json.RawMessage
	if fs.NArg() == 2 {
		params = json.RawMessage(fs.Arg(1))
		if !json.Valid(params) {
			return fmt.Errorf("params are not valid JSON: %s", fs.Arg(1))
		}
	}

	a, err := app.New(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Manager.CreateSession(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.Manager.CallTimeout())
	defer cancel()

	if !*streaming {
		result, err := sess.CallSync(ctx, method, params)
		if err != nil {
			return err
		}
		fmt.Println(string(result))
		return nil
	}

	for chunk, err := range sess.Stream(ctx, method, params) {
		if err != nil {
			return err
		}
		fmt.Println(string(chunk))
	}
	return nil
}
