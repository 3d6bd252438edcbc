// ABOUTME: Built-in host methods every child can call back into
// ABOUTME: host/ping, host/log (child log lines into the host log) and host/time

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harper/rpcmux/internal/logger"
)

type logParams struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type timeResult struct {
	RFC3339 string `json:"rfc3339"`
	Unix    int64  `json:"unix"`
}

// now is swapped in tests.
var now = time.Now

// BuiltinExports returns a fresh table holding the host methods. Callers may
// register more methods on it.
func BuiltinExports() *MethodTable {
	t := NewMethodTable()

	t.Register("host/ping", func(context.Context, json.RawMessage) (any, error) {
		return "pong", nil
	})

	t.Register("host/log", func(_ context.Context, params json.RawMessage) (any, error) {
		var p logParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("params must be {level, message}: %w", err)
		}
		log := logger.With("CHILD")
		switch p.Level {
		case "debug":
			log.Debug("%s", p.Message)
		case "", "info":
			log.Info("%s", p.Message)
		case "warn":
			log.Warn("%s", p.Message)
		case "error":
			log.Error("%s", p.Message)
		default:
			return nil, fmt.Errorf("unknown level %q", p.Level)
		}
		return nil, nil
	})

	t.Register("host/time", func(context.Context, json.RawMessage) (any, error) {
		ts := now().UTC()
		return timeResult{RFC3339: ts.Format(time.RFC3339), Unix: ts.Unix()}, nil
	})

	return t
}
