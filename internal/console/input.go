// ABOUTME: Parses console input lines of the form "[~]<method> [params-json]"
// ABOUTME: A leading ~ marks a streaming call; params must be valid JSON when present
package console

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Command is one parsed console line.
type Command struct {
	Method    string
	Params    json.RawMessage
	Streaming bool
}

// ParseInput splits a console line into method and params. Params are
// optional and passed through as raw JSON.
func ParseInput(line string) (Command, error) {
	line = strings.TrimSpace(line)
	var cmd Command

	if rest, ok := strings.CutPrefix(line, "~"); ok {
		cmd.Streaming = true
		line = strings.TrimSpace(rest)
	}
	if line == "" {
		return Command{}, fmt.Errorf("missing method name")
	}

	method, params, _ := strings.Cut(line, " ")
	cmd.Method = method

	params = strings.TrimSpace(params)
	if params != "" {
		if !json.Valid([]byte(params)) {
			return Command{}, fmt.Errorf("params for %s are not valid JSON: %s", method, params)
		}
		cmd.Params = json.RawMessage(params)
	}
	return cmd, nil
}
