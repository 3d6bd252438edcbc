// ABOUTME: Level-prefixed logging on top of the standard log package
// ABOUTME: Adds session-scoped loggers and message previews for wire traffic

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
)

// PreviewLen is how many bytes of a wire message end up in a log line.
const PreviewLen = 100

var verbose atomic.Bool

// SetVerbose enables or disables verbose (DEBUG) logging
func SetVerbose(v bool) {
	verbose.Store(v)
}

// IsVerbose returns current verbose setting
func IsVerbose() bool {
	return verbose.Load()
}

// SetOutput sets the output destination for logs. nil restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	log.SetOutput(w)
}

func emit(level, prefix, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if prefix != "" {
		log.Printf("[%s] [%s] %s", level, prefix, msg)
		return
	}
	log.Printf("[%s] %s", level, msg)
}

// Debug logs at DEBUG level (only shown when verbose)
func Debug(format string, args ...interface{}) {
	if IsVerbose() {
		emit("DEBUG", "", format, args...)
	}
}

// Info logs at INFO level (always shown)
func Info(format string, args ...interface{}) {
	emit("INFO", "", format, args...)
}

// Warn logs at WARN level (always shown)
func Warn(format string, args ...interface{}) {
	emit("WARN", "", format, args...)
}

// Error logs at ERROR level (always shown)
func Error(format string, args ...interface{}) {
	emit("ERROR", "", format, args...)
}

// Preview shortens a wire message for logging.
func Preview(msg []byte) string {
	if len(msg) > PreviewLen {
		return string(msg[:PreviewLen]) + "..."
	}
	return string(msg)
}

// Scoped tags every line with a fixed prefix, usually a session id.
type Scoped struct {
	prefix string
}

// With returns a logger whose lines carry prefix verbatim, so logged ids
// match the ones the API and the traffic database report.
func With(prefix string) *Scoped {
	return &Scoped{prefix: prefix}
}

func (s *Scoped) Debug(format string, args ...interface{}) {
	if IsVerbose() {
		emit("DEBUG", s.prefix, format, args...)
	}
}

func (s *Scoped) Info(format string, args ...interface{}) {
	emit("INFO", s.prefix, format, args...)
}

func (s *Scoped) Warn(format string, args ...interface{}) {
	emit("WARN", s.prefix, format, args...)
}

func (s *Scoped) Error(format string, args ...interface{}) {
	emit("ERROR", s.prefix, format, args...)
}
