// ABOUTME: Status bar showing the child's running state, session id and pending calls
// ABOUTME: Pads between the left status and the key hints to fill the terminal width
package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const keyHints = "Enter: call, ~method: stream, PgUp/PgDn: scroll, Esc: quit"

type StatusBar struct {
	width     int
	theme     Theme
	sessionID string
	running   bool
	exitCode  int
	pending   int
	custom    string
}

func NewStatusBar(width int, t Theme, sessionID string) *StatusBar {
	return &StatusBar{width: width, theme: t, sessionID: sessionID, running: true}
}

func (s *StatusBar) SetSize(width int) {
	s.width = width
}

// SetState records the latest child state; exitCode only matters once
// running is false.
func (s *StatusBar) SetState(running bool, pending, exitCode int) {
	s.running = running
	s.pending = pending
	s.exitCode = exitCode
}

// SetStatus shows a transient message in place of the session id.
func (s *StatusBar) SetStatus(status string) {
	s.custom = status
}

func (s *StatusBar) View() string {
	left := fmt.Sprintf("%s %s | pending: %d", s.formatState(), s.formatSession(), s.pending)
	return s.theme.StatusBarStyle().
		Width(max(s.width-2, 0)).
		Render(s.buildStatusLine(left, keyHints))
}

func (s *StatusBar) formatState() string {
	if s.running {
		return "[● running]"
	}
	return fmt.Sprintf("[○ exited %d]", s.exitCode)
}

func (s *StatusBar) formatSession() string {
	if s.custom != "" {
		return s.custom
	}
	return "session: " + s.sessionID
}

func (s *StatusBar) buildStatusLine(left, hints string) string {
	padding := s.width - lipgloss.Width(left) - lipgloss.Width(hints) - 3 - 4
	if padding < 1 {
		padding = 1
	}
	return fmt.Sprintf("%s%s| %s", left, strings.Repeat(" ", padding), hints)
}
