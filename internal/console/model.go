// ABOUTME: Bubbletea model for the interactive call console over one session
// ABOUTME: Typed lines become calls; replies, chunks and errors scroll in the viewport
package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/harper/rpcmux/internal/session"
)

// Target is the slice of a session the console drives.
type Target interface {
	ID() string
	Call(method string, params any, streaming bool, cb session.Callback) (int64, error)
	IsRunning() bool
	Pending() int
	ExitCode() int
	Done() <-chan struct{}
}

type eventKind int

const (
	eventOutbound eventKind = iota
	eventInbound
	eventFailure
)

// EventMsg carries one line of call traffic into the model.
type EventMsg struct {
	kind   eventKind
	method string
	text   string
	done   bool
}

// ExitedMsg reports that the child process is gone.
type ExitedMsg struct {
	Code int
}

// eventBuffer bounds how far callbacks may run ahead of the UI.
const eventBuffer = 256

type Model struct {
	target Target
	theme  Theme
	width  int
	height int

	input  textinput.Model
	view   viewport.Model
	status *StatusBar

	events chan EventMsg
	closed chan struct{}
	lines  []string
}

func NewModel(target Target, th Theme) Model {
	ti := textinput.New()
	ti.Placeholder = "method [params-json]   (prefix ~ to stream)"
	ti.Prompt = "> "
	ti.Focus()

	return Model{
		target: target,
		theme:  th,
		input:  ti,
		view:   viewport.New(80, 20),
		status: NewStatusBar(80, th, target.ID()),
		events: make(chan EventMsg, eventBuffer),
		closed: make(chan struct{}),
	}
}

// Close releases callbacks still waiting to deliver events once the program
// has stopped reading them. Call it once, after the program returns.
func (m Model) Close() {
	close(m.closed)
}

func (m Model) deliver(ev EventMsg) {
	select {
	case m.events <- ev:
	case <-m.closed:
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent(), m.waitForExit())
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m Model) waitForExit() tea.Cmd {
	return func() tea.Msg {
		<-m.target.Done()
		return ExitedMsg{Code: m.target.ExitCode()}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateComponentSizes()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.onSubmit(), nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		}

	case EventMsg:
		m = m.appendEvent(msg)
		m.refreshStatus()
		return m, m.waitForEvent()

	case ExitedMsg:
		m.status.SetStatus(fmt.Sprintf("child exited with code %d", msg.Code))
		m.refreshStatus()
		m = m.appendLine(m.theme.ErrorStyle().Render(fmt.Sprintf("-- child exited (%d)", msg.Code)))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateComponentSizes() {
	// One line each for the input and the status bar.
	m.view.Width = m.width
	m.view.Height = max(m.height-2, 1)
	m.input.Width = max(m.width-4, 1)
	m.status.SetSize(m.width)
}

func (m *Model) refreshStatus() {
	m.status.SetState(m.target.IsRunning(), m.target.Pending(), m.target.ExitCode())
}

// onSubmit turns the input line into a call. Callbacks run on the session
// loop and only hand events to the UI through the channel.
func (m Model) onSubmit() Model {
	line := m.input.Value()
	if strings.TrimSpace(line) == "" {
		return m
	}
	m.input.Reset()

	cmd, err := ParseInput(line)
	if err != nil {
		return m.appendLine(m.theme.ErrorStyle().Render("! " + err.Error()))
	}

	method, deliver := cmd.Method, m.deliver
	id, err := m.target.Call(cmd.Method, cmd.Params, cmd.Streaming, func(err error, res session.Result) {
		if err != nil {
			deliver(EventMsg{kind: eventFailure, method: method, text: err.Error(), done: true})
			return
		}
		deliver(EventMsg{kind: eventInbound, method: method, text: string(res.Value), done: res.Done})
	})
	if err != nil {
		return m.appendLine(m.theme.ErrorStyle().Render("! " + err.Error()))
	}

	m.refreshStatus()
	return m.appendEvent(EventMsg{
		kind:   eventOutbound,
		method: method,
		text:   fmt.Sprintf("#%d %s", id, formatParams(cmd.Params)),
		done:   !cmd.Streaming,
	})
}

func formatParams(params []byte) string {
	if len(params) == 0 {
		return "(no params)"
	}
	return string(params)
}

func (m Model) appendEvent(ev EventMsg) Model {
	switch ev.kind {
	case eventOutbound:
		return m.appendLine(m.theme.OutboundStyle().Render(fmt.Sprintf("→ %s %s", ev.method, ev.text)))
	case eventFailure:
		return m.appendLine(m.theme.ErrorStyle().Render(fmt.Sprintf("✗ %s %s", ev.method, ev.text)))
	default:
		marker := "←"
		if !ev.done {
			marker = "…"
		}
		return m.appendLine(m.theme.InboundStyle().Render(fmt.Sprintf("%s %s %s", marker, ev.method, ev.text)))
	}
}

func (m Model) appendLine(line string) Model {
	m.lines = append(m.lines, line)
	m.view.SetContent(strings.Join(m.lines, "\n"))
	m.view.GotoBottom()
	return m
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	return lipgloss.JoinVertical(
		lipgloss.Top,
		m.view.View(),
		m.theme.InputStyle().Width(m.width).Render(m.input.View()),
		m.status.View(),
	)
}
