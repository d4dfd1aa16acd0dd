// Package tui implements the Bubble Tea chat window for mqchat.
package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hay-kot/mqchat/internal/chat"
)

const statusInterval = time.Second

// Chatter is the session surface the window drives.
type Chatter interface {
	Send(ctx context.Context, recipient, text string) error
	Chat(ctx context.Context, peer string) (string, error)
	State() chat.State
}

// Options configures the window.
type Options struct {
	Self           string
	Peer           string
	BroadcastLabel string
}

// RecordedMsg delivers a transcript append to the running program.
type RecordedMsg chat.Record

type historyMsg struct {
	peer  string
	lines []string
	err   error
}

type sentMsg struct {
	recipient string
	err       error
}

type statusMsg struct{}

// Model is the chat window: one conversation transcript above an input line.
type Model struct {
	chat Chatter
	opts Options
	keys keyMap

	peer   string
	lines  []string
	status chat.State
	err    error

	viewport viewport.Model
	input    textinput.Model
	help     help.Model

	width  int
	height int
	ready  bool
}

// New creates the window. The conversation starts on opts.Peer, or the
// broadcast label when Peer is empty.
func New(c Chatter, opts Options) Model {
	in := textinput.New()
	in.Placeholder = "message, or /to <peer>"
	in.Prompt = "> "
	in.CharLimit = 4096
	in.Focus()

	peer := opts.Peer
	if peer == "" {
		peer = opts.BroadcastLabel
	}

	return Model{
		chat:     c,
		opts:     opts,
		keys:     defaultKeys(),
		peer:     peer,
		status:   c.State(),
		viewport: viewport.New(0, 0),
		input:    in,
		help:     help.New(),
	}
}

// Peer returns the conversation currently shown.
func (m Model) Peer() string { return m.peer }

// Lines returns the transcript lines currently shown.
func (m Model) Lines() []string { return m.lines }

// Err returns the last error shown in the status bar.
func (m Model) Err() error { return m.err }

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadHistory(m.peer), statusTick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 1)
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 1)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Send):
			return m.submit()
		case key.Matches(msg, m.keys.Broadcast):
			return m.switchPeer(m.opts.BroadcastLabel)
		case key.Matches(msg, m.keys.PageUp, m.keys.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case RecordedMsg:
		if msg.Key == m.peer {
			m.lines = append(m.lines, msg.Line)
			m.refresh()
		}
		return m, nil

	case historyMsg:
		if msg.peer != m.peer {
			return m, nil
		}
		// lines recorded while the read was in flight may be missing from it
		m.lines = mergeTail(msg.lines, m.lines)
		m.err = msg.err
		m.refresh()
		return m, nil

	case sentMsg:
		m.err = msg.err
		return m, nil

	case statusMsg:
		m.status = m.chat.State()
		return m, statusTick()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	m.input.Reset()

	if value == "" {
		return m, nil
	}

	if cmd, ok := strings.CutPrefix(value, "/"); ok {
		fields := strings.Fields(cmd)
		switch {
		case len(fields) == 2 && fields[0] == "to":
			return m.switchPeer(fields[1])
		case len(fields) == 1 && (fields[0] == "quit" || fields[0] == "exit"):
			return m, tea.Quit
		default:
			m.err = fmt.Errorf("unknown command %q", value)
			return m, nil
		}
	}

	m.err = nil
	return m, m.send(m.peer, value)
}

func (m Model) switchPeer(peer string) (tea.Model, tea.Cmd) {
	if peer == "" || peer == m.peer {
		return m, nil
	}

	m.peer = peer
	m.lines = nil
	m.err = nil
	m.refresh()
	return m, m.loadHistory(peer)
}

// refresh re-renders the transcript into the viewport and scrolls to the end.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderLines(m.lines, m.opts.Self, m.width))
	m.viewport.GotoBottom()
}

func (m Model) loadHistory(peer string) tea.Cmd {
	c := m.chat
	return func() tea.Msg {
		text, err := c.Chat(context.Background(), peer)
		switch {
		case errors.Is(err, chat.ErrNoHistory):
			return historyMsg{peer: peer}
		case err != nil:
			return historyMsg{peer: peer, err: err}
		}
		return historyMsg{peer: peer, lines: strings.Split(text, "\n")}
	}
}

// mergeTail appends the lines of recent that history does not already end with.
func mergeTail(history, recent []string) []string {
	for k := min(len(history), len(recent)); k > 0; k-- {
		if slices.Equal(history[len(history)-k:], recent[:k]) {
			return append(history, recent[k:]...)
		}
	}
	return append(history, recent...)
}

func (m Model) send(recipient, text string) tea.Cmd {
	c := m.chat
	return func() tea.Msg {
		err := c.Send(context.Background(), recipient, text)
		return sentMsg{recipient: recipient, err: err}
	}
}

func statusTick() tea.Cmd {
	return tea.Tick(statusInterval, func(time.Time) tea.Msg { return statusMsg{} })
}
