// Package sessionui is a terminal harness that drives the event bus
// and session controllers interactively, generalizing the teacher's
// bubbletea CLI (internal/cli/ui) from a single fixed ASIC-pipeline
// dialog to the three device session prompts this core actually emits
// (spec §4.5, §6 session_prompt event). It keeps the teacher's
// explicit-view-state-constant style (spec §9: "no coroutines... state
// plus message-passing") instead of nesting tea.Cmd callbacks.
package sessionui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"keepkeycore/internal/events"
	"keepkeycore/internal/queue"
	"keepkeycore/internal/session"
)

// View states, mirroring the teacher's PrimaryMenuView/AsicConfigView/
// ChatView/ProgressView constant block.
const (
	ViewIdle = iota
	ViewPinMatrix
	ViewPassphrase
	ViewButton
	ViewRecovery
	ViewLog
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFD700")).
			Padding(0, 2).
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#4B5563")).
			Padding(0, 2)

	promptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2)
)

// pinMatrixLayout is the fixed scrambled-to-position layout the UI
// shows the user (spec §4.5.1): positions 1..9 arranged
//
//	7 8 9
//	4 5 6
//	1 2 3
var pinMatrixLayout = [3][3]int{{7, 8, 9}, {4, 5, 6}, {1, 2, 3}}

// Model is the bubbletea model. It consumes events.Event values off a
// channel and holds the device's *queue.Worker only to submit
// queue.SessionReplyInput values on the worker's reply lane.
type Model struct {
	deviceID string
	worker   *queue.Worker
	events   <-chan events.Event

	view      int
	sessionID string
	input     string
	pinEntry  []int
	log       []string

	recoveryCursor session.RecoveryPrompt
	err            error
	done           bool
}

// New builds a Model that watches sub for prompts on a single device
// and replies through w.
func New(deviceID string, w *queue.Worker, sub <-chan events.Event) Model {
	return Model{deviceID: deviceID, worker: w, events: sub}
}

// eventMsg wraps a bus event for tea.Msg delivery.
type eventMsg events.Event

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m.onEvent(events.Event(msg))
	case tea.KeyMsg:
		return m.onKey(msg)
	}
	return m, nil
}

func (m Model) onEvent(ev events.Event) (tea.Model, tea.Cmd) {
	if ev.DeviceID != m.deviceID {
		return m, m.waitForEvent()
	}
	switch ev.Kind {
	case events.KindSessionPrompt:
		p := ev.Payload.(events.SessionPromptPayload)
		m.sessionID = p.SessionID
		m.input = ""
		m.pinEntry = nil
		if prompt, ok := p.Prompt.(session.Prompt); ok {
			switch prompt.Kind {
			case session.PromptPinMatrix:
				m.view = ViewPinMatrix
			case session.PromptPassphrase:
				m.view = ViewPassphrase
			case session.PromptButton:
				m.view = ViewButton
			case session.PromptRecoveryCharacter:
				m.view = ViewRecovery
				if prompt.Recovery != nil {
					m.recoveryCursor = *prompt.Recovery
				}
			}
		}
		m.log = append(m.log, fmt.Sprintf("prompt: %s", ev.Kind))
	case events.KindSessionCompleted:
		m.view = ViewIdle
		m.log = append(m.log, "session complete")
	case events.KindDeviceStateChanged:
		p := ev.Payload.(events.DeviceStateChangedPayload)
		m.log = append(m.log, fmt.Sprintf("status: ready=%v %s", p.Ready, p.Message))
	case events.KindRecoveryReconnect:
		m.log = append(m.log, "device reconnected, recovery session resumed")
	}
	return m, m.waitForEvent()
}

func (m Model) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.done = true
		return m, tea.Quit
	}

	switch m.view {
	case ViewPinMatrix:
		return m.onPinKey(msg)
	case ViewPassphrase:
		return m.onPassphraseKey(msg)
	case ViewButton:
		return m.onButtonKey(msg)
	case ViewRecovery:
		return m.onRecoveryKey(msg)
	}
	return m, nil
}

func (m Model) onPinKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "backspace":
		if n := len(m.pinEntry); n > 0 {
			m.pinEntry = m.pinEntry[:n-1]
		}
	case "enter":
		m.reply(queue.SessionReplyInput{SessionID: m.sessionID, PinPositions: m.pinEntry})
		m.view = ViewIdle
	default:
		if pos, ok := positionForKey(msg.String()); ok {
			m.pinEntry = append(m.pinEntry, pos)
		}
	}
	return m, nil
}

func positionForKey(key string) (int, bool) {
	for _, row := range pinMatrixLayout {
		for _, digit := range row {
			if strconv.Itoa(digit) == key {
				return digit, true
			}
		}
	}
	return 0, false
}

func (m Model) onPassphraseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "backspace":
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case "enter":
		m.reply(queue.SessionReplyInput{SessionID: m.sessionID, Passphrase: m.input})
		m.view = ViewIdle
	default:
		if len(msg.String()) == 1 {
			m.input += msg.String()
		}
	}
	return m, nil
}

func (m Model) onButtonKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		m.reply(queue.SessionReplyInput{SessionID: m.sessionID, ButtonConfirmed: true})
		m.view = ViewIdle
	case "n":
		m.reply(queue.SessionReplyInput{SessionID: m.sessionID, ButtonConfirmed: false})
		m.view = ViewIdle
	}
	return m, nil
}

func (m Model) onRecoveryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.reply(queue.SessionReplyInput{SessionID: m.sessionID, RecoveryCharacter: m.input})
		m.input = ""
	case "backspace":
		m.reply(queue.SessionReplyInput{SessionID: m.sessionID, RecoveryAction: 1}) // delete
	case " ":
		m.reply(queue.SessionReplyInput{SessionID: m.sessionID, RecoveryAction: 2}) // space-to-next-word
	default:
		if len(msg.String()) == 1 {
			m.input = msg.String()
		}
	}
	return m, nil
}

func (m Model) reply(in queue.SessionReplyInput) {
	req := &queue.Request{Op: queue.OpSessionReply, SessionReply: &in, ReplyCh: make(chan queue.Response, 1)}
	m.worker.SubmitReply(req)
	go func() {
		if resp := <-req.ReplyCh; resp.Err != nil {
			// Best-effort: the next session_prompt or session_completed
			// event is what actually drives the view; a reply error is
			// discarded here.
			_ = resp.Err
		}
	}()
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("keepkeycore — " + m.deviceID))
	b.WriteString("\n\n")

	switch m.view {
	case ViewPinMatrix:
		b.WriteString(promptStyle.Render(renderPinMatrix(m.pinEntry)))
	case ViewPassphrase:
		b.WriteString(promptStyle.Render("Enter passphrase (Enter to submit, Esc to cancel):\n" + mask(m.input)))
	case ViewButton:
		b.WriteString(promptStyle.Render("Confirm on device? [y/n]"))
	case ViewRecovery:
		b.WriteString(promptStyle.Render(fmt.Sprintf(
			"Recovery word %d, char %d. Type a letter and Enter, Space for next word.",
			m.recoveryCursor.WordIndex, m.recoveryCursor.CharIndex)))
	default:
		b.WriteString("Waiting for device activity...\n")
	}

	b.WriteString("\n")
	// Log lines come from device-reported messages (policy names,
	// failure text) of arbitrary length; word-wrap them to a fixed
	// width the same way the teacher's scrollback view does so one
	// long line can't blow out the terminal layout.
	for _, line := range tailLog(m.log, 6) {
		b.WriteString(ansi.Wordwrap(line, 78, " \t") + "\n")
	}
	b.WriteString(footerStyle.Render("esc: quit"))
	return b.String()
}

func renderPinMatrix(entered []int) string {
	var b strings.Builder
	b.WriteString("Enter PIN using device-shown layout (positions only):\n\n")
	for _, row := range pinMatrixLayout {
		for _, pos := range row {
			b.WriteString(fmt.Sprintf(" [%d] ", pos))
		}
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("\nentered: %d digit(s). Enter to submit.", len(entered)))
	return b.String()
}

func mask(s string) string {
	return strings.Repeat("*", len(s))
}

func tailLog(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

// Run starts the bubbletea program and blocks until the user quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m)
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}
