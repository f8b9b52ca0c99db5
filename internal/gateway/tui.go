// ABOUTME: Gateway TUI for displaying live sessions and stats
// ABOUTME: Real-time gateway status display using bubbletea
package gateway

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ServerTUI manages the gateway TUI
type ServerTUI struct {
	program  *tea.Program
	updates  chan ServerStatus
	done     chan struct{}
	quitChan chan struct{} // Signal to stop the gateway
}

// ServerStatus holds gateway state for the TUI
type ServerStatus struct {
	Name     string
	Listen   string
	Upstream string
	Sessions []SessionInfo
}

// SessionInfo holds session information for display
type SessionInfo struct {
	ID      string
	Remote  string
	Format  string
	Windows int64
	LastBPM float64
	Age     time.Duration
}

type tuiModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg ServerStatus

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down gateway...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	sessionHeaderStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("220"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Beatgate"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Gateway: "))
	b.WriteString(valueStyle.Render(m.status.Name))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Listen: "))
	b.WriteString(valueStyle.Render(m.status.Listen))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Upstream: "))
	b.WriteString(valueStyle.Render(m.status.Upstream))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	b.WriteString(valueStyle.Render(time.Since(m.startTime).Round(time.Second).String()))
	b.WriteString("\n\n")

	b.WriteString(sessionHeaderStyle.Render(fmt.Sprintf("Live Sessions (%d)", len(m.status.Sessions))))
	b.WriteString("\n\n")

	if len(m.status.Sessions) == 0 {
		b.WriteString(valueStyle.Render("  No sessions"))
		b.WriteString("\n")
	} else {
		for _, s := range m.status.Sessions {
			b.WriteString(renderSession(s, valueStyle))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

func renderSession(s SessionInfo, valueStyle lipgloss.Style) string {
	format := s.Format
	if format == "" {
		format = "awaiting handshake"
	}
	tempo := "-"
	if s.Windows > 0 {
		tempo = fmt.Sprintf("%.1f BPM", s.LastBPM)
	}
	return fmt.Sprintf("  • %s", s.Remote) +
		valueStyle.Render(fmt.Sprintf(" (%s, %d windows, %s, %s)", format, s.Windows, tempo, s.Age.Round(time.Second)))
}

// NewServerTUI creates a new gateway TUI
func NewServerTUI(name, listen, upstream string) *ServerTUI {
	t := &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		done:     make(chan struct{}),
		quitChan: make(chan struct{}, 1),
	}

	m := tuiModel{
		status: ServerStatus{
			Name:     name,
			Listen:   listen,
			Upstream: upstream,
		},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}
	t.program = tea.NewProgram(m, tea.WithAltScreen())

	return t
}

// Start runs the TUI until it quits or Stop is called
func (t *ServerTUI) Start() error {
	go func() {
		for {
			select {
			case status := <-t.updates:
				t.program.Send(statusMsg(status))
			case <-t.done:
				return
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update to the TUI
func (t *ServerTUI) Update(status ServerStatus) {
	select {
	case t.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the TUI. Updates sent afterwards are dropped.
func (t *ServerTUI) Stop() {
	t.program.Quit()
	close(t.done)
}

// QuitChan returns the channel that signals when user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
