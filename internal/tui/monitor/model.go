// Package monitor is a small terminal dashboard over a running daemon. It
// speaks the same wire protocol as any other client, polling debug-status.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"watchmand/internal/client"
	"watchmand/internal/protocol"
)

const pollInterval = 2 * time.Second

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))
)

// --- Message types ---

type statusMsg *protocol.Response

type errMsg error

type tickMsg time.Time

// Model is the BubbleTea model for the monitor.
type Model struct {
	dispatcher *client.Dispatcher

	width  int
	height int

	status    *protocol.Response
	recent    table.Model
	lastError string
}

// New creates a monitor over an already-configured dispatcher.
func New(d *client.Dispatcher) *Model {
	columns := []table.Column{
		{Title: "Received", Width: 27},
		{Title: "Command", Width: 20},
		{Title: "Outcome", Width: 8},
		{Title: "Error", Width: 60},
	}
	tbl := table.New(
		table.WithColumns(columns),
		table.WithHeight(12),
		table.WithFocused(true),
	)

	return &Model{dispatcher: d, recent: tbl}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchStatus(),
		tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(
			m.fetchStatus(),
			tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) }),
		)

	case statusMsg:
		m.status = (*protocol.Response)(msg)
		m.lastError = ""
		m.recent.SetRows(recentRows(m.status))
		return m, nil

	case errMsg:
		m.lastError = msg.Error()
		return m, nil
	}

	var cmd tea.Cmd
	m.recent, cmd = m.recent.Update(msg)
	return m, cmd
}

func (m *Model) View() string {
	header := titleStyle.Render("watchmand monitor")

	var body string
	switch {
	case m.lastError != "":
		body = errStyle.Render("daemon unreachable: " + m.lastError)
	case m.status == nil:
		body = labelStyle.Render("connecting...")
	default:
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.statusLines(),
			borderStyle.Render(m.recent.View()),
		)
	}

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, body))
}

func (m *Model) statusLines() string {
	f := m.status.Fields
	lines := []string{
		labelStyle.Render("version  ") + m.status.Version,
		labelStyle.Render("sockname ") + str(f["sockname"]),
		labelStyle.Render("uptime   ") + fmt.Sprintf("%vs", f["uptime_seconds"]),
		labelStyle.Render("served   ") +
			okStyle.Render(fmt.Sprintf("%v ok", f["commands_ok"])) + "  " +
			errStyle.Render(fmt.Sprintf("%v failed", f["commands_failed"])),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// fetchStatus polls the daemon off the UI goroutine.
func (m *Model) fetchStatus() tea.Cmd {
	d := m.dispatcher
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollInterval)
		defer cancel()

		resp, err := d.Query(ctx, "debug-status", nil)
		if err != nil {
			return errMsg(err)
		}
		if resp.IsError() {
			return errMsg(fmt.Errorf("daemon rejected debug-status: %s", resp.Error))
		}
		return statusMsg(resp)
	}
}

func recentRows(resp *protocol.Response) []table.Row {
	entries, ok := resp.Fields["recent"].([]any)
	if !ok {
		return nil
	}

	rows := make([]table.Row, 0, len(entries))
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, table.Row{
			str(entry["received_at"]),
			str(entry["command"]),
			str(entry["outcome"]),
			str(entry["error"]),
		})
	}
	return rows
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
