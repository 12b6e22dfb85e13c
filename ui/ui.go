package ui

import (
	"fmt"
	"strings"
	"time"

	"dockwatch/watch"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	tea "github.com/charmbracelet/bubbletea"
)

type model struct {
	viewport      viewport.Model
	status        watch.StatusManager
	done          bool
	selectedIdx   int
	logView       viewport.Model
	showingLogs   bool
	logAutoscroll bool
	onQuit        func()
}

func initialModel(status watch.StatusManager, onQuit func()) *model {
	return &model{
		viewport:      viewport.New(160, 40),
		status:        status,
		logView:       viewport.New(160, 20),
		logAutoscroll: true,
		onQuit:        onQuit,
	}
}

func (m *model) Init() tea.Cmd {
	return tickCmd()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.done = true
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		case "up", "k":
			if !m.showingLogs {
				if n := len(m.status.Names()); n > 0 {
					m.selectedIdx = (m.selectedIdx - 1 + n) % n
				}
			} else {
				m.logAutoscroll = false
				m.logView, cmd = m.logView.Update(msg)
				cmds = append(cmds, cmd)
			}
		case "down", "j":
			if !m.showingLogs {
				if n := len(m.status.Names()); n > 0 {
					m.selectedIdx = (m.selectedIdx + 1) % n
				}
			} else {
				m.logView, cmd = m.logView.Update(msg)
				cmds = append(cmds, cmd)
			}
		case "enter", " ":
			m.showingLogs = !m.showingLogs
			if m.showingLogs {
				m.logAutoscroll = true
				m.updateLogView()
			} else {
				m.viewport = viewport.New(160, 40)
				m.viewport.SetContent(m.statusView())
			}
		case "esc":
			m.showingLogs = false
			m.viewport = viewport.New(160, 40)
			m.viewport.SetContent(m.statusView())
		}
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 1
		m.logView.Width = msg.Width
		m.logView.Height = msg.Height / 2
		return m, nil
	case tickMsg:
		if !m.done {
			cmds = append(cmds, tickCmd())
		}
	}

	if !m.showingLogs {
		m.viewport = viewport.New(160, 40)
		m.viewport.SetContent(m.statusView())
	} else if m.logAutoscroll {
		m.updateLogView()
	}
	return m, tea.Batch(cmds...)
}

func (m *model) View() string {
	if m.done {
		return "Exiting...\n"
	}
	var sb strings.Builder
	sb.WriteString(m.viewport.View())
	if m.showingLogs {
		sb.WriteString("\n\nEvents:\n")
		sb.WriteString(m.logView.View())
	}
	sb.WriteString("\n\033[1mPress q to quit, enter/space to toggle events, up/down or j/k to navigate\033[0m")
	return sb.String()
}

func (m *model) statusView() string {
	var sb strings.Builder
	sb.WriteString("Dockwatch Watch Status\n\n")

	names := m.status.Names()
	for i, name := range names {
		status := m.status.Snapshot(name)

		lastEvent := status.LastEvent
		if lastEvent == "" {
			lastEvent = "-"
		}
		age := ""
		if !status.LastEventAt.IsZero() {
			age = time.Since(status.LastEventAt).Round(time.Second).String() + " ago"
		}

		stateColor := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
		switch {
		case status.Errors > 0:
			stateColor = stateColor.Foreground(lipgloss.Color("160"))
		case status.State == "Watching":
			stateColor = stateColor.Foreground(lipgloss.Color("82"))
		}

		prefix := "  "
		if i == m.selectedIdx {
			prefix = "> "
		}

		sb.WriteString(fmt.Sprintf(
			"%s%-20s | %-10s | %-30s | %-40s %-10s | Ticks: %d Errors: %d\n",
			prefix,
			name,
			stateColor.Render(status.State),
			strings.Join(status.Tasks, " and "),
			lastEvent,
			age,
			status.Ticks,
			status.Errors,
		))
	}

	return sb.String()
}

func (m *model) updateLogView() {
	names := m.status.Names()

	m.logView = viewport.New(160, 20)

	if m.selectedIdx < len(names) {
		status := m.status.Snapshot(names[m.selectedIdx])
		logContent := strings.Join(status.LogLines, "\n")
		if logContent == "" {
			m.logView.SetContent("No events for this target yet")
		} else {
			m.logView.SetContent(logContent)
		}
		if m.logAutoscroll {
			m.logView.GotoBottom()
		}
	}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run shows the live watch status view until the user quits or done closes.
// onQuit is called when the user quits from inside the view.
func Run(status watch.StatusManager, done <-chan struct{}, onQuit func()) error {
	p := tea.NewProgram(initialModel(status, onQuit))
	go func() {
		<-done
		p.Quit()
	}()
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
