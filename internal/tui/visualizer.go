// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"whisperer/internal/protocol"
	"whisperer/internal/transport"
)

// Controller is the part of the application the visualizer drives.
type Controller interface {
	ToggleRecording() error
	AnalyzeFile(path string) error
	RefreshHealth(ctx context.Context) error
	State() transport.State
	ResizeCells(cols, rows int)
	Frame() []string
}

const (
	refreshInterval = 33 * time.Millisecond
	healthTimeout   = 10 * time.Second
	panelRows       = 12 // Header, panels and help below the field.
	minFieldRows    = 4
)

type tickMsg time.Time

type healthDoneMsg struct{ err error }

// Model is the main screen: the particle field on top and the diagnosis and
// health panels below.
type Model struct {
	ctrl          Controller
	state         transport.State
	frame         []string
	width, height int
	status        string
	bridge        string

	// Upload prompt. While it is open every key goes to the input.
	input     textinput.Model
	prompting bool
}

// NewModel creates the main screen. bridge is shown in the header when set.
func NewModel(ctrl Controller, bridge string) Model {
	ti := textinput.New()
	ti.Prompt = "file: "
	ti.Placeholder = "path to a recording (wav, mp3, m4a)"
	ti.CharLimit = 512
	ti.Width = 60
	return Model{ctrl: ctrl, bridge: bridge, state: ctrl.State(), input: ti}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ctrl.ResizeCells(m.width, max(minFieldRows, m.height-panelRows))

	case tickMsg:
		m.state = m.ctrl.State()
		m.frame = m.ctrl.Frame()
		return m, tick()

	case healthDoneMsg:
		if msg.err != nil {
			m.status = ""
		} else {
			m.status = "health updated"
		}
		m.state = m.ctrl.State()

	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		switch {
		case key.Matches(msg, keyQuit):
			return m, tea.Quit
		case key.Matches(msg, keyRecord):
			m.status = ""
			_ = m.ctrl.ToggleRecording()
			m.state = m.ctrl.State()
		case key.Matches(msg, keyHealth):
			m.status = "refreshing health..."
			ctrl := m.ctrl
			return m, func() tea.Msg {
				ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
				defer cancel()
				return healthDoneMsg{ctrl.RefreshHealth(ctx)}
			}
		case key.Matches(msg, keyUpload):
			if m.state.Recording == "recording" || m.state.Analyzing {
				m.status = "busy, try again when the current analysis is done"
				return m, nil
			}
			m.status = ""
			m.prompting = true
			m.input.Reset()
			return m, m.input.Focus()
		}

	default:
		if m.prompting {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case key.Matches(msg, keyBack):
		m.prompting = false
		m.input.Blur()
		return m, nil
	case key.Matches(msg, keyEnter):
		path := strings.TrimSpace(m.input.Value())
		m.prompting = false
		m.input.Blur()
		if path == "" {
			return m, nil
		}
		if err := m.ctrl.AnalyzeFile(path); err != nil {
			m.status = ""
		} else {
			m.status = "uploading " + filepath.Base(path)
		}
		m.state = m.ctrl.State()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(m.header())
	sb.WriteString("\n")
	sb.WriteString(fieldStyle.Render(strings.Join(m.frame, "\n")))
	sb.WriteString("\n")

	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(renderDiagnosis(m.state)),
		panelStyle.Render(renderHealth(m.state.Health)),
	)
	sb.WriteString(panels)
	sb.WriteString("\n")

	if m.state.Error != "" {
		sb.WriteString(errorStyle.Render("error: " + m.state.Error))
		sb.WriteString("\n")
	} else if m.status != "" {
		sb.WriteString(mutedStyle.Render(m.status))
		sb.WriteString("\n")
	}
	if m.prompting {
		sb.WriteString(m.input.View())
		sb.WriteString("\n")
		sb.WriteString(infoStyle.Render("enter: Analyze • esc: Cancel"))
		return sb.String()
	}
	sb.WriteString(infoStyle.Render("r/space: Record • u: Upload File • h: Refresh Health • q: Quit"))
	return sb.String()
}

func (m Model) header() string {
	title := titleStyle.Render("Car Whisperer")
	var badge string
	switch {
	case m.state.Recording == "recording":
		badge = recordingStyle.Render(fmt.Sprintf("REC %s", formatElapsed(m.state.Elapsed)))
	case m.state.Analyzing:
		badge = highlightStyle.Render("analyzing...")
	default:
		badge = mutedStyle.Render(m.state.Recording)
	}
	parts := []string{title, badge}
	if m.bridge != "" {
		parts = append(parts, mutedStyle.Render("bridge "+m.bridge))
	}
	return strings.Join(parts, "  ")
}

func formatElapsed(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Truncate(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func renderDiagnosis(st transport.State) string {
	var sb strings.Builder
	sb.WriteString(highlightStyle.Render("Diagnosis"))
	sb.WriteString("\n")

	rec := st.Diagnosis
	switch {
	case st.Analyzing:
		sb.WriteString(mutedStyle.Render("analyzing recording..."))
		return sb.String()
	case rec == nil:
		sb.WriteString(mutedStyle.Render("record a sound to diagnose"))
		return sb.String()
	}

	fmt.Fprintf(&sb, "%s: %s\n", strings.ToUpper(rec.Component), rec.Diagnosis)
	fmt.Fprintf(&sb, "%s  %s  %.0f%% confidence\n",
		severityStyle(rec.Severity).Render(string(rec.Severity)),
		rec.UrgencyLevel.Label(),
		rec.ConfidenceScore*100)
	if rec.EstimatedCost > 0 {
		fmt.Fprintf(&sb, "estimated cost: $%.0f\n", rec.EstimatedCost)
	}
	for _, r := range rec.Recommendations {
		fmt.Fprintf(&sb, "• %s\n", r)
	}
	if rec.Explanation != "" {
		sb.WriteString(mutedStyle.Render(rec.Explanation))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderHealth(s *protocol.HealthSnapshot) string {
	var sb strings.Builder
	sb.WriteString(highlightStyle.Render("Vehicle Health"))
	sb.WriteString("\n")
	if s == nil {
		sb.WriteString(mutedStyle.Render("no health data"))
		return sb.String()
	}

	hs := s.HealthScores
	rows := []struct {
		name  string
		score int
	}{
		{"overall", hs.OverallScore},
		{"engine", hs.EngineHealth},
		{"brakes", hs.BrakeHealth},
		{"transmission", hs.TransmissionHealth},
		{"exhaust", hs.ExhaustHealth},
	}
	for _, r := range rows {
		fmt.Fprintf(&sb, "%-13s %s\n", r.name,
			bandStyle(r.score).Render(fmt.Sprintf("%3d %s", r.score, protocol.HealthBand(r.score))))
	}
	for _, a := range s.Alerts {
		fmt.Fprintf(&sb, "%s %s\n", severityStyle(a.Severity).Render("!"), a.Message)
	}
	fmt.Fprintf(&sb, "%d diagnoses on record", s.TotalDiagnostics)
	return sb.String()
}

// Run starts the main screen full screen and blocks until the user quits.
func Run(ctrl Controller, bridge string) error {
	_, err := tea.NewProgram(NewModel(ctrl, bridge), tea.WithAltScreen()).Run()
	return err
}
