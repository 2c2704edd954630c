// Package app renders the progress of a batch run as a terminal UI.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/XR-at-CISESS/lma-data/internal/orchestrator"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// --- Styles ---
var (
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	labelStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressBarStyle = lipgloss.NewStyle().Padding(0, 1)
	headerStyle      = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	outcomeStyle     = map[orchestrator.Outcome]lipgloss.Style{
		orchestrator.Succeeded:   lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		orchestrator.Failed:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		orchestrator.Cancelled:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		orchestrator.SpawnFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
)

// recentRows is how many finished batches the table keeps.
const recentRows = 8

type batchRow struct {
	Label    string
	Files    int
	Outcome  orchestrator.Outcome
	Attempts int
	Elapsed  time.Duration
	ErrMsg   string
}

// AppModel is the bubbletea model of a running batch pool.
type AppModel struct {
	Title string
	State AppState

	spinner          spinner.Model
	overallProgress  progress.Model
	progressBarWidth int
	onInterrupt      func()

	total   int
	done    int
	counts  map[orchestrator.Outcome]int
	recent  []batchRow
	started time.Time
	summary *orchestrator.Summary

	termWidth  int
	termHeight int
}

// NewAppModel returns a model titled title. onInterrupt is called each time
// the user presses ctrl+c or q before the run finished.
func NewAppModel(title string, onInterrupt func()) *AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	if onInterrupt == nil {
		onInterrupt = func() {}
	}
	return &AppModel{
		Title:           title,
		State:           Waiting,
		spinner:         s,
		overallProgress: progress.New(progress.WithDefaultGradient()),
		onInterrupt:     onInterrupt,
		counts:          make(map[orchestrator.Outcome]int),
		termWidth:       80,
		termHeight:      24,
	}
}

// --- Bubbletea Interface ---

func (m *AppModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.State == Finished {
				return m, tea.Quit
			}
			m.escalate()
			m.onInterrupt()
		}
	case interruptMsg:
		m.escalate()
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.progressBarWidth = max(0, m.termWidth-20)
		m.overallProgress.Width = m.progressBarWidth
	case StartMsg:
		if msg.Title != "" {
			m.Title = msg.Title
		}
		m.total = msg.Total
		m.started = time.Now()
		if m.State == Waiting {
			m.State = Running
		}
		cmds = append(cmds, m.overallProgress.SetPercent(0))
	case OutputMsg:
		cmds = append(cmds, tea.Println(labelStyle.Render("["+msg.Label+"]")+" "+msg.Line))
	case DoneMsg:
		m.done = msg.Progress.Done
		m.total = msg.Progress.Total
		m.counts[msg.Result.Outcome]++
		row := batchRow{
			Label:    msg.Result.Job.Label(),
			Files:    len(msg.Result.Job.Paths),
			Outcome:  msg.Result.Outcome,
			Attempts: msg.Result.Attempts,
			Elapsed:  msg.Result.Duration,
		}
		if msg.Result.Err != nil && msg.Result.Outcome != orchestrator.Cancelled {
			row.ErrMsg = msg.Result.Err.Error()
		}
		m.recent = append(m.recent, row)
		if len(m.recent) > recentRows {
			m.recent = m.recent[len(m.recent)-recentRows:]
		}
		cmds = append(cmds, m.overallProgress.SetPercent(msg.Progress.Percent()))
	case FinishMsg:
		m.State = Finished
		m.summary = &msg.Summary
		return m, tea.Quit
	case spinner.TickMsg:
		if m.State != Finished {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case progress.FrameMsg:
		progModel, frameCmd := m.overallProgress.Update(msg)
		if newModel, ok := progModel.(progress.Model); ok {
			m.overallProgress = newModel
			cmds = append(cmds, frameCmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *AppModel) escalate() {
	switch m.State {
	case Waiting, Running:
		m.State = Stopping
	case Stopping:
		m.State = Killing
	}
}

func (m *AppModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("--- " + m.Title + " ---"))
	b.WriteString("\n\n")

	switch m.State {
	case Waiting:
		b.WriteString(m.spinner.View() + " Looking for batches...")
	case Finished:
		b.WriteString(m.viewSummary())
	default:
		b.WriteString(m.viewProgress())
	}

	b.WriteString("\n\n")
	switch m.State {
	case Waiting, Running:
		b.WriteString(infoStyle.Render("'q' or Ctrl+C to stop workers."))
	case Stopping:
		b.WriteString(errorStyle.Render("Stopping, waiting for workers to exit. Press again to kill them."))
	case Killing:
		b.WriteString(errorStyle.Render("Killing workers..."))
	}
	return b.String()
}

// --- View Helpers ---

func (m *AppModel) viewProgress() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %d batches", m.spinner.View(), m.total))
	if !m.started.IsZero() {
		b.WriteString(infoStyle.Render(fmt.Sprintf(" (%s)", time.Since(m.started).Round(time.Second))))
	}
	b.WriteString("\n")
	b.WriteString(progressBarStyle.Render(m.overallProgress.View()))
	b.WriteString(fmt.Sprintf(" (%d/%d)\n\n", m.done, m.total))

	if len(m.recent) == 0 {
		return b.String()
	}

	width := max(20, m.termWidth)
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-19s | %5s | %-11s | %s", "Batch", "Files", "Outcome", "Elapsed")))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", width))
	b.WriteString("\n")

	maxLines := max(1, m.termHeight-10)
	start := max(0, len(m.recent)-maxLines)
	for _, row := range m.recent[start:] {
		style, ok := outcomeStyle[row.Outcome]
		if !ok {
			style = infoStyle
		}
		outcome := row.Outcome.String()
		if row.Attempts > 1 {
			outcome = fmt.Sprintf("%s x%d", outcome, row.Attempts)
		}
		b.WriteString(fmt.Sprintf("%-19s | %5d | %s | %s", row.Label, row.Files, style.Render(fmt.Sprintf("%-11s", outcome)), row.Elapsed.Round(time.Millisecond)))
		if row.ErrMsg != "" {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(truncate("  -> "+firstLine(row.ErrMsg), width-1)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *AppModel) viewSummary() string {
	s := m.summary
	line := fmt.Sprintf("%d batches in %s: %s succeeded", s.Total, s.Duration.Round(time.Millisecond),
		outcomeStyle[orchestrator.Succeeded].Render(fmt.Sprint(s.Succeeded)))
	if s.Failed > 0 {
		line += ", " + errorStyle.Render(fmt.Sprintf("%d failed", s.Failed))
	}
	if s.SpawnErrors > 0 {
		line += ", " + errorStyle.Render(fmt.Sprintf("%d could not start", s.SpawnErrors))
	}
	if s.Cancelled > 0 {
		line += ", " + infoStyle.Render(fmt.Sprintf("%d cancelled", s.Cancelled))
	}
	return line
}

// --- Helpers ---

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, width int) string {
	if width <= 3 || len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}
