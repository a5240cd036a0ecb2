package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sonnixhq/songfetch/internal/batch"
	"github.com/sonnixhq/songfetch/internal/progress"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0B0B0B")).
			Background(lipgloss.Color("#FFE66D")).
			Bold(true).
			Padding(0, 1)

	percentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00F5D4")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8F8F2")).
			Bold(true)

	progressBarStyle = lipgloss.NewStyle().
				Bold(true)

	faintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6ADC8")).
			Faint(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7FDBFF")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD166")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00D27A")).
		Bold(true)

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7FDBFF"))
)

type eventMsg struct{ evt progress.Event }

type doneMsg struct{}

type stopMsg struct{}

const maxLogLines = 4

// itemRow mirrors one batch item. The bar and spinner are owned here;
// the event feed only carries plain numbers.
type itemRow struct {
	label   string
	stage   string
	status  string
	errMsg  string
	current int64
	total   int64
	percent float64
	started time.Time
	bar     progressbar.Model
	spin    spinner.Model
}

type model struct {
	batchID    string
	status     progress.Status
	total      int
	completed  int
	rows       []*itemRow
	logs       []string
	width      int
	height     int
	vp         viewport.Model
	quit       bool
	cancelling bool
	onCancel   func()
}

func newModel(snap progress.Snapshot, onCancel func()) *model {
	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true
	vp.Style = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7FDBFF"))

	rows := make([]*itemRow, len(snap.Items))
	for i, item := range snap.Items {
		spin := spinner.New()
		spin.Spinner = spinner.MiniDot
		spin.Style = spinnerStyle
		bar := progressbar.New(
			progressbar.WithGradient("#FF006E", "#00F5FF"),
			progressbar.WithWidth(barWidth(80)),
			progressbar.WithoutPercentage(),
		)
		row := &itemRow{
			label:   item.Label,
			stage:   item.Stage,
			status:  item.Status,
			errMsg:  item.Error,
			current: item.Current,
			total:   item.Total,
			bar:     bar,
			spin:    spin,
		}
		if item.Total > 0 {
			row.percent = math.Min(1, float64(item.Current)/float64(item.Total))
		}
		rows[i] = row
	}

	m := &model{
		batchID:   snap.ID,
		status:    snap.Status,
		total:     snap.Total,
		completed: snap.Completed,
		rows:      rows,
		width:     80,
		height:    24,
		vp:        vp,
		onCancel:  onCancel,
	}
	// Notices recorded before the view opened, like the cap message,
	// only exist in the snapshot.
	for _, evt := range snap.Events {
		if evt.Type == "log" {
			m.pushLog(evt.Message)
		}
	}
	return m
}

func (m *model) Init() tea.Cmd {
	cmds := make([]tea.Cmd, 0, 2*len(m.rows))
	for _, row := range m.rows {
		cmds = append(cmds, row.bar.SetPercent(row.percent), row.spin.Tick)
	}
	return tea.Batch(cmds...)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 1 + maxLogLines
		borderHeight := 2
		footerHeight := 1
		m.vp.Width = msg.Width - 2
		m.vp.Height = msg.Height - headerHeight - borderHeight - footerHeight
		if m.vp.Height < 4 {
			m.vp.Height = 4
		}
		for _, row := range m.rows {
			row.bar.Width = barWidth(msg.Width)
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.status.Terminal() || m.cancelling {
				m.quit = true
				return m, tea.Quit
			}
			m.cancelling = true
			if m.onCancel != nil {
				m.onCancel()
			}
			m.pushLog("stopping: in-flight songs will finish, press again to close")
		case "up", "k":
			m.vp.SetYOffset(m.vp.YOffset - 1)
		case "down", "j":
			m.vp.SetYOffset(m.vp.YOffset + 1)
		case "pgup":
			m.vp.SetYOffset(m.vp.YOffset - m.vp.Height)
		case "pgdown":
			m.vp.SetYOffset(m.vp.YOffset + m.vp.Height)
		case "home", "g":
			m.vp.GotoTop()
		case "end", "G":
			m.vp.GotoBottom()
		}

	case eventMsg:
		cmds = append(cmds, m.apply(msg.evt)...)

	case doneMsg:
		m.quit = true
		return m, tea.Quit

	case stopMsg:
		m.quit = true
		return m, tea.Quit

	case progressbar.FrameMsg:
		for _, row := range m.rows {
			updated, cmd := row.bar.Update(msg)
			if bar, ok := updated.(progressbar.Model); ok {
				row.bar = bar
			}
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
		}

	case spinner.TickMsg:
		for _, row := range m.rows {
			updated, cmd := row.spin.Update(msg)
			row.spin = updated
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
	}

	if len(cmds) > 0 {
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *model) apply(evt progress.Event) []tea.Cmd {
	var cmds []tea.Cmd

	switch evt.Type {
	case "status":
		m.status = progress.Status(evt.Status)
		if evt.Message != "" {
			m.pushLog(evt.Message)
		}

	case "item":
		if evt.Index < 0 || evt.Index >= len(m.rows) {
			break
		}
		row := m.rows[evt.Index]
		if evt.Stage != "" {
			row.stage = evt.Stage
		}
		if evt.Stage == "downloading" && row.started.IsZero() {
			row.started = time.Now()
		}
		if evt.Status != "" {
			row.status = evt.Status
			row.errMsg = evt.Message
			m.completed++
			if row.status == string(batch.StatusSuccess) {
				row.percent = 1
				cmds = append(cmds, row.bar.SetPercent(1))
			}
		}

	case "progress":
		if evt.Index < 0 || evt.Index >= len(m.rows) {
			break
		}
		row := m.rows[evt.Index]
		row.current = evt.Current
		row.total = evt.Total
		if evt.Total > 0 {
			row.percent = math.Min(1, math.Max(0, evt.Percent/100))
			cmds = append(cmds, row.bar.SetPercent(row.percent))
		}

	case "log":
		m.pushLog(evt.Message)
	}

	return cmds
}

func (m *model) pushLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

func (m *model) View() string {
	if m.quit {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(" songfetch "))
	b.WriteString(" ")
	header := fmt.Sprintf("batch %s · %d/%d done · %s", shortID(m.batchID), m.completed, m.total, m.status)
	if m.cancelling && !m.status.Terminal() {
		header += " · stopping"
	}
	b.WriteString(faintStyle.Render(header))
	b.WriteString("\n")

	for _, line := range m.logs {
		b.WriteString(noticeStyle.Render(truncateLine(line, m.width)))
		b.WriteString("\n")
	}

	var content strings.Builder
	for _, row := range m.rows {
		m.renderRow(&content, row)
	}
	m.vp.SetContent(content.String())
	b.WriteString(m.vp.View())
	b.WriteString("\n")
	b.WriteString(faintStyle.Render("↑/↓ scroll · ctrl+c stop"))
	return b.String()
}

func (m *model) renderRow(b *strings.Builder, row *itemRow) {
	switch {
	case row.status != "":
		b.WriteString(fmt.Sprintf("%s %s\n", statusMark(row.status), labelStyle.Render(row.label)))
		b.WriteString(fmt.Sprintf("        %s\n", m.statusDetail(row)))

	case row.stage == "downloading":
		percentText := percentStyle.Render(fmt.Sprintf("%5.1f%%", row.percent*100))
		b.WriteString(fmt.Sprintf("%s %s %s\n", spinnerStyle.Render(row.spin.View()), percentText, labelStyle.Render(row.label)))
		b.WriteString(progressBarStyle.Render(row.bar.View()))
		b.WriteString("\n")

		var elapsed time.Duration
		if !row.started.IsZero() {
			elapsed = time.Since(row.started)
		}
		bytesLine := fmt.Sprintf("%s / %s · %s · eta %s",
			humanBytes(row.current),
			humanBytes(row.total),
			formatRate(row.current, elapsed),
			formatDurationShort(estimateETA(row.current, row.total, elapsed)))
		b.WriteString(fmt.Sprintf("        %s\n", faintStyle.Render(bytesLine)))

	case row.stage == "resolving":
		b.WriteString(fmt.Sprintf("%s %s %s\n", spinnerStyle.Render(row.spin.View()), faintStyle.Render("resolving"), labelStyle.Render(row.label)))

	default:
		b.WriteString(fmt.Sprintf("%s %s %s\n", faintStyle.Render("·"), faintStyle.Render("waiting"), labelStyle.Render(row.label)))
	}
	b.WriteString("\n")
}

func (m *model) statusDetail(row *itemRow) string {
	switch row.status {
	case string(batch.StatusSuccess):
		if row.total > 0 {
			return okStyle.Render("saved") + " " + faintStyle.Render(humanBytes(row.total))
		}
		return okStyle.Render("saved")
	case string(batch.StatusSkippedShortForm):
		return warnStyle.Render("skipped: only short-form uploads matched")
	case string(batch.StatusCancelled):
		return faintStyle.Render("cancelled")
	default:
		if row.errMsg != "" {
			return errorStyle.Render(truncateLine(row.errMsg, m.width-10))
		}
		return errorStyle.Render("failed")
	}
}

func statusMark(status string) string {
	switch status {
	case string(batch.StatusSuccess):
		return okStyle.Render("✔")
	case string(batch.StatusSkippedShortForm):
		return warnStyle.Render("-")
	case string(batch.StatusCancelled):
		return faintStyle.Render("·")
	default:
		return errorStyle.Render("✘")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func barWidth(total int) int {
	width := total - 10
	if width < 10 {
		return 10
	}
	return width
}

func truncateLine(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}
	if width <= 3 {
		return text[:width]
	}
	return text[:width-3] + "..."
}

func formatRate(current int64, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "--/s"
	}
	rate := int64(float64(current) / elapsed.Seconds())
	if rate <= 0 {
		return "--/s"
	}
	return humanBytes(rate) + "/s"
}

func estimateETA(current, total int64, elapsed time.Duration) time.Duration {
	if total <= 0 || current <= 0 {
		return 0
	}
	remaining := total - current
	if remaining <= 0 {
		return 0
	}
	rate := float64(current) / elapsed.Seconds()
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/rate) * time.Second
}

func formatDurationShort(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%.0fm%.0fs", d.Minutes(), math.Mod(d.Seconds(), 60))
	}
	return fmt.Sprintf("%.0fh%.0fm", d.Hours(), math.Mod(d.Minutes(), 60))
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for n >= unit*div && exp < 4 {
		div *= unit
		exp++
	}
	value := float64(n) / float64(div)
	suffix := []string{"KB", "MB", "GB", "TB"}
	return fmt.Sprintf("%.1f%s", value, suffix[exp])
}
