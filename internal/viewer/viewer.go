// Package viewer implements the recorded data browser TUI with a time
// cursor, file navigation and sparkline windows.
package viewer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/labmonitor/internal/chart"
	"github.com/luki/labmonitor/internal/history"
	"github.com/luki/labmonitor/internal/sensor"
	"github.com/luki/labmonitor/internal/store"
)

// ErrNoFiles is returned by Run when there is nothing to browse.
var ErrNoFiles = errors.New("no recorded files")

const skipStep = 30

// Run launches the viewer over files, newest first.
func Run(files []string) error {
	if len(files) == 0 {
		return ErrNoFiles
	}

	p := tea.NewProgram(
		New(files),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := p.Run()
	return err
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorCardName = lipgloss.Color("147")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorCursor   = lipgloss.Color("214")
	colorCrit     = lipgloss.Color("196")
)

// ── Model ────────────────────────────────────────────────────────────

// Model is the BubbleTea model for the viewer.
type Model struct {
	files   []string         // CSV paths, newest first
	fileIdx int              // currently selected file
	records []history.Record // contents of the current file
	cursor  int              // record index under the time cursor
	scroll  int              // vertical scroll offset
	width   int
	height  int
	err     error
}

// New creates a viewer positioned on the last record of the first file.
func New(files []string) Model {
	m := Model{files: files}
	m.loadFile()
	return m
}

func (m *Model) loadFile() {
	m.records = nil
	m.cursor = 0
	m.scroll = 0
	if len(m.files) == 0 {
		return
	}
	records, err := store.LoadFile(m.files[m.fileIdx])
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.records = records
	if len(records) > 0 {
		m.cursor = len(records) - 1
	}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "h":
			if m.cursor > 0 {
				m.cursor--
			}
		case "l":
			if m.cursor < len(m.records)-1 {
				m.cursor++
			}
		case "H":
			m.cursor = max(m.cursor-skipStep, 0)
		case "L":
			m.cursor = max(min(m.cursor+skipStep, len(m.records)-1), 0)
		case "home":
			m.cursor = 0
		case "end":
			m.cursor = max(len(m.records)-1, 0)

		case "left":
			if m.fileIdx < len(m.files)-1 {
				m.fileIdx++
				m.loadFile()
			}
		case "right":
			if m.fileIdx > 0 {
				m.fileIdx--
				m.loadFile()
			}

		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll = min(m.scroll+1, m.maxScroll())
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.scroll = min(m.scroll, m.maxScroll())
	}

	return m, nil
}

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Loading..."
	}

	lines := strings.Split(m.content(), "\n")
	visibleLines := m.visibleLines()
	scroll := min(m.scroll, max(len(lines)-visibleLines, 0))
	end := min(scroll+visibleLines, len(lines))

	return strings.Join(lines[scroll:end], "\n")
}

func (m Model) visibleLines() int {
	return max(m.height, 5)
}

// maxScroll is the largest useful scroll offset for the current content.
func (m Model) maxScroll() int {
	if m.width == 0 {
		return 0
	}
	n := strings.Count(m.content(), "\n") + 1
	return max(n-m.visibleLines(), 0)
}

func (m Model) content() string {
	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string

	sections = append(sections, m.renderTitle(contentWidth))

	if m.err != nil {
		errBox := lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("ERROR: %v", m.err))
		sections = append(sections, errBox)
	}

	if len(m.records) == 0 {
		empty := lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(2, 0).
			Align(lipgloss.Center).
			Width(contentWidth).
			Render("No data in this file.")
		sections = append(sections, empty)
	} else {
		sections = append(sections, m.renderCursorInfo(contentWidth))
		sections = append(sections, m.renderPanel("Gas Sensors", history.GasFields, contentWidth))
		sections = append(sections, m.renderPanel("Environment", history.EnvFields, contentWidth))
	}

	sections = append(sections, m.renderFooter(contentWidth))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTitle(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("LAB HISTORY")

	name := "-"
	if len(m.files) > 0 {
		name = filepath.Base(m.files[m.fileIdx])
	}
	fileText := lipgloss.NewStyle().
		Foreground(colorCursor).
		Bold(true).
		Render(name)

	nav := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("  [ %d/%d ]", m.fileIdx+1, len(m.files)))

	dataInfo := ""
	if len(m.records) > 0 {
		dataInfo = lipgloss.NewStyle().
			Foreground(colorDim).
			Render(fmt.Sprintf("  %s - %s  (%d records)",
				m.records[0].Timestamp, m.records[len(m.records)-1].Timestamp, len(m.records)))
	}

	right := fileText + nav + dataInfo

	gap := width - lipgloss.Width(logo) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m Model) renderCursorInfo(width int) string {
	if m.cursor < 0 || m.cursor >= len(m.records) {
		return ""
	}

	ts := lipgloss.NewStyle().
		Foreground(colorCursor).
		Bold(true).
		Render(m.records[m.cursor].Timestamp)

	pos := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("  %d/%d", m.cursor+1, len(m.records)))

	barWidth := width - 30
	if barWidth < 10 {
		barWidth = 10
	}

	return lipgloss.NewStyle().
		Padding(0, 1).
		Render("  " + ts + pos + "  " + m.renderScrubber(barWidth))
}

// renderScrubber draws the cursor position over the whole file with a tick
// at every hour boundary.
func (m Model) renderScrubber(width int) string {
	n := len(m.records)
	if n == 0 || width <= 0 {
		return ""
	}

	pos := 0
	if n > 1 {
		pos = m.cursor * (width - 1) / (n - 1)
	}
	if pos >= width {
		pos = width - 1
	}

	var sb strings.Builder
	dimS := lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	curS := lipgloss.NewStyle().Foreground(colorCursor).Bold(true)
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))

	for i := 0; i < width; i++ {
		if i == pos {
			sb.WriteString(curS.Render("◆"))
			continue
		}
		idx := 0
		if n > 1 {
			idx = i * (n - 1) / (width - 1)
		}
		if idx > 0 && idx < n && m.records[idx].Time.Hour() != m.records[idx-1].Time.Hour() {
			sb.WriteString(tickS.Render("│"))
			continue
		}
		sb.WriteString(dimS.Render("─"))
	}

	return sb.String()
}

func (m Model) renderPanel(title string, fields []history.Field, totalWidth int) string {
	labelW := 8
	valueW := 12
	statusW := 12
	chartWidth := totalWidth - 4 - labelW - valueW - statusW - 4
	if chartWidth < 15 {
		chartWidth = 15
	}
	if chartWidth > 140 {
		chartWidth = 140
	}

	window := sparkWindow(m.records, m.cursor, chartWidth)
	cur := m.records[m.cursor]

	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	rows := []string{lipgloss.NewStyle().Bold(true).Foreground(colorCardName).Render(title)}
	var lastPts []history.Point
	for _, f := range fields {
		pts := history.Series(window, f)
		lastPts = pts
		lo, hi := chart.Range(pts)
		color := chart.SeriesColor(f)

		label := lipgloss.NewStyle().Foreground(colorLabel).Width(labelW).Render(f.Name())
		value := lipgloss.NewStyle().Width(valueW).Align(lipgloss.Right).Render(chart.RenderValue(f.Value(cur), f.Unit(), color))
		spark := frameL + chart.RenderSparklinePoints(pts, chartWidth, lo, hi, color) + frameR

		row := label + " " + value + " " + spark
		if g, ok := gasOf(f); ok {
			res := cur.Results.Get(g)
			row += " " + lipgloss.NewStyle().Foreground(chart.LabelColor(g, res.Label)).Render(truncate(res.Label, statusW))
		}
		rows = append(rows, row)
	}

	if lastPts != nil {
		timeline := chart.RenderTimeline(lastPts, chartWidth)
		if strings.TrimSpace(timeline) != "" {
			rows = append(rows, strings.Repeat(" ", labelW+valueW+2)+" "+timeline)
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(totalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  h/l") + keyS.Render(":scrub") +
		dimS.Render("  H/L") + keyS.Render(fmt.Sprintf(":skip %d", skipStep)) +
		dimS.Render("  home/end") + keyS.Render(":jump") +
		dimS.Render("  ←/→") + keyS.Render(":file") +
		dimS.Render("  j/k") + keyS.Render(":scroll")

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(keys)
}

// ── Helpers ──────────────────────────────────────────────────────────

// sparkWindow returns up to width records centred on cursor, shifted to
// stay inside the file.
func sparkWindow(records []history.Record, cursor, width int) []history.Record {
	if len(records) <= width {
		return records
	}
	start := cursor - width/2
	start = max(start, 0)
	start = min(start, len(records)-width)
	return records[start : start+width]
}

func gasOf(f history.Field) (sensor.Gas, bool) {
	switch f {
	case history.MQ135:
		return sensor.MQ135, true
	case history.MQ2:
		return sensor.MQ2, true
	case history.MQ7:
		return sensor.MQ7, true
	}
	return 0, false
}

func truncate(s string, w int) string {
	r := []rune(s)
	if len(r) <= w {
		return s
	}
	if w <= 3 {
		return string(r[:w])
	}
	return string(r[:w-1]) + "…"
}
