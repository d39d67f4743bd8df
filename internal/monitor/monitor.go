// Package monitor implements the live lab dashboard TUI using BubbleTea:
// status cards for the three gas classifiers, environment tiles, tabbed
// trend charts and a raw data table.
package monitor

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/labmonitor/internal/chart"
	"github.com/luki/labmonitor/internal/classify"
	"github.com/luki/labmonitor/internal/history"
	"github.com/luki/labmonitor/internal/pipeline"
	"github.com/luki/labmonitor/internal/sensor"
	"github.com/luki/labmonitor/internal/store"
)

const (
	tableRows      = 20
	minChartW      = 15
	maxChartW      = 140
	defaultRefresh = 2 * time.Second
)

// Cycler runs one refresh cycle and returns the resulting snapshot.
type Cycler interface {
	Cycle() pipeline.Snapshot
}

type tab int

const (
	tabGas tab = iota
	tabEnv
)

func (t tab) String() string {
	if t == tabEnv {
		return "Environment"
	}
	return "Gas Sensors"
}

// ── Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

type exportMsg struct {
	path string
	err  error
}

// ── Model ────────────────────────────────────────────────────────────

// Options configures the dashboard.
type Options struct {
	Engine    Cycler
	Interval  time.Duration
	DataDir   string // export directory
	RecordDir string // daily recording directory, empty when disabled
	Broker    string
	Now       func() time.Time
}

// Model is the BubbleTea model for the live dashboard.
type Model struct {
	engine    Cycler
	interval  time.Duration
	dataDir   string
	recordDir string
	broker    string
	now       func() time.Time

	snap      pipeline.Snapshot
	tab       tab
	showTable bool
	status    string
	width     int
	height    int
	scroll    int
	startTime time.Time
}

// New creates the initial model for the dashboard.
func New(opts Options) Model {
	if opts.Interval <= 0 {
		opts.Interval = defaultRefresh
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return Model{
		engine:    opts.Engine,
		interval:  opts.Interval,
		dataDir:   opts.DataDir,
		recordDir: opts.RecordDir,
		broker:    opts.Broker,
		now:       opts.Now,
		snap:      pipeline.Snapshot{Predictions: classify.Pending()},
		startTime: opts.Now(),
	}
}

// Snapshot returns the snapshot the view is currently rendered from.
func (m Model) Snapshot() pipeline.Snapshot { return m.snap }

// ── Commands ─────────────────────────────────────────────────────────

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) exportCmd() tea.Cmd {
	records := m.snap.History
	dir := m.dataDir
	t := m.now()
	return func() tea.Msg {
		path, err := store.Export(dir, records, t)
		return exportMsg{path: path, err: err}
	}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return tickMsg(m.now()) }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.tab = (m.tab + 1) % 2
		case "1":
			m.tab = tabGas
		case "2":
			m.tab = tabEnv
		case "r":
			m.showTable = !m.showTable
			m.scroll = min(m.scroll, m.maxScroll())
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll = min(m.scroll+1, m.maxScroll())
		case "home":
			m.scroll = 0
		case "e":
			if len(m.snap.History) == 0 {
				m.status = "nothing to export yet"
				return m, nil
			}
			m.status = "exporting..."
			return m, m.exportCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.scroll = min(m.scroll, m.maxScroll())

	case tickMsg:
		if m.engine != nil {
			m.snap = m.engine.Cycle()
		}
		m.scroll = min(m.scroll, m.maxScroll())
		return m, m.tickCmd()

	case exportMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("export failed: %v", msg.err)
		} else {
			m.status = "exported " + msg.path
		}
	}

	return m, nil
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
	colorTabBg    = lipgloss.Color("62")
	colorCrit     = lipgloss.Color("196")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
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
	if contentWidth < 60 {
		contentWidth = 60
	}

	var sections []string

	sections = append(sections, m.renderTitleBar(contentWidth))

	if m.snap.ConnectErr != nil {
		errBox := lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Width(contentWidth).
			Padding(0, 1).
			Render(fmt.Sprintf(" MQTT ERROR: %v", m.snap.ConnectErr))
		sections = append(sections, errBox)
	}

	sections = append(sections, m.renderStatusCards(contentWidth))
	sections = append(sections, m.renderEnvTiles(contentWidth))

	if !m.snap.HasData {
		waiting := lipgloss.NewStyle().
			Foreground(colorDim).
			Width(contentWidth).
			Align(lipgloss.Center).
			Padding(1, 0).
			Render("Waiting for sensor data...")
		sections = append(sections, waiting)
	} else {
		sections = append(sections, m.renderTabs(contentWidth))
		sections = append(sections, m.renderCharts(contentWidth))
		if m.showTable {
			sections = append(sections, m.renderTable(contentWidth))
		}
	}

	sections = append(sections, m.renderFooter(contentWidth))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("LAB MONITOR")

	dimS := lipgloss.NewStyle().Foreground(colorDim)

	var statusParts []string
	statusParts = append(statusParts, dimS.Render("up "+fmtDuration(m.now().Sub(m.startTime))))
	statusParts = append(statusParts, dimS.Render("last "+m.snap.LastUpdate()))

	mqtt := lipgloss.NewStyle().Foreground(chart.ColorDanger).Render("MQTT offline")
	if m.snap.Connected {
		mqtt = lipgloss.NewStyle().Foreground(chart.ColorGood).Render("MQTT " + m.broker)
	}
	statusParts = append(statusParts, mqtt)

	if m.recordDir != "" {
		rec := lipgloss.NewStyle().
			Foreground(colorCrit).
			Render("REC") +
			dimS.Render(" "+m.recordDir)
		statusParts = append(statusParts, rec)
	}

	sep := dimS.Render(" │ ")
	right := strings.Join(statusParts, sep)

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

func (m Model) renderStatusCards(totalWidth int) string {
	cardW := (totalWidth - 6) / 3
	barW := cardW - 4
	if barW < 10 {
		barW = 10
	}
	dimS := lipgloss.NewStyle().Foreground(colorDim)

	var cards []string
	for _, g := range sensor.Gases {
		res := m.snap.Predictions.Get(g)
		color := chart.LabelColor(g, res.Label)

		name := lipgloss.NewStyle().Bold(true).Foreground(colorCardName).Render(g.Title())
		purpose := dimS.Render(g.Purpose())
		label := lipgloss.NewStyle().Bold(true).Foreground(color).Render(strings.ToUpper(res.Label))
		conf := dimS.Render("confidence ") +
			lipgloss.NewStyle().Foreground(colorLabel).Render(fmt.Sprintf("%.1f%%", res.Confidence))
		bar := chart.RenderConfidenceBar(res.Confidence, barW, color)
		ppm := chart.RenderValue(m.snap.Current.Gas(g), "ppm", colorLabel)

		body := lipgloss.JoinVertical(lipgloss.Left, name+"  "+purpose, label, conf, bar, ppm)
		cards = append(cards, lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(color).
			Padding(0, 1).
			Width(cardW).
			Render(body))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (m Model) renderEnvTiles(totalWidth int) string {
	tileW := (totalWidth - 6) / 3
	cur := m.snap.Current

	tile := func(title, value string) string {
		t := lipgloss.NewStyle().Foreground(colorDim).Render(title)
		v := lipgloss.NewStyle().Bold(true).Foreground(colorLabel).Render(value)
		return lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			Width(tileW).
			Render(t + "\n" + v)
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		tile("Temperature", fmt.Sprintf("%.1f °C", cur.Temperature)),
		tile("Humidity", fmt.Sprintf("%.1f %%", cur.Humidity)),
		tile("Last update", m.snap.LastUpdate()),
	)
}

func (m Model) renderTabs(width int) string {
	active := lipgloss.NewStyle().Bold(true).Background(colorTabBg).Foreground(lipgloss.Color("231")).Padding(0, 1)
	inactive := lipgloss.NewStyle().Foreground(colorDim).Padding(0, 1)

	var parts []string
	for i, t := range []tab{tabGas, tabEnv} {
		s := fmt.Sprintf("%d %s", i+1, t)
		if t == m.tab {
			parts = append(parts, active.Render(s))
		} else {
			parts = append(parts, inactive.Render(s))
		}
	}
	count := lipgloss.NewStyle().Foreground(colorDim).
		Render(fmt.Sprintf("  %d/%d records", len(m.snap.History), m.snap.HistoryCap))
	return lipgloss.NewStyle().Width(width).Render(strings.Join(parts, " ") + count)
}

func (m Model) renderCharts(totalWidth int) string {
	fields := history.GasFields
	if m.tab == tabEnv {
		fields = history.EnvFields
	}

	labelW := 14
	valueW := 12
	chartWidth := totalWidth - 4 - labelW - valueW - 36
	if chartWidth < minChartW {
		chartWidth = minChartW
	}
	if chartWidth > maxChartW {
		chartWidth = maxChartW
	}

	records := m.snap.History
	if len(records) > chartWidth {
		records = records[len(records)-chartWidth:]
	}

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	var rows []string
	var lastPts []history.Point
	for _, f := range fields {
		pts := history.Series(records, f)
		lastPts = pts
		lo, hi := chart.Range(pts)
		st := history.Summarize(pts)
		color := chart.SeriesColor(f)

		label := lipgloss.NewStyle().Foreground(colorLabel).Width(labelW).Render(truncate(f.Name(), labelW))
		value := lipgloss.NewStyle().Width(valueW).Align(lipgloss.Right).Render(chart.RenderValue(st.Last, f.Unit(), color))
		spark := frameL + chart.RenderSparklinePoints(pts, chartWidth, lo, hi, color) + frameR
		stats := dimS.Render(" lo") + valS.Render(fmt.Sprintf("%7.1f", st.Min)) +
			dimS.Render(" avg") + valS.Render(fmt.Sprintf("%7.1f", st.Avg)) +
			dimS.Render(" pk") + valS.Render(fmt.Sprintf("%7.1f", st.Peak))

		rows = append(rows, label+" "+value+" "+spark+stats)
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

// renderTable lists the most recent records, newest first.
func (m Model) renderTable(totalWidth int) string {
	headS := lipgloss.NewStyle().Bold(true).Foreground(colorCardName)
	rowS := lipgloss.NewStyle().Foreground(colorLabel)

	rows := []string{headS.Render(fmt.Sprintf("%-8s %6s %6s %7s %7s %7s  %-10s %-10s %-10s",
		"time", "Temp", "Hum", "MQ135", "MQ2", "MQ7", "Status_135", "Status_MQ2", "Status_MQ7"))}

	records := m.snap.History
	for i := len(records) - 1; i >= 0 && len(records)-i <= tableRows; i-- {
		r := records[i]
		line := rowS.Render(fmt.Sprintf("%-8s %6.1f %6.1f %7.1f %7.1f %7.1f  ",
			r.Timestamp, r.Temperature, r.Humidity, r.MQ135, r.MQ2, r.MQ7))
		for _, g := range sensor.Gases {
			res := r.Results.Get(g)
			line += lipgloss.NewStyle().Foreground(chart.LabelColor(g, res.Label)).
				Render(fmt.Sprintf("%-10s ", truncate(res.Label, 10)))
		}
		rows = append(rows, line)
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

	left := dimS.Render(fmt.Sprintf("rx %d  ok %d  bad %d  pub! %d",
		m.snap.Counters.Received, m.snap.Counters.Processed,
		m.snap.Counters.Rejected, m.snap.Counters.PublishFailures))
	if m.status != "" {
		left = keyS.Render(m.status)
	}

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  tab/1/2") + keyS.Render(":charts") +
		dimS.Render("  r") + keyS.Render(":table") +
		dimS.Render("  e") + keyS.Render(":export") +
		dimS.Render("  j/k") + keyS.Render(":scroll")

	gap := width - lipgloss.Width(left) - lipgloss.Width(keys) - 4
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(left + strings.Repeat(" ", gap) + keys)
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

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
