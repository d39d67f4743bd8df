// Package chart renders sparklines with minute tick marks, timeline labels,
// confidence bars and status colours for the lab dashboard.
package chart

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/labmonitor/internal/history"
	"github.com/luki/labmonitor/internal/sensor"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Status colours.
var (
	ColorGood    = lipgloss.Color("#10b981")
	ColorWarn    = lipgloss.Color("#f59e0b")
	ColorDanger  = lipgloss.Color("#ef4444")
	ColorUnknown = lipgloss.Color("243")
)

// Series colours.
var (
	ColorBlue  = lipgloss.Color("#3b82f6")
	ColorRed   = lipgloss.Color("#ef4444")
	ColorAmber = lipgloss.Color("#f59e0b")
)

// LabelColor returns the status colour for a classification label. MQ-135
// grades air quality ("Baik" good, "Sedang" moderate, anything else bad);
// MQ-2 and MQ-7 flag "smoke".
func LabelColor(g sensor.Gas, label string) lipgloss.Color {
	switch label {
	case "N/A", "Error", "Waiting...":
		return ColorUnknown
	}
	if g == sensor.MQ135 {
		switch label {
		case "Baik":
			return ColorGood
		case "Sedang":
			return ColorWarn
		default:
			return ColorDanger
		}
	}
	if strings.EqualFold(label, "smoke") {
		return ColorDanger
	}
	return ColorGood
}

// SeriesColor returns the line colour of a history field.
func SeriesColor(f history.Field) lipgloss.Color {
	switch f {
	case history.MQ135, history.Humidity:
		return ColorBlue
	case history.MQ2, history.Temperature:
		return ColorRed
	case history.MQ7:
		return ColorAmber
	}
	return ColorUnknown
}

// Range returns a padded [min, max] covering pts, never below zero for
// non-negative data.
func Range(pts []history.Point) (float64, float64) {
	st := history.Summarize(pts)
	if len(pts) == 0 {
		return 0, 1
	}
	pad := (st.Peak - st.Min) * 0.1
	if pad == 0 {
		pad = math.Max(1, math.Abs(st.Peak)*0.1)
	}
	lo := st.Min - pad
	if st.Min >= 0 {
		lo = math.Max(0, lo)
	}
	return lo, st.Peak + pad
}

// RenderSparklinePoints renders a sparkline with minute tick marks on the
// timeline. A subtle pipe is drawn at each minute boundary.
func RenderSparklinePoints(points []history.Point, width int, rangeMin, rangeMax float64, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	if len(points) == 0 {
		return dim.Render(strings.Repeat("╌", width))
	}

	if len(points) > width {
		points = points[len(points)-width:]
	}

	padLen := width - len(points)
	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder
	for i := 0; i < padLen; i++ {
		sb.WriteString(dim.Render("╌"))
	}

	tickStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	lineStyle := lipgloss.NewStyle().Foreground(color)

	for i, p := range points {
		norm := (p.Value - rangeMin) / span
		norm = math.Max(0, math.Min(1, norm))

		idx := int(norm * 7)
		if idx > 7 {
			idx = 7
		}

		if isMinuteTick(points, i) {
			sb.WriteString(tickStyle.Render("│"))
		} else {
			sb.WriteString(lineStyle.Render(string(sparkBlocks[idx])))
		}
	}

	return sb.String()
}

func isMinuteTick(points []history.Point, i int) bool {
	p := points[i]
	if p.Time.IsZero() {
		return false
	}
	if p.Time.Second() == 0 {
		return true
	}
	return i > 0 && !points[i-1].Time.IsZero() && p.Time.Minute() != points[i-1].Time.Minute()
}

// RenderTimeline renders the time labels under the sparkline, showing
// HH:MM at each minute tick position.
func RenderTimeline(points []history.Point, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}

	if len(points) > width {
		points = points[len(points)-width:]
	}

	padLen := width - len(points)

	line := make([]rune, width)
	for i := range line {
		line[i] = ' '
	}

	type tick struct {
		pos   int
		label string
	}
	var ticks []tick
	for i, p := range points {
		if isMinuteTick(points, i) {
			ticks = append(ticks, tick{pos: padLen + i, label: p.Time.Format("15:04")})
		}
	}

	lastEnd := -1
	for _, t := range ticks {
		start := t.pos - 2
		if start < 0 {
			start = 0
		}
		end := start + len(t.label)
		if end > width {
			continue
		}
		if start <= lastEnd+1 {
			continue
		}
		for j, ch := range t.label {
			line[start+j] = ch
		}
		lastEnd = end
	}

	return lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render(string(line))
}

// RenderConfidenceBar renders a 0-100% bar with a diamond at the current
// confidence.
func RenderConfidenceBar(confidence float64, width int, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	confidence = math.Max(0, math.Min(100, confidence))
	pos := int(float64(width-1) * confidence / 100)

	filled := lipgloss.NewStyle().Foreground(color)
	empty := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))

	var sb strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == pos:
			sb.WriteString(filled.Bold(true).Render("◆"))
		case i < pos:
			sb.WriteString(filled.Render("━"))
		default:
			sb.WriteString(empty.Render("·"))
		}
	}
	return sb.String()
}

// RenderValue renders a reading with its unit in the given colour.
func RenderValue(v float64, unit string, color lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("%7.1f %s", v, unit))
}
