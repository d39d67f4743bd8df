package chart

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/labmonitor/internal/history"
	"github.com/luki/labmonitor/internal/sensor"
)

func TestSparkline(t *testing.T) {
	var pts []history.Point
	for _, v := range []float64{30, 35, 40, 50, 60, 70, 80, 90, 100} {
		pts = append(pts, history.Point{Value: v})
	}
	result := RenderSparklinePoints(pts, 20, 20, 110, ColorBlue)
	if len(result) == 0 {
		t.Error("sparkline should not be empty")
	}
	if w := lipgloss.Width(result); w != 20 {
		t.Errorf("sparkline width: got %d, want 20", w)
	}
	t.Logf("Sparkline: %s", result)
}

func TestSparklineMinuteTicks(t *testing.T) {
	base := time.Date(2026, 2, 21, 14, 0, 50, 0, time.Local)
	var pts []history.Point
	for i := 0; i < 20; i++ {
		pts = append(pts, history.Point{
			Value: float64(40 + i%5),
			Time:  base.Add(time.Duration(i) * time.Second),
		})
	}

	result := RenderSparklinePoints(pts, 20, 30, 55, ColorRed)
	if !strings.Contains(result, "│") {
		t.Error("expected minute tick mark in sparkline")
	}

	timeline := RenderTimeline(pts, 20)
	if !strings.Contains(timeline, "14:01") {
		t.Errorf("expected 14:01 label in timeline, got %q", timeline)
	}
	t.Logf("Sparkline with ticks: %s", result)
}

func TestLabelColor(t *testing.T) {
	tests := []struct {
		gas   sensor.Gas
		label string
		want  lipgloss.Color
	}{
		{sensor.MQ135, "Baik", ColorGood},
		{sensor.MQ135, "Sedang", ColorWarn},
		{sensor.MQ135, "Tidak_Sehat", ColorDanger},
		{sensor.MQ2, "smoke", ColorDanger},
		{sensor.MQ7, "clean", ColorGood},
		{sensor.MQ2, "N/A", ColorUnknown},
		{sensor.MQ135, "Error", ColorUnknown},
	}
	for _, tt := range tests {
		if got := LabelColor(tt.gas, tt.label); got != tt.want {
			t.Errorf("LabelColor(%s, %q) = %v, want %v", tt.gas, tt.label, got, tt.want)
		}
	}
}

func TestRangeAndConfidenceBar(t *testing.T) {
	lo, hi := Range([]history.Point{{Value: 10}, {Value: 20}})
	if lo != 9 || hi != 21 {
		t.Errorf("Range: got [%v, %v], want [9, 21]", lo, hi)
	}
	lo, hi = Range([]history.Point{{Value: 0}, {Value: 0}})
	if lo != 0 || hi != 1 {
		t.Errorf("flat Range: got [%v, %v], want [0, 1]", lo, hi)
	}

	bar := RenderConfidenceBar(92, 10, ColorGood)
	if w := lipgloss.Width(bar); w != 10 {
		t.Errorf("bar width: got %d, want 10", w)
	}
	if !strings.Contains(bar, "◆") {
		t.Error("bar should mark the confidence")
	}
}
