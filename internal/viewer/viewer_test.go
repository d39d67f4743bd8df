package viewer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/luki/labmonitor/internal/classify"
	"github.com/luki/labmonitor/internal/history"
	"github.com/luki/labmonitor/internal/sensor"
	"github.com/luki/labmonitor/internal/store"
)

func writeFile(t *testing.T, dir, name string, n int, label string) {
	t.Helper()
	base := time.Date(0, 1, 1, 9, 0, 0, 0, time.UTC)
	var recs []history.Record
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * 2 * time.Second)
		recs = append(recs, history.Record{
			Observation: sensor.Observation{Temperature: 24 + float64(i), Humidity: 55, MQ135: 100, MQ2: 4, MQ7: 2, Time: ts, Timestamp: ts.Format(sensor.TimeLayout)},
			Results:     classify.Results{{Label: label}, {Label: "clean"}, {Label: "N/A"}},
		})
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := store.WriteCSV(f, recs); err != nil {
		t.Fatal(err)
	}
}

func setup(t *testing.T) Model {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "2026-02-20.csv", 3, "Sedang")
	writeFile(t, dir, "2026-02-21.csv", 50, "Baik")

	files, err := store.ListFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	m := New(files)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 100})
	return next.(Model)
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "left":
			msg = tea.KeyMsg{Type: tea.KeyLeft}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		case "home":
			msg = tea.KeyMsg{Type: tea.KeyHome}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestOpensNewestFileAtEnd(t *testing.T) {
	m := setup(t)
	if len(m.records) != 50 {
		t.Fatalf("records = %d, want 50 from the newest file", len(m.records))
	}
	if m.cursor != 49 {
		t.Errorf("cursor = %d, want 49", m.cursor)
	}

	view := m.View()
	for _, want := range []string{"LAB HISTORY", "2026-02-21.csv", "50 records", "Gas Sensors", "Environment", "Baik"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestCursorKeys(t *testing.T) {
	m := setup(t)

	tests := []struct {
		keys []string
		want int
	}{
		{[]string{"l"}, 49},
		{[]string{"h", "h"}, 47},
		{[]string{"H"}, 17},
		{[]string{"H"}, 0},
		{[]string{"h"}, 0},
		{[]string{"L"}, 30},
		{[]string{"L"}, 49},
		{[]string{"home"}, 0},
	}
	for _, tt := range tests {
		m = press(m, tt.keys...)
		if m.cursor != tt.want {
			t.Fatalf("after %v cursor = %d, want %d", tt.keys, m.cursor, tt.want)
		}
	}
}

func TestFileSwitching(t *testing.T) {
	m := setup(t)

	m = press(m, "left")
	if m.fileIdx != 1 || len(m.records) != 3 || m.cursor != 2 {
		t.Fatalf("left: file %d, %d records, cursor %d", m.fileIdx, len(m.records), m.cursor)
	}
	if !strings.Contains(m.View(), "Sedang") {
		t.Error("older file statuses not shown")
	}

	m = press(m, "left")
	if m.fileIdx != 1 {
		t.Errorf("moved past the oldest file: %d", m.fileIdx)
	}

	m = press(m, "right")
	if m.fileIdx != 0 || len(m.records) != 50 {
		t.Errorf("right: file %d, %d records", m.fileIdx, len(m.records))
	}
}

func TestSparkWindow(t *testing.T) {
	recs := make([]history.Record, 100)
	for i := range recs {
		recs[i].MQ2 = float64(i)
	}

	tests := []struct {
		name             string
		cursor, width    int
		wantFirst, wantN int
	}{
		{"centred", 50, 20, 40, 20},
		{"clamped start", 3, 20, 0, 20},
		{"clamped end", 99, 20, 80, 20},
		{"short file", 0, 200, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := sparkWindow(recs, tt.cursor, tt.width)
			if len(w) != tt.wantN {
				t.Fatalf("len = %d, want %d", len(w), tt.wantN)
			}
			if int(w[0].MQ2) != tt.wantFirst {
				t.Errorf("first = %v, want %d", w[0].MQ2, tt.wantFirst)
			}
		})
	}
}

func TestEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2026-02-22.csv")
	if err := os.WriteFile(path, []byte(strings.Join(store.Header, ",")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	m := New([]string{path})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)

	if !strings.Contains(m.View(), "No data in this file.") {
		t.Error("empty file not reported")
	}
	m = press(m, "l", "L", "h")
	if m.cursor != 0 {
		t.Errorf("cursor = %d on empty file", m.cursor)
	}
}

func TestScrollClamped(t *testing.T) {
	m := setup(t)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 6})
	m = next.(Model)

	limit := m.maxScroll()
	if limit == 0 {
		t.Fatal("content fits; nothing to scroll")
	}
	for i := 0; i < 100; i++ {
		m = press(m, "j")
	}
	if m.scroll != limit {
		t.Fatalf("scroll = %d, want %d", m.scroll, limit)
	}
	m = press(m, "k")
	if m.scroll != limit-1 {
		t.Errorf("k after overscrolling: scroll = %d, want %d", m.scroll, limit-1)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Tidak Sehat", 8); got != "Tidak S…" {
		t.Errorf("ascii: got %q", got)
	}
	if got := truncate("Qualité mauvaise", 8); got != "Qualité…" {
		t.Errorf("accented: got %q", got)
	}
}
