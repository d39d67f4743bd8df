package monitor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/luki/labmonitor/internal/classify"
	"github.com/luki/labmonitor/internal/history"
	"github.com/luki/labmonitor/internal/pipeline"
	"github.com/luki/labmonitor/internal/sensor"
)

type fakeEngine struct {
	snap   pipeline.Snapshot
	cycles int
}

func (f *fakeEngine) Cycle() pipeline.Snapshot {
	f.cycles++
	return f.snap
}

var fixedNow = time.Date(2026, 2, 21, 14, 30, 5, 0, time.UTC)

func liveSnapshot() pipeline.Snapshot {
	var recs []history.Record
	preds := classify.Results{{Label: "Baik", Confidence: 92}, {Label: "smoke", Confidence: 70.5}, {Label: "N/A"}}
	for i := 0; i < 5; i++ {
		t := fixedNow.Add(time.Duration(i-5) * 2 * time.Second)
		obs := sensor.Observation{Temperature: 25, Humidity: 60, MQ135: 120 + float64(i), MQ2: 5, MQ7: 3, Time: t, Timestamp: t.Format(sensor.TimeLayout)}
		recs = append(recs, history.Record{Observation: obs, Results: preds})
	}
	last := recs[len(recs)-1]
	return pipeline.Snapshot{
		Current:     last.Observation,
		Predictions: preds,
		HasData:     true,
		History:     recs,
		HistoryCap:  1000,
		Connected:   true,
		Taken:       fixedNow,
	}
}

func newModel(e Cycler, dir string) Model {
	m := New(Options{Engine: e, Interval: time.Second, DataDir: dir, Broker: "broker:1883", Now: func() time.Time { return fixedNow }})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 180, Height: 200})
	return next.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTickRunsCycle(t *testing.T) {
	e := &fakeEngine{snap: liveSnapshot()}
	m := newModel(e, t.TempDir())

	m, cmd := update(t, m, tickMsg(fixedNow))
	if e.cycles != 1 {
		t.Fatalf("cycles = %d, want 1", e.cycles)
	}
	if cmd == nil {
		t.Fatal("tick must schedule the next tick")
	}
	if !m.Snapshot().HasData {
		t.Error("snapshot not taken from the engine")
	}
}

func TestWaitingView(t *testing.T) {
	m := newModel(&fakeEngine{}, t.TempDir())
	view := m.View()

	for _, want := range []string{"LAB MONITOR", "WAITING...", "Waiting for sensor data", "MQTT offline", "last -"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestLiveView(t *testing.T) {
	e := &fakeEngine{snap: liveSnapshot()}
	m := newModel(e, t.TempDir())
	m, _ = update(t, m, tickMsg(fixedNow))

	view := m.View()
	for _, want := range []string{"MQ-135", "MQ-2", "MQ-7", "BAIK", "SMOKE", "N/A", "92.0%", "Gas Sensors", "MQ135", "last 14:30:03", "MQTT broker:1883"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "Status_135") {
		t.Error("raw table shown before toggling")
	}

	m, _ = update(t, m, key("r"))
	if !strings.Contains(m.View(), "Status_135") {
		t.Error("raw table not shown after r")
	}
}

func TestConnectErrorShown(t *testing.T) {
	snap := liveSnapshot()
	snap.Connected = false
	snap.ConnectErr = errors.New("mqtt connect: network unreachable")
	m := newModel(&fakeEngine{snap: snap}, t.TempDir())
	m, _ = update(t, m, tickMsg(fixedNow))

	if !strings.Contains(m.View(), "network unreachable") {
		t.Error("connection error not rendered")
	}
}

func TestTabKeys(t *testing.T) {
	m := newModel(&fakeEngine{snap: liveSnapshot()}, t.TempDir())

	tests := []struct {
		key  string
		want tab
	}{
		{"tab", tabEnv},
		{"tab", tabGas},
		{"2", tabEnv},
		{"2", tabEnv},
		{"1", tabGas},
	}
	for _, tt := range tests {
		m, _ = update(t, m, key(tt.key))
		if m.tab != tt.want {
			t.Fatalf("after %q tab = %v, want %v", tt.key, m.tab, tt.want)
		}
	}
}

func TestScrollKeys(t *testing.T) {
	m := New(Options{Engine: &fakeEngine{snap: liveSnapshot()}, Now: func() time.Time { return fixedNow }})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 180, Height: 8})
	m, _ = update(t, m, tickMsg(fixedNow))

	m, _ = update(t, m, key("k"))
	if m.scroll != 0 {
		t.Fatalf("scroll went negative: %d", m.scroll)
	}
	m, _ = update(t, m, key("j"))
	m, _ = update(t, m, key("j"))
	if m.scroll != 2 {
		t.Fatalf("scroll = %d, want 2", m.scroll)
	}

	limit := m.maxScroll()
	if limit < 3 {
		t.Fatalf("content too short to scroll: max %d", limit)
	}
	for i := 0; i < 200; i++ {
		m, _ = update(t, m, key("j"))
	}
	if m.scroll != limit {
		t.Fatalf("scroll = %d after overscrolling, want %d", m.scroll, limit)
	}
	m, _ = update(t, m, key("k"))
	if m.scroll != limit-1 {
		t.Errorf("k after overscrolling: scroll = %d, want %d", m.scroll, limit-1)
	}

	// Growing the window shrinks the useful range.
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 180, Height: 500})
	if m.scroll != 0 {
		t.Errorf("scroll = %d after resize, want 0", m.scroll)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		w    int
		want string
	}{
		{"Baik", 10, "Baik"},
		{"Tidak Sehat", 10, "Tidak Seh…"},
		{"Écologique", 4, "Éco…"},
		{"日本語ラベル", 3, "日本語"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.w); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.w, got, tt.want)
		}
	}
}

func TestRecordingDirInTitle(t *testing.T) {
	m := New(Options{Engine: &fakeEngine{}, RecordDir: "/data/lab", Now: func() time.Time { return fixedNow }})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 180, Height: 100})
	if !strings.Contains(m.View(), "REC /data/lab") {
		t.Error("recording directory not shown")
	}
}

func TestQuit(t *testing.T) {
	m := newModel(&fakeEngine{}, t.TempDir())
	_, cmd := update(t, m, key("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	m := newModel(&fakeEngine{snap: liveSnapshot()}, dir)

	m, cmd := update(t, m, key("e"))
	if cmd != nil || m.status != "nothing to export yet" {
		t.Fatalf("export before data: status %q", m.status)
	}

	m, _ = update(t, m, tickMsg(fixedNow))
	m, cmd = update(t, m, key("e"))
	if cmd == nil {
		t.Fatal("export returned no command")
	}
	m, _ = update(t, m, cmd())

	path := filepath.Join(dir, "lab_monitor_20260221_143005.csv")
	if m.status != "exported "+path {
		t.Errorf("status = %q", m.status)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 6 {
		t.Errorf("exported %d lines, want header + 5", len(lines))
	}
}
