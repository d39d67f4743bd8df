// Package store handles CSV persistence of history records: one-shot exports
// of the in-memory history and optional daily recording files, both stored
// in the configured data directory.
package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/luki/labmonitor/internal/classify"
	"github.com/luki/labmonitor/internal/history"
	"github.com/luki/labmonitor/internal/sensor"
)

const (
	fileLayout   = "2006-01-02"
	exportLayout = "20060102_150405"
	exportPrefix = "lab_monitor_"
)

// Header is the CSV column layout shared by exports and recordings.
var Header = []string{"time", "Temp", "Hum", "MQ135", "MQ2", "MQ7", "Status_135", "Status_MQ2", "Status_MQ7"}

// ── Writing ──────────────────────────────────────────────────────────

// WriteCSV writes records with a header row.
func WriteCSV(w io.Writer, records []history.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(r history.Record) []string {
	return []string{
		r.Timestamp,
		fmt.Sprintf("%.1f", r.Temperature),
		fmt.Sprintf("%.1f", r.Humidity),
		fmt.Sprintf("%.1f", r.MQ135),
		fmt.Sprintf("%.1f", r.MQ2),
		fmt.Sprintf("%.1f", r.MQ7),
		r.Results.Get(sensor.MQ135).Label,
		r.Results.Get(sensor.MQ2).Label,
		r.Results.Get(sensor.MQ7).Label,
	}
}

// ExportName returns the export file name for t, e.g.
// lab_monitor_20260221_143005.csv.
func ExportName(t time.Time) string {
	return exportPrefix + t.Format(exportLayout) + ".csv"
}

// Export writes records to a new timestamped file in dir and returns its
// path.
func Export(dir string, records []history.Record, t time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("cannot create export dir: %w", err)
	}
	path := filepath.Join(dir, ExportName(t))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteCSV(f, records); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}

// ── Daily recording ──────────────────────────────────────────────────

// DiskStore appends every record to <dir>/YYYY-MM-DD.csv, rotating when the
// date changes.
type DiskStore struct {
	dir     string
	current io.WriteCloser
	writer  *csv.Writer
	curDate string
	open    func(path string) (f io.WriteCloser, isNew bool, err error)
}

// New creates a disk store, creating dir if needed.
func New(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create data dir: %w", err)
	}
	return &DiskStore{dir: dir, open: openAppend}, nil
}

func openAppend(path string) (io.WriteCloser, bool, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, false, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, err
	}
	return f, info.Size() == 0, nil
}

// Dir returns the data directory.
func (d *DiskStore) Dir() string { return d.dir }

// Write appends one record to the file for its date.
func (d *DiskStore) Write(r history.Record) error {
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	dateStr := t.Format(fileLayout)

	if d.curDate != dateStr || d.current == nil {
		d.Close()
		path := filepath.Join(d.dir, dateStr+".csv")
		f, isNew, err := d.open(path)
		if err != nil {
			return err
		}
		d.current = f
		d.writer = csv.NewWriter(f)
		d.curDate = dateStr

		if isNew {
			d.writer.Write(Header)
			d.writer.Flush()
			if err := d.writer.Error(); err != nil {
				d.Close()
				return fmt.Errorf("write header to %s: %w", path, err)
			}
		}
	}

	d.writer.Write(row(r))
	d.writer.Flush()
	return d.writer.Error()
}

// Close flushes and closes the current file.
func (d *DiskStore) Close() {
	if d.writer != nil {
		d.writer.Flush()
		d.writer = nil
	}
	if d.current != nil {
		d.current.Close()
		d.current = nil
	}
}

// ── Reading ──────────────────────────────────────────────────────────

// ListFiles returns the CSV files in dir, newest first. Daily recordings
// and exports both sort by the date embedded in their name.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return sortKey(files[i]) > sortKey(files[j])
	})
	return files, nil
}

// sortKey normalises "2026-02-21.csv" and "lab_monitor_20260221_143005.csv"
// to a comparable "20260221..." string.
func sortKey(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".csv")
	name = strings.TrimPrefix(name, exportPrefix)
	return strings.ReplaceAll(name, "-", "")
}

// LoadFile reads all records from a CSV file, skipping the header and
// malformed rows. Record times carry only the time of day.
func LoadFile(path string) ([]history.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var records []history.Record
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == Header[0] {
			continue
		}
		if len(row) < len(Header) {
			continue
		}

		t, err := time.Parse(sensor.TimeLayout, row[0])
		if err != nil {
			continue
		}
		vals := make([]float64, 5)
		for j := range vals {
			vals[j], _ = strconv.ParseFloat(row[j+1], 64)
		}

		records = append(records, history.Record{
			Observation: sensor.Observation{
				Temperature: vals[0],
				Humidity:    vals[1],
				MQ135:       vals[2],
				MQ2:         vals[3],
				MQ7:         vals[4],
				Time:        t,
				Timestamp:   row[0],
			},
			Results: classify.Results{
				{Label: row[6]},
				{Label: row[7]},
				{Label: row[8]},
			},
		})
	}

	return records, nil
}
