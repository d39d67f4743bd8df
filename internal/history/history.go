// Package history provides the bounded FIFO store of past observations and
// their classifications, plus per-series extraction and min/peak/avg
// statistics for chart rendering.
package history

import (
	"math"
	"time"

	"github.com/luki/labmonitor/internal/classify"
	"github.com/luki/labmonitor/internal/sensor"
)

// DefaultCapacity is the number of records kept when none is configured.
const DefaultCapacity = 1000

// Record is one observation plus the classification of its gas readings.
// Records are never modified once stored.
type Record struct {
	sensor.Observation
	Results classify.Results
}

// Store is a FIFO of records capped at a fixed length; the oldest record is
// evicted first.
type Store struct {
	records []Record
	max     int
}

// NewStore creates a store holding at most capacity records.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		records: make([]Record, 0, capacity),
		max:     capacity,
	}
}

// Push appends a record, evicting the oldest one when the store is full.
// It reports whether a record was evicted.
func (s *Store) Push(r Record) bool {
	if len(s.records) >= s.max {
		copy(s.records, s.records[1:])
		s.records[len(s.records)-1] = r
		return true
	}
	s.records = append(s.records, r)
	return false
}

// Len returns the number of stored records.
func (s *Store) Len() int { return len(s.records) }

// Cap returns the maximum number of records.
func (s *Store) Cap() int { return s.max }

// Records returns a copy of all records, oldest first.
func (s *Store) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// ── Series ───────────────────────────────────────────────────────────

// Field selects one numeric column of a record.
type Field int

const (
	Temperature Field = iota
	Humidity
	MQ135
	MQ2
	MQ7
)

// GasFields are the gas concentration series, in dashboard order.
var GasFields = []Field{MQ135, MQ2, MQ7}

// EnvFields are the environment series.
var EnvFields = []Field{Temperature, Humidity}

// Name returns the column name used in charts and CSV files.
func (f Field) Name() string {
	switch f {
	case Temperature:
		return "Temp"
	case Humidity:
		return "Hum"
	case MQ135:
		return "MQ135"
	case MQ2:
		return "MQ2"
	case MQ7:
		return "MQ7"
	}
	return "?"
}

// Unit returns the display unit of the field.
func (f Field) Unit() string {
	switch f {
	case Temperature:
		return "°C"
	case Humidity:
		return "%"
	}
	return "ppm"
}

// Value extracts the field from a record.
func (f Field) Value(r Record) float64 {
	switch f {
	case Temperature:
		return r.Temperature
	case Humidity:
		return r.Humidity
	case MQ135:
		return r.MQ135
	case MQ2:
		return r.MQ2
	case MQ7:
		return r.MQ7
	}
	return 0
}

// Point is a single value of a series.
type Point struct {
	Value float64
	Time  time.Time
}

// Series extracts one field of every record as chart points.
func Series(records []Record, f Field) []Point {
	pts := make([]Point, len(records))
	for i, r := range records {
		pts[i] = Point{Value: f.Value(r), Time: r.Time}
	}
	return pts
}

// Stats summarises a series.
type Stats struct {
	Min  float64
	Peak float64
	Avg  float64
	Last float64
}

// Summarize returns min/peak/avg/last of pts; all zero when empty.
func Summarize(pts []Point) Stats {
	if len(pts) == 0 {
		return Stats{}
	}
	st := Stats{Min: math.MaxFloat64, Peak: -math.MaxFloat64}
	sum := 0.0
	for _, p := range pts {
		if p.Value < st.Min {
			st.Min = p.Value
		}
		if p.Value > st.Peak {
			st.Peak = p.Value
		}
		sum += p.Value
	}
	st.Avg = sum / float64(len(pts))
	st.Last = pts[len(pts)-1].Value
	return st
}
