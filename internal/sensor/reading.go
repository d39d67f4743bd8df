// Package sensor defines the lab telemetry observation published by the
// sensor node (DHT temperature/humidity plus MQ-135, MQ-2 and MQ-7 gas
// sensors) and decodes its JSON payloads.
package sensor

import (
	"fmt"
	"time"
)

// TimeLayout is the wall-clock format used for observation timestamps.
const TimeLayout = "15:04:05"

// Observation is one decoded sensor snapshot.
type Observation struct {
	Temperature float64   // °C
	Humidity    float64   // %RH
	MQ135       float64   // ppm, air quality
	MQ2         float64   // ppm, smoke / LPG
	MQ7         float64   // ppm, carbon monoxide
	Time        time.Time // receive time in the configured zone
	Timestamp   string    // Time formatted as HH:MM:SS
}

// Gas returns the ppm reading of the given gas sensor.
func (o Observation) Gas(g Gas) float64 {
	switch g {
	case MQ135:
		return o.MQ135
	case MQ2:
		return o.MQ2
	case MQ7:
		return o.MQ7
	}
	return 0
}

// Zone returns a fixed zone for the given UTC offset, e.g. 7h -> "UTC+7".
func Zone(offset time.Duration) *time.Location {
	name := "UTC"
	switch {
	case offset == 0:
	case offset%time.Hour == 0:
		name = fmt.Sprintf("UTC%+d", int(offset/time.Hour))
	default:
		name = "UTC" + offset.String()
	}
	return time.FixedZone(name, int(offset/time.Second))
}
