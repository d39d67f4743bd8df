package pipeline

import (
	"time"

	"github.com/luki/labmonitor/internal/classify"
	"github.com/luki/labmonitor/internal/history"
	"github.com/luki/labmonitor/internal/sensor"
)

// Counters summarise traffic since startup.
type Counters struct {
	Received        uint64 `json:"received"`         // messages queued by the receiver
	Rejected        uint64 `json:"rejected"`         // undecodable payloads
	Pending         int    `json:"pending"`          // still queued after the drain
	Processed       uint64 `json:"processed"`        // data messages turned into observations
	Ignored         uint64 `json:"ignored"`          // messages on other topics
	PublishFailures uint64 `json:"publish_failures"` // results not republished
}

// Snapshot is an immutable view of the application state after one drain.
// Renderers must treat History as read-only.
type Snapshot struct {
	Current     sensor.Observation
	Predictions classify.Results
	HasData     bool
	History     []history.Record
	HistoryCap  int
	Counters    Counters
	Connected   bool
	ConnectErr  error
	Taken       time.Time
}

// LastUpdate returns the timestamp of the current observation, or "-"
// before the first one.
func (s Snapshot) LastUpdate() string {
	if !s.HasData {
		return "-"
	}
	return s.Current.Timestamp
}
