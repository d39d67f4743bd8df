package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Payload field names of the inbound data topic.
const (
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
)

// ErrNotObject is returned when a payload decodes to something other than a
// JSON object.
var ErrNotObject = errors.New("payload is not a JSON object")

// DecodePayload decodes a raw message payload into its field map.
func DecodePayload(data []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

// ParseObservation builds an Observation from a decoded payload. Missing or
// unparseable fields read as zero. t is converted to loc before formatting.
func ParseObservation(payload map[string]any, t time.Time, loc *time.Location) Observation {
	if loc != nil {
		t = t.In(loc)
	}
	return Observation{
		Temperature: Float(payload, FieldTemperature),
		Humidity:    Float(payload, FieldHumidity),
		MQ135:       Float(payload, MQ135.Field()),
		MQ2:         Float(payload, MQ2.Field()),
		MQ7:         Float(payload, MQ7.Field()),
		Time:        t,
		Timestamp:   t.Format(TimeLayout),
	}
}

// Float reads a numeric field. Numbers, numeric strings and booleans are
// accepted; anything else, including NaN and ±Inf, yields 0.
func Float(payload map[string]any, key string) float64 {
	var v float64
	switch raw := payload[key].(type) {
	case float64:
		v = raw
	case json.Number:
		f, err := raw.Float64()
		if err != nil {
			return 0
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return 0
		}
		v = f
	case bool:
		if raw {
			v = 1
		}
	default:
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
