package sensor

import "strings"

// Gas identifies one of the three gas sensors on the node.
type Gas int

const (
	MQ135 Gas = iota
	MQ2
	MQ7
)

// Gases lists the sensors in dashboard order.
var Gases = []Gas{MQ135, MQ2, MQ7}

// gasIdentityMap maps each sensor to its payload field and friendly names.
var gasIdentityMap = []struct {
	gas     Gas
	key     string
	field   string
	title   string
	purpose string
}{
	{MQ135, "mq135", "mq135_ppm", "MQ-135", "Air Quality"},
	{MQ2, "mq2", "mq2_ppm", "MQ-2", "Smoke"},
	{MQ7, "mq7", "mq7_ppm", "MQ-7", "CO/Gas"},
}

// String returns the short key, e.g. "mq135".
func (g Gas) String() string {
	for _, e := range gasIdentityMap {
		if e.gas == g {
			return e.key
		}
	}
	return "unknown"
}

// Field returns the inbound payload field holding this sensor's ppm value.
func (g Gas) Field() string {
	for _, e := range gasIdentityMap {
		if e.gas == g {
			return e.field
		}
	}
	return ""
}

// Title returns the display name, e.g. "MQ-135".
func (g Gas) Title() string {
	for _, e := range gasIdentityMap {
		if e.gas == g {
			return e.title
		}
	}
	return "Sensor"
}

// Purpose returns what the sensor measures, e.g. "Air Quality".
func (g Gas) Purpose() string {
	for _, e := range gasIdentityMap {
		if e.gas == g {
			return e.purpose
		}
	}
	return ""
}

// ParseGas resolves a key, field or title ("mq2", "mq2_ppm", "MQ-2").
func ParseGas(s string) (Gas, bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, e := range gasIdentityMap {
		if lower == e.key || lower == e.field || lower == strings.ToLower(e.title) {
			return e.gas, true
		}
	}
	return 0, false
}
