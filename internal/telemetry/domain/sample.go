package telemetry

import "time"

// Field identifies one numeric measurement a sample may carry.
type Field string

const (
	FieldTemperature Field = "temperature_c"
	FieldHumidity    Field = "humidity_pct"
)

// Fields returns every known measurement field.
func Fields() []Field {
	return []Field{FieldTemperature, FieldHumidity}
}

// Sample is one observation from one source. Immutable after ingestion;
// a nil field means the source did not report it or parsing failed.
type Sample struct {
	SourceID   string
	Timestamp  time.Time
	ReceivedAt time.Time
	Topic      string

	Temperature *float64
	Humidity    *float64
}

// Value returns the named field if present.
func (s Sample) Value(field Field) (float64, bool) {
	switch field {
	case FieldTemperature:
		if s.Temperature != nil {
			return *s.Temperature, true
		}
	case FieldHumidity:
		if s.Humidity != nil {
			return *s.Humidity, true
		}
	}
	return 0, false
}
