package application

import (
	"errors"
	"log"
	"strings"
	"time"

	"hygrostat-cloud/internal/observability/metrics"
	telemetry "hygrostat-cloud/internal/telemetry/domain"
)

// SampleSink receives every recorded sample, after it is appended. Used
// to feed the archive pipeline; it must not block.
type SampleSink func(sample telemetry.Sample)

// Ingestor turns inbound bus messages into samples. It is the only writer
// into the sample store. A malformed message is dropped and counted; no
// failure escapes to the delivery loop.
type Ingestor struct {
	store  *telemetry.SampleStore
	logger *log.Logger
	sink   SampleSink
}

// IngestorOption customizes the ingestor.
type IngestorOption func(*Ingestor)

// WithSampleSink forwards recorded samples to a sink.
func WithSampleSink(sink SampleSink) IngestorOption {
	return func(i *Ingestor) { i.sink = sink }
}

// NewIngestor constructs an ingestor.
func NewIngestor(store *telemetry.SampleStore, logger *log.Logger, opts ...IngestorOption) (*Ingestor, error) {
	if store == nil {
		return nil, errors.New("telemetry ingest: nil store")
	}
	if logger == nil {
		logger = log.Default()
	}
	i := &Ingestor{store: store, logger: logger}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Ingest parses one message and appends the resulting sample. The sample
// is recorded as long as a source id can be determined; fields that fail
// both the structured and the pattern parse stay absent.
func (i *Ingestor) Ingest(topic string, payload []byte, receivedAt time.Time) {
	start := time.Now()
	text := string(payload)
	parsed := parseObject(text)

	sourceID := inferSourceID(parsed, topic)
	if sourceID == "" {
		metrics.IncIngestDropped("no_source_id")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		return
	}

	temp, hum := parseFields(parsed, text)
	ts := parseTimestamp(parsed)
	if ts.IsZero() {
		ts = receivedAt
	}

	sample := telemetry.Sample{
		SourceID:    sourceID,
		Timestamp:   ts.UTC(),
		ReceivedAt:  receivedAt.UTC(),
		Topic:       topic,
		Temperature: temp,
		Humidity:    hum,
	}
	if err := i.store.Append(sample); err != nil {
		metrics.IncIngestDropped("store_append")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		return
	}
	metrics.IncSampleIngested(sourceID)
	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))
	if i.sink != nil {
		i.sink(sample)
	}
}

// inferSourceID prefers an explicit identifier field, then the trailing
// topic segment, then the topic verbatim.
func inferSourceID(parsed map[string]any, topic string) string {
	if parsed != nil {
		for _, key := range []string{"device_id", "device", "id", "dev", "name"} {
			if v, ok := parsed[key].(string); ok && v != "" {
				return v
			}
		}
	}
	topic = strings.TrimSpace(topic)
	if idx := strings.LastIndex(topic, "/"); idx >= 0 && idx+1 < len(topic) {
		return topic[idx+1:]
	}
	return topic
}
