package application

import (
	"log"
	"testing"
	"time"

	telemetry "hygrostat-cloud/internal/telemetry/domain"
)

func newTestIngestor(t *testing.T) (*Ingestor, *telemetry.SampleStore) {
	t.Helper()
	store, err := telemetry.NewSampleStore(100)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ing, err := NewIngestor(store, log.Default())
	if err != nil {
		t.Fatalf("new ingestor: %v", err)
	}
	return ing, store
}

func TestIngestStructuredPayload(t *testing.T) {
	ing, store := newTestIngestor(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	ing.Ingest("MSN/group6/sensors/easylog-01", []byte(`{"device_id":"easylog-01","temperature":24.5,"humidity":48.8,"ts":1754049600000}`), now)

	sample, ok := store.Latest("easylog-01")
	if !ok {
		t.Fatal("expected sample recorded under payload device id")
	}
	if sample.Temperature == nil || *sample.Temperature != 24.5 {
		t.Fatalf("unexpected temperature %v", sample.Temperature)
	}
	if sample.Humidity == nil || *sample.Humidity != 48.8 {
		t.Fatalf("unexpected humidity %v", sample.Humidity)
	}
	if sample.Timestamp.Equal(now) {
		t.Fatal("expected device timestamp, not receipt time")
	}
	if !sample.ReceivedAt.Equal(now) {
		t.Fatalf("unexpected receipt time %v", sample.ReceivedAt)
	}
}

func TestIngestNestedPayload(t *testing.T) {
	ing, store := newTestIngestor(t)
	now := time.Now().UTC()

	ing.Ingest("MSN/group6/sensors/sense-hat", []byte(`{"device_id":"sense-hat","payload":{"temp":21.0,"hum":55.5}}`), now)

	sample, ok := store.Latest("sense-hat")
	if !ok {
		t.Fatal("expected sample")
	}
	if sample.Temperature == nil || *sample.Temperature != 21.0 {
		t.Fatalf("unexpected temperature %v", sample.Temperature)
	}
	if sample.Humidity == nil || *sample.Humidity != 55.5 {
		t.Fatalf("unexpected humidity %v", sample.Humidity)
	}
}

func TestIngestTextPatternFallback(t *testing.T) {
	ing, store := newTestIngestor(t)
	now := time.Now().UTC()

	ing.Ingest("MSN/group6/sensors/easylog-01", []byte("temp:24.3 hum:48.8"), now)

	sample, ok := store.Latest("easylog-01")
	if !ok {
		t.Fatal("expected sample recorded from topic segment")
	}
	if sample.Temperature == nil || *sample.Temperature != 24.3 {
		t.Fatalf("unexpected temperature %v", sample.Temperature)
	}
	if sample.Humidity == nil || *sample.Humidity != 48.8 {
		t.Fatalf("unexpected humidity %v", sample.Humidity)
	}
	// No device timestamp in the payload: receipt time is used.
	if !sample.Timestamp.Equal(now) {
		t.Fatalf("expected receipt time fallback, got %v", sample.Timestamp)
	}
}

func TestIngestUnparseableFieldStaysAbsent(t *testing.T) {
	ing, store := newTestIngestor(t)
	now := time.Now().UTC()

	ing.Ingest("MSN/group6/sensors/easylog-01", []byte(`{"device_id":"easylog-01","temperature":"n/a","humidity":61.2}`), now)

	sample, ok := store.Latest("easylog-01")
	if !ok {
		t.Fatal("expected sample recorded despite unparseable field")
	}
	if sample.Temperature != nil {
		t.Fatalf("expected absent temperature, got %v", *sample.Temperature)
	}
	if sample.Humidity == nil || *sample.Humidity != 61.2 {
		t.Fatalf("unexpected humidity %v", sample.Humidity)
	}
}

func TestIngestSourceIDFallbacks(t *testing.T) {
	cases := []struct {
		name    string
		topic   string
		payload string
		want    string
	}{
		{"payload id wins", "MSN/group6/sensors/other", `{"device_id":"easylog-01"}`, "easylog-01"},
		{"trailing topic segment", "MSN/group6/sensors/sense-hat", `{}`, "sense-hat"},
		{"topic verbatim", "standalone", `not json`, "standalone"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ing, store := newTestIngestor(t)
			ing.Ingest(tc.topic, []byte(tc.payload), time.Now().UTC())
			if _, ok := store.Latest(tc.want); !ok {
				t.Fatalf("expected sample under %q", tc.want)
			}
		})
	}
}

func TestIngestDropsMessageWithoutAnySourceID(t *testing.T) {
	ing, store := newTestIngestor(t)
	ing.Ingest("", nil, time.Now().UTC())
	if got := len(store.Sources()); got != 0 {
		t.Fatalf("expected message dropped, found %d sources", got)
	}
}

func TestIngestNeverPanicsOnGarbage(t *testing.T) {
	ing, _ := newTestIngestor(t)
	now := time.Now().UTC()
	for _, payload := range []string{"", "[]", `{"device_id":42}`, "\xff\xfe", `{"ts":"soon"}`} {
		ing.Ingest("MSN/group6/sensors/x", []byte(payload), now)
	}
}
