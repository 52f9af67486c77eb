package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	telemetryapp "hygrostat-cloud/internal/telemetry/application"
	telemetry "hygrostat-cloud/internal/telemetry/domain"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestHandler(t *testing.T) (*Handler, time.Time) {
	t.Helper()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store, err := telemetry.NewSampleStore(10)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	hum := 55.0
	temp := 21.5
	_ = store.Append(telemetry.Sample{
		SourceID:    "easylog-01",
		Timestamp:   now.Add(-10 * time.Second),
		ReceivedAt:  now.Add(-10 * time.Second),
		Temperature: &temp,
		Humidity:    &hum,
	})
	agg, err := telemetryapp.NewAggregator(store, telemetryapp.WithClock(fixedClock{now: now}))
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	h, err := NewHandler(agg)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h, now
}

func TestHandleAggregate(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/aggregate?source_id=easylog-01&window_seconds=60", nil)
	rec := httptest.NewRecorder()
	h.HandleAggregate(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		SourceID  string               `json:"source_id"`
		Aggregate *telemetry.Aggregate `json:"aggregate"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Aggregate == nil || resp.Aggregate.SampleCount != 1 {
		t.Fatalf("unexpected aggregate %+v", resp.Aggregate)
	}
	if mean, ok := resp.Aggregate.Mean(telemetry.FieldHumidity); !ok || mean != 55 {
		t.Fatalf("unexpected humidity mean %v %v", mean, ok)
	}
}

func TestHandleAggregateAbsentIsNull(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/aggregate?source_id=nobody", nil)
	rec := httptest.NewRecorder()
	h.HandleAggregate(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown source, got %d", rec.Code)
	}
	var resp struct {
		Aggregate *telemetry.Aggregate `json:"aggregate"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Aggregate != nil {
		t.Fatalf("expected null aggregate, got %+v", resp.Aggregate)
	}
}

func TestHandleAggregateRequiresSource(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/aggregate", nil)
	rec := httptest.NewRecorder()
	h.HandleAggregate(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleAggregateCountWindow(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/aggregate?source_id=easylog-01&count=1", nil)
	rec := httptest.NewRecorder()
	h.HandleAggregate(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/readings/aggregate?source_id=easylog-01&count=0", nil)
	rec = httptest.NewRecorder()
	h.HandleAggregate(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero count, got %d", rec.Code)
	}
}

func TestHandleAggregates(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/aggregates?window_seconds=60", nil)
	rec := httptest.NewRecorder()
	h.HandleAggregates(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp struct {
		Aggregates map[string]*telemetry.Aggregate `json:"aggregates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Aggregates) != 1 || resp.Aggregates["easylog-01"] == nil {
		t.Fatalf("unexpected aggregates %+v", resp.Aggregates)
	}
}

func TestHandleLatest(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/latest?source_id=easylog-01", nil)
	rec := httptest.NewRecorder()
	h.HandleLatest(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp struct {
		Sample *telemetry.Sample `json:"sample"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Sample == nil || resp.Sample.SourceID != "easylog-01" {
		t.Fatalf("unexpected sample %+v", resp.Sample)
	}
}
