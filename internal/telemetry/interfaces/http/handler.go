package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	telemetryapp "hygrostat-cloud/internal/telemetry/application"
	telemetry "hygrostat-cloud/internal/telemetry/domain"
)

// Handler provides the live readings query endpoints used by the
// dashboard. Absence of data is reported as a null aggregate with 200,
// never as an error.
type Handler struct {
	aggregator *telemetryapp.Aggregator
}

// NewHandler constructs a handler.
func NewHandler(aggregator *telemetryapp.Aggregator) (*Handler, error) {
	if aggregator == nil {
		return nil, errors.New("telemetry handler: nil aggregator")
	}
	return &Handler{aggregator: aggregator}, nil
}

// HandleAggregate handles GET /api/v1/readings/aggregate.
func (h *Handler) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sourceID := r.URL.Query().Get("source_id")
	if sourceID == "" {
		http.Error(w, "source_id required", http.StatusBadRequest)
		return
	}
	window, err := windowFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	agg, err := h.aggregator.Aggregate(sourceID, window)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, struct {
		SourceID  string               `json:"source_id"`
		Aggregate *telemetry.Aggregate `json:"aggregate"`
	}{SourceID: sourceID, Aggregate: agg})
}

// HandleAggregates handles GET /api/v1/readings/aggregates.
func (h *Handler) HandleAggregates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	window, err := windowFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	all, err := h.aggregator.AggregateAll(window)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, struct {
		Aggregates map[string]*telemetry.Aggregate `json:"aggregates"`
	}{Aggregates: all})
}

// HandleLatest handles GET /api/v1/readings/latest.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sourceID := r.URL.Query().Get("source_id")
	if sourceID != "" {
		sample, ok := h.aggregator.Latest(sourceID)
		resp := struct {
			SourceID string            `json:"source_id"`
			Sample   *telemetry.Sample `json:"sample"`
		}{SourceID: sourceID}
		if ok {
			resp.Sample = &sample
		}
		writeJSON(w, resp)
		return
	}

	latest := make(map[string]telemetry.Sample)
	for _, source := range h.aggregator.Sources() {
		if sample, ok := h.aggregator.Latest(source); ok {
			latest[source] = sample
		}
	}
	writeJSON(w, struct {
		Samples map[string]telemetry.Sample `json:"samples"`
	}{Samples: latest})
}

// windowFromQuery builds a window from window_seconds or count. The
// default is the last 60 seconds.
func windowFromQuery(r *http.Request) (telemetry.Window, error) {
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return telemetry.Window{}, errors.New("count must be an integer")
		}
		return telemetry.CountWindow(n), nil
	}
	seconds := 60
	if raw := r.URL.Query().Get("window_seconds"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return telemetry.Window{}, errors.New("window_seconds must be an integer")
		}
		seconds = parsed
	}
	return telemetry.TimeWindow(time.Duration(seconds) * time.Second), nil
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
