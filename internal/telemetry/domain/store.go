package telemetry

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// DefaultHistoryCapacity bounds each per-source history unless overridden.
const DefaultHistoryCapacity = 1000

var (
	ErrInvalidCapacity = errors.New("telemetry: history capacity must be positive")
	ErrEmptySourceID   = errors.New("telemetry: empty source id")
)

// SampleStore maps source ids to bounded per-source histories. It is the
// only shared mutable state between ingestion and aggregation: Append is
// the sole mutation path, window scans take the read lock for their whole
// pass, and the backing storage is never handed out.
type SampleStore struct {
	mu        sync.RWMutex
	capacity  int
	histories map[string]*history
}

// NewSampleStore constructs a store with the given per-source capacity.
func NewSampleStore(capacity int) (*SampleStore, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &SampleStore{
		capacity:  capacity,
		histories: make(map[string]*history),
	}, nil
}

// Append records one sample, evicting the oldest arrival when the source
// history is at capacity. Creates the history lazily on first sample.
func (s *SampleStore) Append(sample Sample) error {
	if sample.SourceID == "" {
		return ErrEmptySourceID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.histories[sample.SourceID]
	if h == nil {
		h = &history{}
		s.histories[sample.SourceID] = h
	}
	h.append(sample, s.capacity)
	return nil
}

// Sources returns the known source ids, sorted for stable output.
func (s *SampleStore) Sources() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.histories))
	for id := range s.histories {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len reports the number of retained samples for a source.
func (s *SampleStore) Len(sourceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.histories[sourceID]
	if h == nil {
		return 0
	}
	return len(h.samples)
}

// Latest returns the most recently arrived sample for a source.
func (s *SampleStore) Latest(sourceID string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.histories[sourceID]
	if h == nil || len(h.samples) == 0 {
		return Sample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// Aggregate computes the windowed aggregate for one source, evaluated as
// of now. Returns nil when the source has no history or the window holds
// no samples.
func (s *SampleStore) Aggregate(sourceID string, w Window, now time.Time) *Aggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.histories[sourceID]
	if h == nil {
		return nil
	}
	b := newAggregateBuilder(sourceID)
	h.scan(w, now, b.add)
	return b.build()
}

// AggregateAll computes the windowed aggregate for every known source.
// Sources whose window holds no samples map to nil.
func (s *SampleStore) AggregateAll(w Window, now time.Time) map[string]*Aggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Aggregate, len(s.histories))
	for id, h := range s.histories {
		b := newAggregateBuilder(id)
		h.scan(w, now, b.add)
		out[id] = b.build()
	}
	return out
}

// history holds samples in arrival order, newest last.
type history struct {
	samples []Sample
}

func (h *history) append(sample Sample, capacity int) {
	if len(h.samples) >= capacity {
		// Shift instead of reallocating; capacity is small and fixed.
		copy(h.samples, h.samples[1:])
		h.samples[len(h.samples)-1] = sample
		return
	}
	h.samples = append(h.samples, sample)
}

// scan visits in-window samples. Count windows take the last n arrivals.
// Time windows walk newest to oldest and stop at the first sample stamped
// before the cutoff, so out-of-order samples past that point are skipped;
// this mirrors arrival order approximating timestamp order.
func (h *history) scan(w Window, now time.Time, visit func(Sample)) {
	n := len(h.samples)
	switch w.Kind {
	case WindowCount:
		if w.N <= 0 {
			return
		}
		start := n - w.N
		if start < 0 {
			start = 0
		}
		for i := start; i < n; i++ {
			visit(h.samples[i])
		}
	case WindowTime:
		if w.Span <= 0 {
			return
		}
		cutoff := now.Add(-w.Span)
		for i := n - 1; i >= 0; i-- {
			if h.samples[i].Timestamp.Before(cutoff) {
				return
			}
			visit(h.samples[i])
		}
	}
}
