package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func sampleAt(source string, ts time.Time, temp, hum *float64) Sample {
	return Sample{
		SourceID:    source,
		Timestamp:   ts,
		ReceivedAt:  ts,
		Temperature: temp,
		Humidity:    hum,
	}
}

func TestNewSampleStoreRejectsBadCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		if _, err := NewSampleStore(capacity); err == nil {
			t.Fatalf("capacity %d: expected error", capacity)
		}
	}
}

func TestAppendEvictsOldestAtCapacity(t *testing.T) {
	store, err := NewSampleStore(3)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s := sampleAt("easylog-01", base.Add(time.Duration(i)*time.Second), floatPtr(float64(20+i)), nil)
		if err := store.Append(s); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if got := store.Len("easylog-01"); got > 3 {
			t.Fatalf("history grew past capacity: %d", got)
		}
	}
	if got := store.Len("easylog-01"); got != 3 {
		t.Fatalf("expected 3 retained samples, got %d", got)
	}

	// The three most recent arrivals (temps 22, 23, 24) must be retained.
	agg := store.Aggregate("easylog-01", CountWindow(3), base.Add(time.Hour))
	if agg == nil {
		t.Fatal("expected aggregate")
	}
	mean, ok := agg.Mean(FieldTemperature)
	if !ok {
		t.Fatal("expected temperature mean")
	}
	if mean != 23 {
		t.Fatalf("expected mean 23 over retained samples, got %v", mean)
	}
}

func TestAppendRejectsEmptySourceID(t *testing.T) {
	store, _ := NewSampleStore(10)
	if err := store.Append(Sample{}); err != ErrEmptySourceID {
		t.Fatalf("expected ErrEmptySourceID, got %v", err)
	}
}

func TestTimeWindowSelectsExactSubset(t *testing.T) {
	store, _ := NewSampleStore(100)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// Samples at now-50s, now-35s, now-20s, now-5s.
	offsets := []time.Duration{-50, -35, -20, -5}
	for i, off := range offsets {
		s := sampleAt("s1", now.Add(off*time.Second), floatPtr(float64(i+1)), nil)
		if err := store.Append(s); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	agg := store.Aggregate("s1", TimeWindow(30*time.Second), now)
	if agg == nil {
		t.Fatal("expected aggregate")
	}
	if agg.SampleCount != 2 {
		t.Fatalf("expected 2 in-window samples, got %d", agg.SampleCount)
	}
	mean, _ := agg.Mean(FieldTemperature)
	if mean != 3.5 {
		t.Fatalf("expected mean of samples 3 and 4 (3.5), got %v", mean)
	}
	if !agg.LatestTimestamp.Equal(now.Add(-5 * time.Second)) {
		t.Fatalf("unexpected latest timestamp %v", agg.LatestTimestamp)
	}
}

func TestTimeWindowStopsAtFirstStaleSample(t *testing.T) {
	store, _ := NewSampleStore(100)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// An in-window sample arrives, then a stale-stamped one, then another
	// in-window one. The backward scan stops at the stale sample, so only
	// the newest arrival is counted.
	_ = store.Append(sampleAt("s1", now.Add(-10*time.Second), floatPtr(1), nil))
	_ = store.Append(sampleAt("s1", now.Add(-2*time.Hour), floatPtr(2), nil))
	_ = store.Append(sampleAt("s1", now.Add(-5*time.Second), floatPtr(3), nil))

	agg := store.Aggregate("s1", TimeWindow(30*time.Second), now)
	if agg == nil {
		t.Fatal("expected aggregate")
	}
	if agg.SampleCount != 1 {
		t.Fatalf("expected scan to stop at stale sample, got %d samples", agg.SampleCount)
	}
	mean, _ := agg.Mean(FieldTemperature)
	if mean != 3 {
		t.Fatalf("expected mean 3, got %v", mean)
	}
}

func TestAggregateAbsentCases(t *testing.T) {
	store, _ := NewSampleStore(10)
	if agg := store.Aggregate("unknown", CountWindow(5), time.Now()); agg != nil {
		t.Fatalf("expected nil aggregate for unknown source, got %+v", agg)
	}

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	_ = store.Append(sampleAt("s1", now.Add(-time.Hour), floatPtr(20), nil))
	if agg := store.Aggregate("s1", TimeWindow(time.Second), now); agg != nil {
		t.Fatalf("expected nil aggregate for empty window, got %+v", agg)
	}
}

func TestFieldsAggregateIndependently(t *testing.T) {
	store, _ := NewSampleStore(10)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	_ = store.Append(sampleAt("s1", now.Add(-3*time.Second), floatPtr(20), floatPtr(40)))
	_ = store.Append(sampleAt("s1", now.Add(-2*time.Second), floatPtr(22), nil))
	_ = store.Append(sampleAt("s1", now.Add(-time.Second), nil, floatPtr(60)))

	agg := store.Aggregate("s1", TimeWindow(time.Minute), now)
	if agg == nil {
		t.Fatal("expected aggregate")
	}
	temp := agg.Fields[FieldTemperature]
	if temp.SampleCount != 2 || temp.Mean != 21 {
		t.Fatalf("unexpected temperature aggregate %+v", temp)
	}
	hum := agg.Fields[FieldHumidity]
	if hum.SampleCount != 2 || hum.Mean != 50 {
		t.Fatalf("unexpected humidity aggregate %+v", hum)
	}
	if agg.SampleCount != 3 {
		t.Fatalf("expected 3 scanned samples, got %d", agg.SampleCount)
	}
}

func TestAggregateAllIncludesEmptySources(t *testing.T) {
	store, _ := NewSampleStore(10)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	_ = store.Append(sampleAt("fresh", now, floatPtr(20), nil))
	_ = store.Append(sampleAt("stale", now.Add(-time.Hour), floatPtr(30), nil))

	all := store.AggregateAll(TimeWindow(time.Minute), now)
	if len(all) != 2 {
		t.Fatalf("expected both sources present, got %d", len(all))
	}
	if all["fresh"] == nil {
		t.Fatal("expected aggregate for fresh source")
	}
	if all["stale"] != nil {
		t.Fatalf("expected nil aggregate for stale source, got %+v", all["stale"])
	}
}

func TestConcurrentAppendAndAggregate(t *testing.T) {
	store, _ := NewSampleStore(50)
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			source := fmt.Sprintf("s%d", w%2)
			for i := 0; i < 500; i++ {
				_ = store.Append(sampleAt(source, now, floatPtr(float64(i)), floatPtr(float64(i))))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = store.Aggregate("s0", CountWindow(25), now)
				_ = store.AggregateAll(TimeWindow(time.Minute), now)
			}
		}()
	}
	wg.Wait()

	for _, source := range store.Sources() {
		if got := store.Len(source); got > 50 {
			t.Fatalf("source %s exceeded capacity: %d", source, got)
		}
	}
}
