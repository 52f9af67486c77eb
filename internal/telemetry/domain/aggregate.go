package telemetry

import "time"

// FieldAggregate is the mean of one field over a window, with the number
// of samples that contributed to it.
type FieldAggregate struct {
	Mean        float64 `json:"mean"`
	SampleCount int     `json:"sample_count"`
}

// Aggregate is a derived per-source summary over a window. A field with
// zero contributing samples is simply missing from Fields.
type Aggregate struct {
	SourceID        string                   `json:"source_id"`
	Fields          map[Field]FieldAggregate `json:"fields"`
	SampleCount     int                      `json:"sample_count"`
	LatestTimestamp time.Time                `json:"latest_timestamp"`
}

// Mean returns the windowed mean for a field if any sample carried it.
func (a *Aggregate) Mean(field Field) (float64, bool) {
	if a == nil {
		return 0, false
	}
	fa, ok := a.Fields[field]
	if !ok {
		return 0, false
	}
	return fa.Mean, true
}

// aggregateOf folds visited samples into an Aggregate. Returns nil when
// no sample was visited.
type aggregateBuilder struct {
	sourceID string
	sums     map[Field]float64
	counts   map[Field]int
	scanned  int
	latest   time.Time
}

func newAggregateBuilder(sourceID string) *aggregateBuilder {
	return &aggregateBuilder{
		sourceID: sourceID,
		sums:     make(map[Field]float64, 2),
		counts:   make(map[Field]int, 2),
	}
}

func (b *aggregateBuilder) add(s Sample) {
	b.scanned++
	if s.Timestamp.After(b.latest) {
		b.latest = s.Timestamp
	}
	for _, field := range Fields() {
		if v, ok := s.Value(field); ok {
			b.sums[field] += v
			b.counts[field]++
		}
	}
}

func (b *aggregateBuilder) build() *Aggregate {
	if b.scanned == 0 {
		return nil
	}
	fields := make(map[Field]FieldAggregate, len(b.counts))
	for field, count := range b.counts {
		fields[field] = FieldAggregate{
			Mean:        b.sums[field] / float64(count),
			SampleCount: count,
		}
	}
	return &Aggregate{
		SourceID:        b.sourceID,
		Fields:          fields,
		SampleCount:     b.scanned,
		LatestTimestamp: b.latest,
	}
}
