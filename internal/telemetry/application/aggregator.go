package application

import (
	"errors"
	"time"

	"hygrostat-cloud/internal/observability/metrics"
	telemetry "hygrostat-cloud/internal/telemetry/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Aggregator answers windowed queries over the sample store on behalf of
// the rendering layer and the control loop. Absence of data is a normal
// outcome, reported as a nil aggregate.
type Aggregator struct {
	store *telemetry.SampleStore
	clock Clock
}

// AggregatorOption customizes the aggregator.
type AggregatorOption func(*Aggregator)

// WithClock assigns a clock.
func WithClock(clock Clock) AggregatorOption {
	return func(a *Aggregator) {
		a.clock = clock
	}
}

// NewAggregator constructs an aggregator.
func NewAggregator(store *telemetry.SampleStore, opts ...AggregatorOption) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("telemetry aggregate: nil store")
	}
	a := &Aggregator{store: store, clock: systemClock{}}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Aggregate evaluates one window for one source as of now.
func (a *Aggregator) Aggregate(sourceID string, window telemetry.Window) (*telemetry.Aggregate, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	agg := a.store.Aggregate(sourceID, window, a.clock.Now())
	metrics.ObserveAggregateQuery(metrics.ResultSuccess, time.Since(start))
	return agg, nil
}

// AggregateAll evaluates one window for every known source.
func (a *Aggregator) AggregateAll(window telemetry.Window) (map[string]*telemetry.Aggregate, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	all := a.store.AggregateAll(window, a.clock.Now())
	metrics.ObserveAggregateQuery(metrics.ResultSuccess, time.Since(start))
	return all, nil
}

// Latest returns the newest sample for a source.
func (a *Aggregator) Latest(sourceID string) (telemetry.Sample, bool) {
	return a.store.Latest(sourceID)
}

// Sources lists the known source ids.
func (a *Aggregator) Sources() []string {
	return a.store.Sources()
}
