package control

import (
	telemetry "hygrostat-cloud/internal/telemetry/domain"
)

// Combine merges per-source means into one blended metric using the
// configured weights, renormalized over the sources that actually
// reported. A source dropping out must not bias the blend toward zero,
// so absent sources simply leave the remaining weights to be rescaled.
// With a single contributor the blend is that source's mean; with none
// the blend is absent.
func Combine(means map[string]float64, weights map[string]float64) (float64, bool) {
	var weighted, total float64
	var contributors int
	var sole float64
	for source, mean := range means {
		w, ok := weights[source]
		if !ok {
			continue
		}
		weighted += w * mean
		total += w
		contributors++
		sole = mean
	}
	switch {
	case contributors == 0:
		return 0, false
	case contributors == 1:
		return sole, true
	case total == 0:
		return 0, false
	}
	return weighted / total, true
}

// BlendField extracts one field's mean from each aggregate and combines
// them. Nil aggregates and aggregates without the field contribute
// nothing.
func BlendField(aggregates map[string]*telemetry.Aggregate, weights map[string]float64, field telemetry.Field) (float64, bool) {
	means := make(map[string]float64, len(aggregates))
	for source, agg := range aggregates {
		if agg == nil {
			continue
		}
		if mean, ok := agg.Mean(field); ok {
			means[source] = mean
		}
	}
	return Combine(means, weights)
}
