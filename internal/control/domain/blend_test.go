package control

import (
	"math"
	"testing"

	telemetry "hygrostat-cloud/internal/telemetry/domain"
)

func TestCombineRenormalizesOverReportingSources(t *testing.T) {
	weights := map[string]float64{"a": 0.3, "b": 0.7}

	// Only a reports: its mean passes through untouched, not 0.3*10.
	blend, ok := Combine(map[string]float64{"a": 10}, weights)
	if !ok {
		t.Fatal("expected blend")
	}
	if blend != 10 {
		t.Fatalf("expected sole source mean 10, got %v", blend)
	}

	// Both report: plain weighted mean, weights already sum to 1.
	blend, ok = Combine(map[string]float64{"a": 10, "b": 20}, weights)
	if !ok {
		t.Fatal("expected blend")
	}
	if math.Abs(blend-17) > 1e-9 {
		t.Fatalf("expected 0.3*10+0.7*20=17, got %v", blend)
	}
}

func TestCombineRenormalizesUnnormalizedWeights(t *testing.T) {
	// Weights sum to 3; the combiner divides by the contributing total.
	blend, ok := Combine(
		map[string]float64{"a": 10, "b": 40},
		map[string]float64{"a": 1, "b": 2},
	)
	if !ok {
		t.Fatal("expected blend")
	}
	if math.Abs(blend-30) > 1e-9 {
		t.Fatalf("expected (1*10+2*40)/3=30, got %v", blend)
	}
}

func TestCombineAbsentCases(t *testing.T) {
	weights := map[string]float64{"a": 0.5, "b": 0.5}
	if _, ok := Combine(nil, weights); ok {
		t.Fatal("expected absent blend with no sources")
	}
	// A reporting source with no configured weight contributes nothing.
	if _, ok := Combine(map[string]float64{"c": 42}, weights); ok {
		t.Fatal("expected absent blend for unweighted source")
	}
}

func TestBlendFieldSkipsAbsentAggregates(t *testing.T) {
	aggs := map[string]*telemetry.Aggregate{
		"a": {
			SourceID: "a",
			Fields: map[telemetry.Field]telemetry.FieldAggregate{
				telemetry.FieldHumidity: {Mean: 10, SampleCount: 4},
			},
		},
		"b": nil,
	}
	blend, ok := BlendField(aggs, map[string]float64{"a": 0.3, "b": 0.7}, telemetry.FieldHumidity)
	if !ok {
		t.Fatal("expected blend")
	}
	if blend != 10 {
		t.Fatalf("expected 10, got %v", blend)
	}
}

func TestBlendFieldAbsentWhenFieldMissingEverywhere(t *testing.T) {
	aggs := map[string]*telemetry.Aggregate{
		"a": {
			SourceID: "a",
			Fields: map[telemetry.Field]telemetry.FieldAggregate{
				telemetry.FieldTemperature: {Mean: 21, SampleCount: 2},
			},
		},
	}
	if _, ok := BlendField(aggs, map[string]float64{"a": 1}, telemetry.FieldHumidity); ok {
		t.Fatal("expected absent blend when no aggregate carries the field")
	}
}
