package geo

import (
	"math"
	"math/rand"
	"testing"
)

func TestDistanceMeters_SamePointIsZero(t *testing.T) {
	if got := DistanceMeters(-23.5505, -46.6333, -23.5505, -46.6333); got != 0 {
		t.Fatalf("expected 0 meters, got %d", got)
	}
}

func TestDistanceMeters_Symmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		lat1 := rng.Float64()*180 - 90
		lng1 := rng.Float64()*360 - 180
		lat2 := rng.Float64()*180 - 90
		lng2 := rng.Float64()*360 - 180

		ab := DistanceMeters(lat1, lng1, lat2, lng2)
		ba := DistanceMeters(lat2, lng2, lat1, lng1)
		if ab != ba {
			t.Fatalf("distance not symmetric: %d vs %d for (%f,%f)-(%f,%f)", ab, ba, lat1, lng1, lat2, lng2)
		}
	}
}

func TestDistanceMeters_KnownPair(t *testing.T) {
	// São Paulo cathedral to Paulista Avenue, roughly 2.9 km.
	got := DistanceMeters(-23.5505, -46.6333, -23.5614, -46.6560)
	if got < 2500 || got > 3300 {
		t.Fatalf("unexpected distance %d meters", got)
	}
}

func TestDistanceMeters_ClampsNonFinite(t *testing.T) {
	if got := DistanceMeters(math.NaN(), math.Inf(1), 0, 0); got != 0 {
		t.Fatalf("expected clamped inputs to collapse to 0, got %d", got)
	}
}

func TestEstimateDurationSeconds(t *testing.T) {
	// 10 km at 40 km/h is 15 minutes.
	if got := EstimateDurationSeconds(10000, DefaultSpeedKmh); got != 900 {
		t.Fatalf("expected 900s, got %d", got)
	}
	if got := EstimateDurationSeconds(0, DefaultSpeedKmh); got != 0 {
		t.Fatalf("expected 0s for zero distance, got %d", got)
	}
	// Bad speed falls back to the default.
	if got := EstimateDurationSeconds(10000, math.NaN()); got != 900 {
		t.Fatalf("expected default-speed fallback, got %d", got)
	}
}

func TestEstimateFeeMinor(t *testing.T) {
	// 3 km: 5.00 + 1.50 = 6.50.
	if got := EstimateFeeMinor(3000, DefaultBaseFeeMinor); got != 650 {
		t.Fatalf("expected 650, got %d", got)
	}
	// Zero distance charges just the base rate.
	if got := EstimateFeeMinor(0, 700); got != 700 {
		t.Fatalf("expected 700, got %d", got)
	}
	// Sub-kilometre distances round to the cent: 250m -> 5.13 (12.5 rounds up).
	if got := EstimateFeeMinor(250, DefaultBaseFeeMinor); got != 513 {
		t.Fatalf("expected 513, got %d", got)
	}
	// Non-positive base falls back to the default.
	if got := EstimateFeeMinor(1000, 0); got != 550 {
		t.Fatalf("expected 550, got %d", got)
	}
}
