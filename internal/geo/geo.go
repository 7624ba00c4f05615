// Package geo contains pure geographic and estimate computations.
package geo

import "math"

const earthRadiusMeters = 6371000.0

const (
	// DefaultSpeedKmh is the average driving speed assumed when no routing
	// provider supplies a real duration.
	DefaultSpeedKmh = 40.0
	// FallbackSpeedKmh is the coarser speed used for whole-delivery estimates.
	FallbackSpeedKmh = 30.0
	// DefaultBaseFeeMinor is the base delivery fee in minor units (5.00).
	DefaultBaseFeeMinor int64 = 500
	// perKmFeeMinor is the distance surcharge per kilometre in minor units (0.50).
	perKmFeeMinor = 50.0
)

// DistanceMeters returns the great-circle distance between two points in
// decimal degrees, rounded to the nearest meter. Non-finite coordinates are
// clamped to zero so a bad GPS sample can never poison an estimate.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) int64 {
	lat1, lng1 = sanitize(lat1, 90), sanitize(lng1, 180)
	lat2, lng2 = sanitize(lat2, 90), sanitize(lng2, 180)

	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return int64(math.Round(earthRadiusMeters * c))
}

// EstimateDurationSeconds converts a distance into a travel time at the given
// average speed. A non-positive or non-finite speed falls back to DefaultSpeedKmh.
func EstimateDurationSeconds(distanceMeters int64, avgSpeedKmh float64) int64 {
	if distanceMeters <= 0 {
		return 0
	}
	if math.IsNaN(avgSpeedKmh) || math.IsInf(avgSpeedKmh, 0) || avgSpeedKmh <= 0 {
		avgSpeedKmh = DefaultSpeedKmh
	}
	metersPerSecond := avgSpeedKmh * 1000 / 3600
	return int64(math.Round(float64(distanceMeters) / metersPerSecond))
}

// EstimateFeeMinor computes the delivery fee in minor units:
// base + 0.50 per kilometre, rounded to the cent.
func EstimateFeeMinor(distanceMeters int64, baseFeeMinor int64) int64 {
	if baseFeeMinor <= 0 {
		baseFeeMinor = DefaultBaseFeeMinor
	}
	if distanceMeters <= 0 {
		return baseFeeMinor
	}
	surcharge := float64(distanceMeters) / 1000 * perKmFeeMinor
	return baseFeeMinor + int64(math.Round(surcharge))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func sanitize(v, limit float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
