package dispatch

import (
	"context"
	"errors"
	"log"
	"math"
	"sort"
	"time"

	"chowline/internal/geo"
	"chowline/internal/model"
)

var (
	// ErrMissingCoordinates is the only hard error in this package: dispatch
	// cannot do anything without a target position.
	ErrMissingCoordinates = errors.New("missing coordinates")
	// ErrNoDriversAvailable signals auto-assignment found no tracked driver.
	ErrNoDriversAvailable = errors.New("no drivers available")
)

// DriverSource is the slice of the storage contract dispatch reads from.
type DriverSource interface {
	ListAvailableDrivers(ctx context.Context) ([]model.DriverProfile, error)
}

// Dispatcher answers nearest-driver, route, ETA, and fee questions.
type Dispatcher struct {
	drivers  DriverSource
	registry *Registry
	// routing may be nil; every path falls back to the geometric estimate.
	routing        RoutingProvider
	routingTimeout time.Duration
	now            func() time.Time
	logf           func(format string, args ...any)
}

// NewDispatcher wires a Dispatcher. routing may be nil.
func NewDispatcher(drivers DriverSource, registry *Registry, routing RoutingProvider, logf func(string, ...any)) *Dispatcher {
	if logf == nil {
		logf = log.Printf
	}
	return &Dispatcher{
		drivers:        drivers,
		registry:       registry,
		routing:        routing,
		routingTimeout: 3 * time.Second,
		now:            time.Now,
		logf:           logf,
	}
}

// NearDriver is a candidate driver with its distance to the target.
type NearDriver struct {
	DriverID       string
	DistanceMeters int64
	ETAMinutes     int
}

// FindNearestDrivers returns up to limit available drivers sorted by
// ascending distance to the target. Drivers without a GPS fix are excluded
// by the storage query; an empty result is not an error.
func (d *Dispatcher) FindNearestDrivers(ctx context.Context, lat, lng float64, limit int) ([]NearDriver, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return nil, ErrMissingCoordinates
	}
	profiles, err := d.drivers.ListAvailableDrivers(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]NearDriver, 0, len(profiles))
	for _, p := range profiles {
		if p.Lat == nil || p.Lng == nil {
			continue
		}
		dist := geo.DistanceMeters(lat, lng, *p.Lat, *p.Lng)
		candidates = append(candidates, NearDriver{
			DriverID:       p.UserID,
			DistanceMeters: dist,
			ETAMinutes:     etaMinutes(dist),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DistanceMeters < candidates[j].DistanceMeters
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Stop describes one order's pickup and dropoff for route planning.
type Stop struct {
	OrderID       string
	RestaurantLat float64
	RestaurantLng float64
	CustomerLat   float64
	CustomerLng   float64
	PrepMinutes   int
}

// Leg is a single segment of a planned route.
type Leg struct {
	DistanceMeters  int64
	DurationSeconds int64
}

// OrderRoute is the two-leg plan (to the restaurant, then to the customer)
// for one order, with an absolute ETA.
type OrderRoute struct {
	OrderID string
	Pickup  Leg
	Dropoff Leg
	ETA     time.Time
}

// OptimizeRoute plans each order in a driver's queue as a two-leg route.
// Leg data comes from the routing provider when one is configured and
// healthy; otherwise from the Haversine/average-speed fallback.
func (d *Dispatcher) OptimizeRoute(ctx context.Context, driverLat, driverLng float64, stops []Stop) ([]OrderRoute, error) {
	if math.IsNaN(driverLat) || math.IsNaN(driverLng) {
		return nil, ErrMissingCoordinates
	}

	out := make([]OrderRoute, 0, len(stops))
	for _, s := range stops {
		pickup := d.leg(ctx, driverLat, driverLng, s.RestaurantLat, s.RestaurantLng)
		dropoff := d.leg(ctx, s.RestaurantLat, s.RestaurantLng, s.CustomerLat, s.CustomerLng)
		total := pickup.DurationSeconds + dropoff.DurationSeconds
		out = append(out, OrderRoute{
			OrderID: s.OrderID,
			Pickup:  pickup,
			Dropoff: dropoff,
			ETA:     d.now().Add(time.Duration(total) * time.Second),
		})
	}
	return out, nil
}

// OrderETA is the absolute delivery estimate for one order.
type OrderETA struct {
	OrderID string
	ETA     time.Time
}

// CalculateMultipleETAs estimates delivery times for a batch of orders:
// prep time plus travel time, with a flat prep+30min fallback when the
// routing provider is unavailable.
func (d *Dispatcher) CalculateMultipleETAs(ctx context.Context, stops []Stop) []OrderETA {
	out := make([]OrderETA, 0, len(stops))
	for _, s := range stops {
		travel := int64(0)
		if route, ok := d.providerRoute(ctx, s.RestaurantLat, s.RestaurantLng, s.CustomerLat, s.CustomerLng); ok {
			travel = route.DurationSeconds
		} else {
			dist := geo.DistanceMeters(s.RestaurantLat, s.RestaurantLng, s.CustomerLat, s.CustomerLng)
			travel = geo.EstimateDurationSeconds(dist, geo.FallbackSpeedKmh)
			if travel == 0 {
				travel = 30 * 60
			}
		}
		eta := d.now().
			Add(time.Duration(s.PrepMinutes) * time.Minute).
			Add(time.Duration(travel) * time.Second)
		out = append(out, OrderETA{OrderID: s.OrderID, ETA: eta})
	}
	return out
}

// DeliveryFeeEstimate returns the fee in minor units for a delivery of the
// given road distance, preferring the provider's distance when available.
func (d *Dispatcher) DeliveryFeeEstimate(ctx context.Context, fromLat, fromLng, toLat, toLng float64, baseFeeMinor int64) int64 {
	if route, ok := d.providerRoute(ctx, fromLat, fromLng, toLat, toLng); ok {
		return geo.EstimateFeeMinor(route.DistanceMeters, baseFeeMinor)
	}
	dist := geo.DistanceMeters(fromLat, fromLng, toLat, toLng)
	return geo.EstimateFeeMinor(dist, baseFeeMinor)
}

// AutoAssign picks the strictly nearest tracked driver for a destination.
// It reads the GPS registry, not storage: only drivers actively pinging are
// assignment candidates.
func (d *Dispatcher) AutoAssign(ctx context.Context, lat, lng float64) (NearDriver, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return NearDriver{}, ErrMissingCoordinates
	}
	pings := d.registry.Snapshot()
	if len(pings) == 0 {
		return NearDriver{}, ErrNoDriversAvailable
	}

	best := NearDriver{DistanceMeters: math.MaxInt64}
	for _, p := range pings {
		dist := geo.DistanceMeters(lat, lng, p.Lat, p.Lng)
		if dist < best.DistanceMeters {
			best = NearDriver{DriverID: p.DriverID, DistanceMeters: dist, ETAMinutes: etaMinutes(dist)}
		}
	}
	return best, nil
}

// leg resolves one segment, provider first, geometry as fallback.
func (d *Dispatcher) leg(ctx context.Context, fromLat, fromLng, toLat, toLng float64) Leg {
	if route, ok := d.providerRoute(ctx, fromLat, fromLng, toLat, toLng); ok {
		return Leg{DistanceMeters: route.DistanceMeters, DurationSeconds: route.DurationSeconds}
	}
	dist := geo.DistanceMeters(fromLat, fromLng, toLat, toLng)
	return Leg{
		DistanceMeters:  dist,
		DurationSeconds: geo.EstimateDurationSeconds(dist, geo.DefaultSpeedKmh),
	}
}

// providerRoute asks the routing provider under a bounded timeout. Any
// provider failure, including timeout, reads as "unavailable" and the caller
// falls back to geometry.
func (d *Dispatcher) providerRoute(ctx context.Context, fromLat, fromLng, toLat, toLng float64) (Route, bool) {
	if d.routing == nil {
		return Route{}, false
	}
	callCtx, cancel := context.WithTimeout(ctx, d.routingTimeout)
	defer cancel()
	route, err := d.routing.Directions(callCtx, fromLat, fromLng, toLat, toLng, "driving")
	if err != nil {
		d.logf("dispatch: routing provider unavailable, using geometric fallback: %v", err)
		return Route{}, false
	}
	return route, true
}

func etaMinutes(distanceMeters int64) int {
	return int(math.Ceil(float64(distanceMeters) / 1000 / geo.DefaultSpeedKmh * 60))
}
