package dispatch

import "context"

// RoutingProvider is the optional external routing collaborator (Google
// Maps-shaped). A Dispatcher either holds a full implementation or nil;
// absence is checked once per call and never fatal, since every consumer has
// a geometric fallback.
type RoutingProvider interface {
	Geocode(ctx context.Context, address string) (GeocodeResult, error)
	Directions(ctx context.Context, fromLat, fromLng, toLat, toLng float64, mode string) (Route, error)
	DistanceMatrix(ctx context.Context, origins, destinations []LatLng) ([][]Route, error)
}

type LatLng struct {
	Lat float64
	Lng float64
}

type GeocodeResult struct {
	Lat              float64
	Lng              float64
	FormattedAddress string
}

// Route is one leg's distance and duration from the routing provider.
type Route struct {
	DistanceMeters  int64
	DurationSeconds int64
	Steps           []string
}
