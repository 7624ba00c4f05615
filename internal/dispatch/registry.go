// Package dispatch selects drivers for orders and estimates routes, times,
// and delivery fees. Driver GPS state lives in a constructor-injected
// registry, not a package-level singleton, so tests get a fresh one each.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Ping is one GPS sample from a driver's app.
type Ping struct {
	DriverID string
	Lat      float64
	Lng      float64
	At       time.Time
}

// LocationSink receives GPS pings. The in-memory registry and the optional
// Redis mirror both implement it; Fanout composes them.
type LocationSink interface {
	Record(ctx context.Context, p Ping) error
}

// Registry holds the latest known location per driver for the life of the
// process. Updates are last-write-wins per driver.
type Registry struct {
	mu    sync.RWMutex
	pings map[string]Ping
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pings: make(map[string]Ping)}
}

// Record stores the driver's latest position.
func (r *Registry) Record(ctx context.Context, p Ping) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.DriverID == "" {
		return errors.New("driver id is required")
	}
	r.mu.Lock()
	r.pings[p.DriverID] = p
	r.mu.Unlock()
	return nil
}

// Get returns the driver's latest ping if one exists.
func (r *Registry) Get(driverID string) (Ping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pings[driverID]
	return p, ok
}

// Remove forgets a driver, e.g. when they go offline.
func (r *Registry) Remove(driverID string) {
	r.mu.Lock()
	delete(r.pings, driverID)
	r.mu.Unlock()
}

// Snapshot copies all currently tracked pings.
func (r *Registry) Snapshot() []Ping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Ping, 0, len(r.pings))
	for _, p := range r.pings {
		out = append(out, p)
	}
	return out
}

// Fanout forwards each ping to every sink, collecting errors so all sinks get
// a chance to write.
type Fanout struct {
	sinks []LocationSink
}

// NewFanout composes sinks into one LocationSink.
func NewFanout(sinks ...LocationSink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Record(ctx context.Context, p Ping) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Record(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
