// Package testutil provides shared fixtures for Cropsight tests.
package testutil

import (
	"testing"

	"github.com/cropsight/cropsight/internal/zone"
)

// ZoneOption customizes a test zone.
type ZoneOption func(*zone.Zone)

// WithWeight sets the zone weight.
func WithWeight(w float64) ZoneOption {
	return func(z *zone.Zone) { z.Weight = w }
}

// WithLocation sets the zone coordinates.
func WithLocation(lat, lon float64) ZoneOption {
	return func(z *zone.Zone) { z.Lat = lat; z.Lon = lon }
}

// NewZone builds a test zone with sensible defaults.
func NewZone(name string, opts ...ZoneOption) zone.Zone {
	z := zone.Zone{
		Name:   name,
		Lat:    40.49,
		Lon:    -88.84,
		Weight: 0.05,
	}
	for _, opt := range opts {
		opt(&z)
	}
	return z
}

// NewRegistry builds a registry from the given zones, failing the test
// on validation errors.
func NewRegistry(t *testing.T, zones ...zone.Zone) *zone.Registry {
	t.Helper()
	r, err := zone.NewRegistry(zones)
	if err != nil {
		t.Fatalf("building zone registry fixture: %v", err)
	}
	return r
}

// SteadyHistory returns n observations hovering around center with a
// small fixed wobble, enough variance for real statistics.
func SteadyHistory(n int, center float64) []float64 {
	wobble := []float64{-0.015, -0.005, 0.005, 0.015}
	out := make([]float64, n)
	for i := range out {
		out[i] = center + wobble[i%len(wobble)]
	}
	return out
}

// DecliningHistory returns n observations falling linearly from start
// by step per observation.
func DecliningHistory(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start - float64(i)*step
	}
	return out
}
