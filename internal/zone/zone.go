// Package zone holds the static registry of monitored zones.
//
// Zones are loaded once from configuration at process start and never
// mutated afterwards. Each zone carries a relative weight describing its
// contribution to the aggregate signal; weights need not sum to 1.
package zone

import (
	"fmt"
	"math"
)

// Tier labels derived from a zone's relative weight.
const (
	TierMajor = "major"
	TierMid   = "mid"
	TierMinor = "minor"
)

// Weight cutoffs for tier labeling.
const (
	majorWeightCutoff = 0.05
	midWeightCutoff   = 0.035
)

// Zone is a monitored geographic unit. Immutable after registry load.
type Zone struct {
	Name   string  `mapstructure:"name" json:"name"`
	Lat    float64 `mapstructure:"lat" json:"lat"`
	Lon    float64 `mapstructure:"lon" json:"lon"`
	Weight float64 `mapstructure:"weight" json:"weight"`
}

// Tier returns the production-tier label for the zone's weight.
func (z Zone) Tier() string {
	switch {
	case z.Weight >= majorWeightCutoff:
		return TierMajor
	case z.Weight >= midWeightCutoff:
		return TierMid
	default:
		return TierMinor
	}
}

// Registry is the immutable set of monitored zones.
type Registry struct {
	zones       []Zone
	byName      map[string]Zone
	totalWeight float64
}

// NewRegistry validates the zone list and builds a registry.
// Validation failures are configuration-fatal: the process should not
// start with a malformed zone list.
func NewRegistry(zones []Zone) (*Registry, error) {
	if len(zones) == 0 {
		return nil, fmt.Errorf("zone registry: no zones configured")
	}

	byName := make(map[string]Zone, len(zones))
	total := 0.0
	for i, z := range zones {
		if z.Name == "" {
			return nil, fmt.Errorf("zone registry: zone %d has empty name", i)
		}
		if _, dup := byName[z.Name]; dup {
			return nil, fmt.Errorf("zone registry: duplicate zone name %q", z.Name)
		}
		if z.Weight < 0 || math.IsNaN(z.Weight) {
			return nil, fmt.Errorf("zone registry: zone %q has invalid weight %v", z.Name, z.Weight)
		}
		if z.Lat < -90 || z.Lat > 90 {
			return nil, fmt.Errorf("zone registry: zone %q has invalid latitude %v", z.Name, z.Lat)
		}
		if z.Lon < -180 || z.Lon > 180 {
			return nil, fmt.Errorf("zone registry: zone %q has invalid longitude %v", z.Name, z.Lon)
		}
		byName[z.Name] = z
		total += z.Weight
	}

	out := make([]Zone, len(zones))
	copy(out, zones)

	return &Registry{zones: out, byName: byName, totalWeight: total}, nil
}

// All returns the zones in configuration order.
func (r *Registry) All() []Zone {
	out := make([]Zone, len(r.zones))
	copy(out, r.zones)
	return out
}

// Get returns the zone with the given name.
func (r *Registry) Get(name string) (Zone, bool) {
	z, ok := r.byName[name]
	return z, ok
}

// Len returns the number of registered zones.
func (r *Registry) Len() int {
	return len(r.zones)
}

// TotalWeight returns the sum of all zone weights. Consumers normalize
// against this when a weighted fraction is needed.
func (r *Registry) TotalWeight() float64 {
	return r.totalWeight
}
