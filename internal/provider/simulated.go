package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/cropsight/cropsight/internal/zone"
)

// Simulated is a deterministic stand-in provider for development and
// connectivity testing. The value for a (zone, day) pair is derived from
// a hash of both, so repeated passes over the same day are stable and
// duplicate-append handling can be exercised end to end.
type Simulated struct {
	Min float64
	Max float64
}

// NewSimulated returns a Simulated provider producing values in [min, max].
func NewSimulated(min, max float64) (*Simulated, error) {
	if max <= min {
		return nil, fmt.Errorf("simulated provider: max %v must exceed min %v", max, min)
	}
	return &Simulated{Min: min, Max: max}, nil
}

func (s *Simulated) Name() string { return "simulated" }

// Fetch returns a deterministic value for the zone and day.
func (s *Simulated) Fetch(_ context.Context, z zone.Zone, day time.Time) (float64, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(z.Name))
	_, _ = h.Write([]byte(day.UTC().Format("2006-01-02")))
	frac := float64(h.Sum64()%100000) / 100000.0
	return s.Min + frac*(s.Max-s.Min), nil
}
