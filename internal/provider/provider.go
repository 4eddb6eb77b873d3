// Package provider defines the surface-index acquisition port and its
// implementations. A Provider returns one index reading per (zone, day);
// it never fabricates a value when the source has no usable data.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/cropsight/cropsight/internal/zone"
)

// ErrUnavailable reports that no usable reading exists for the requested
// zone and day (cloud cover, no acquisition, upstream outage). Callers
// skip the zone for the pass; they must not substitute a default value.
var ErrUnavailable = errors.New("index reading unavailable")

// Provider fetches the surface index for a zone on a given day.
type Provider interface {
	// Fetch returns the index value in [-1, 1]. Returns ErrUnavailable
	// (possibly wrapped) when the source has no usable data.
	Fetch(ctx context.Context, z zone.Zone, day time.Time) (float64, error)

	// Name identifies the provider in logs and status output.
	Name() string
}
