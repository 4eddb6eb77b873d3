package watch

import "math"

// AggregateConfig holds the whole-set signal thresholds. The magnitude
// predicate fires on the weighted score itself; the coverage predicate
// fires when enough production weight is alerting at once. Either
// predicate can be disabled; when both are enabled they OR-compose.
type AggregateConfig struct {
	MagnitudeEnabled   bool    `mapstructure:"magnitude_enabled"`
	MagnitudeThreshold float64 `mapstructure:"magnitude_threshold"`
	CoverageEnabled    bool    `mapstructure:"coverage_enabled"`
	CoverageFraction   float64 `mapstructure:"coverage_fraction"`
	PositiveLabel      string  `mapstructure:"positive_label"`
	NegativeLabel      string  `mapstructure:"negative_label"`
}

// AggregateOutcome is the whole-set evaluation for one pass.
type AggregateOutcome struct {
	Score     float64 // weight-normalized mean z-score over valid zones
	Coverage  float64 // fraction of total weight held by alerting zones
	Zones     int     // zones that contributed a valid z-score
	Triggered bool
	Label     string // direction label, set when triggered
}

// Aggregator accumulates per-zone z-scores into the weighted aggregate.
// Zones without a usable z-score this pass are excluded entirely; they
// do not contribute a zero.
type Aggregator struct {
	cfg         AggregateConfig
	totalWeight float64

	sumWZ     float64
	sumW      float64
	alertingW float64
	zones     int
}

// NewAggregator creates an accumulator for one pass. totalWeight is the
// full registry weight, used as the coverage denominator.
func NewAggregator(cfg AggregateConfig, totalWeight float64) *Aggregator {
	return &Aggregator{cfg: cfg, totalWeight: totalWeight}
}

// Add records one zone's z-score. alerting marks zones counted toward
// coverage: those whose alert actually fired this pass.
func (a *Aggregator) Add(z, weight float64, alerting bool) {
	a.sumWZ += z * weight
	a.sumW += weight
	a.zones++
	if alerting {
		a.alertingW += weight
	}
}

// Outcome evaluates the accumulated state. With no valid zones the
// outcome is a quiet zero.
func (a *Aggregator) Outcome() AggregateOutcome {
	out := AggregateOutcome{Zones: a.zones}
	if a.zones == 0 || a.sumW == 0 {
		return out
	}

	out.Score = round2(a.sumWZ / a.sumW)
	if a.totalWeight > 0 {
		out.Coverage = a.alertingW / a.totalWeight
	}

	if a.cfg.MagnitudeEnabled && math.Abs(out.Score) >= a.cfg.MagnitudeThreshold {
		out.Triggered = true
	}
	if a.cfg.CoverageEnabled && out.Coverage >= a.cfg.CoverageFraction {
		out.Triggered = true
	}

	if out.Triggered {
		if out.Score >= 0 {
			out.Label = a.cfg.PositiveLabel
		} else {
			out.Label = a.cfg.NegativeLabel
		}
	}

	return out
}
