package watch

import (
	"errors"
	"math"
)

// ErrZeroMean reports a degenerate history whose mean is zero: the
// percent anomaly is undefined. The z-score in the returned Result is
// still valid when the spread is nonzero.
var ErrZeroMean = errors.New("historical mean is zero, anomaly percent undefined")

// Result holds one anomaly evaluation. Both fields are rounded to two
// decimals so stored values, messages and exports always agree.
type Result struct {
	AnomalyPct float64 // percent deviation of current from the historical mean
	ZScore     float64 // standard deviations of current from the historical mean

	// Valid is true when the history was long and varied enough to
	// compute real statistics. Cold starts and flat histories report
	// (0, 0) with Valid false; aggregate consumers must exclude those
	// zones rather than average in their zeros.
	Valid bool
}

// Engine computes anomaly statistics against a zone's own history.
// Pure and deterministic: identical inputs yield identical outputs.
type Engine struct {
	// MinSamples is the minimum history length required before the
	// engine reports a signal. Shorter histories are a cold start.
	MinSamples int
}

// Compute evaluates current against history. Cold starts (fewer than
// MinSamples observations) and flat histories (zero spread) report a
// neutral (0, 0) result rather than an error, so a freshly added zone
// records observations silently until its baseline exists.
func (e Engine) Compute(history []float64, current float64) (Result, error) {
	if len(history) < e.MinSamples {
		return Result{}, nil
	}

	mean := 0.0
	for _, v := range history {
		mean += v
	}
	mean /= float64(len(history))

	// Sample standard deviation (n-1 denominator).
	varSum := 0.0
	for _, v := range history {
		d := v - mean
		varSum += d * d
	}
	std := math.Sqrt(varSum / float64(len(history)-1))

	if std == 0 {
		return Result{}, nil
	}

	z := round2((current - mean) / std)

	if mean == 0 {
		return Result{ZScore: z, Valid: true}, ErrZeroMean
	}

	return Result{
		AnomalyPct: round2((current - mean) / mean * 100),
		ZScore:     z,
		Valid:      true,
	}, nil
}

// Delta7d returns the change from the observation seven positions back
// in a chronological history, and whether the history is long enough to
// measure it.
func Delta7d(history []float64, current float64) (float64, bool) {
	if len(history) < 7 {
		return 0, false
	}
	return round2(current - history[len(history)-7]), true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
