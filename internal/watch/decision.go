package watch

// GateConfig holds the per-zone alert thresholds. The primary gate
// requires both the percent drop and the z-score to breach. The
// alternate gate, when enabled, additionally triggers on a deep z-score
// or a steep week-over-week decline, whichever comes first.
type GateConfig struct {
	DropPct      float64 `mapstructure:"drop_pct"`
	ZScore       float64 `mapstructure:"zscore"`
	AltEnabled   bool    `mapstructure:"alt_enabled"`
	AltZScore    float64 `mapstructure:"alt_zscore"`
	AltDeltaWeek float64 `mapstructure:"alt_delta_week"`
}

// Breached reports whether the statistics cross the alert thresholds.
// delta7 is the week-over-week index change; hasDelta is false when the
// history is too short to measure it.
func (g GateConfig) Breached(res Result, delta7 float64, hasDelta bool) bool {
	if res.AnomalyPct <= g.DropPct && res.ZScore <= g.ZScore {
		return true
	}
	if g.AltEnabled {
		if res.ZScore <= g.AltZScore {
			return true
		}
		if hasDelta && delta7 <= g.AltDeltaWeek {
			return true
		}
	}
	return false
}

// Decision is the outcome of evaluating one zone observation.
type Decision int

const (
	// DecisionNone: thresholds not breached, nothing to send.
	DecisionNone Decision = iota
	// DecisionAlert: breached and outside the suppression window.
	DecisionAlert
	// DecisionSuppressed: breached, but a recent alert already covered it.
	DecisionSuppressed
)

func (d Decision) String() string {
	switch d {
	case DecisionAlert:
		return "alert"
	case DecisionSuppressed:
		return "suppressed"
	default:
		return "ok"
	}
}

// NeverAlerted marks a zone with no prior alert for Decide's
// daysSinceAlert argument.
const NeverAlerted = -1

// Decide combines the gate verdict with re-alert suppression. A zone
// that breached within the last minDays days stays quiet; exactly
// minDays days since the last alert is eligible again.
func Decide(breached bool, daysSinceAlert, minDays int) Decision {
	if !breached {
		return DecisionNone
	}
	if daysSinceAlert != NeverAlerted && daysSinceAlert < minDays {
		return DecisionSuppressed
	}
	return DecisionAlert
}
