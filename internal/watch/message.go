package watch

import (
	"fmt"
	"strings"

	"github.com/cropsight/cropsight/internal/zone"
)

// All outbound alert text is composed here so every channel and the
// alert log carry the same wording.

// zoneAlertText formats a per-zone anomaly alert.
func zoneAlertText(z zone.Zone, day string, index float64, res Result) string {
	return fmt.Sprintf(
		"Index drop in %s (%s tier, weight %.3f)\n"+
			"Day: %s\n"+
			"Index: %.3f\n"+
			"Anomaly: %+.2f%%\n"+
			"Z-score: %+.2f",
		z.Name, z.Tier(), z.Weight, day, index, res.AnomalyPct, res.ZScore,
	)
}

// forcedAlertText formats a forced-run alert. Explicitly labeled so a
// forced delivery can never be mistaken for an organic one.
func forcedAlertText(z zone.Zone, day string, index float64, res Result) string {
	return "[FORCED RUN] " + zoneAlertText(z, day, index, res)
}

// aggregateAlertText formats the whole-set signal.
func aggregateAlertText(day string, out AggregateOutcome) string {
	return fmt.Sprintf(
		"Aggregate signal: %s\n"+
			"Day: %s\n"+
			"Weighted score: %+.2f\n"+
			"Alerting coverage: %.1f%% of production weight\n"+
			"Zones evaluated: %d",
		out.Label, day, out.Score, out.Coverage*100, out.Zones,
	)
}

// testAlertText formats the connectivity-test message sent by POST /test.
func testAlertText(day, providerName, notifierName string, zones int) string {
	return fmt.Sprintf(
		"Cropsight test message\n"+
			"Day: %s\n"+
			"Provider: %s\n"+
			"Notifier: %s\n"+
			"Zones configured: %d",
		day, providerName, notifierName, zones,
	)
}

// passSummaryText formats the end-of-pass log summary.
func passSummaryText(ev PassCompletedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pass complete: %d/%d zones recorded", ev.Recorded, ev.Zones)
	if ev.Duplicates > 0 {
		fmt.Fprintf(&b, ", %d duplicate", ev.Duplicates)
	}
	if ev.Skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", ev.Skipped)
	}
	if ev.Alerts > 0 {
		fmt.Fprintf(&b, ", %d alert(s)", ev.Alerts)
	}
	if ev.Suppressed > 0 {
		fmt.Fprintf(&b, ", %d suppressed", ev.Suppressed)
	}
	fmt.Fprintf(&b, ", aggregate %+.2f", ev.AggregateScore)
	return b.String()
}
