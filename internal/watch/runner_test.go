package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cropsight/cropsight/internal/event"
	"github.com/cropsight/cropsight/internal/notify"
	"github.com/cropsight/cropsight/internal/provider"
	"github.com/cropsight/cropsight/internal/store"
	"github.com/cropsight/cropsight/internal/zone"
	"go.uber.org/zap"
)

// fakeProvider serves canned values per zone.
type fakeProvider struct {
	values map[string]float64
	errs   map[string]error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Fetch(_ context.Context, z zone.Zone, _ time.Time) (float64, error) {
	if err, ok := f.errs[z.Name]; ok {
		return 0, err
	}
	v, ok := f.values[z.Name]
	if !ok {
		return 0, fmt.Errorf("no canned value for %s: %w", z.Name, provider.ErrUnavailable)
	}
	return v, nil
}

// captureNotifier records every delivered message.
type captureNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (c *captureNotifier) Name() string { return "capture" }

func (c *captureNotifier) Notify(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *captureNotifier) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Text
	}
	return out
}

type runnerFixture struct {
	runner   *Runner
	store    *Store
	provider *fakeProvider
	notifier *captureNotifier
	zones    *zone.Registry
}

func testConfig() Config {
	return Config{
		PassInterval:         24 * time.Hour,
		MinSamples:           5,
		MaxWorkers:           2,
		MinDaysBetweenAlerts: 7,
		Gate:                 GateConfig{DropPct: -15.0, ZScore: -1.0},
		Aggregate: AggregateConfig{
			MagnitudeEnabled:   true,
			MagnitudeThreshold: 0.3,
			CoverageEnabled:    true,
			CoverageFraction:   0.10,
			PositiveLabel:      "surplus signal (short)",
			NegativeLabel:      "stress signal (long)",
		},
	}
}

// newRunnerFixture wires a runner against a temp database with two
// zones. now is pinned so day keys are stable.
func newRunnerFixture(t *testing.T, cfg Config, day time.Time) *runnerFixture {
	t.Helper()

	db, err := store.New(filepath.Join(t.TempDir(), "runner_test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), "watch", Migrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	zones, err := zone.NewRegistry([]zone.Zone{
		{Name: "mclean", Lat: 40.49, Lon: -88.84, Weight: 0.6},
		{Name: "story", Lat: 42.04, Lon: -93.46, Weight: 0.4},
	})
	if err != nil {
		t.Fatalf("zone.NewRegistry() error = %v", err)
	}

	f := &runnerFixture{
		store:    NewStore(db),
		provider: &fakeProvider{values: map[string]float64{}, errs: map[string]error{}},
		notifier: &captureNotifier{},
		zones:    zones,
	}
	f.runner = NewRunner(cfg, zones, f.store, f.provider, f.notifier,
		event.NewBus(zap.NewNop()), zap.NewNop(), func() time.Time { return day })

	return f
}

// seedHistory inserts count observations ending the day before `until`.
func seedHistory(t *testing.T, s *Store, zoneName string, until time.Time, values []float64) {
	t.Helper()
	for i, v := range values {
		day := until.AddDate(0, 0, i-len(values)).Format(DayFormat)
		err := s.AppendRecord(context.Background(), Record{Day: day, Zone: zoneName, Index: v})
		if err != nil {
			t.Fatalf("seeding %s/%s: %v", zoneName, day, err)
		}
	}
}

func steadyHistory() []float64 {
	return []float64{0.63, 0.64, 0.65, 0.66, 0.64, 0.65, 0.63, 0.66, 0.64, 0.65}
}

func TestRunner_healthyPassIsQuiet(t *testing.T) {
	day := time.Date(2026, 7, 20, 6, 0, 0, 0, time.UTC)
	f := newRunnerFixture(t, testConfig(), day)

	seedHistory(t, f.store, "mclean", day, steadyHistory())
	seedHistory(t, f.store, "story", day, steadyHistory())
	f.provider.values["mclean"] = 0.64
	f.provider.values["story"] = 0.65

	result := f.runner.RunPass(context.Background(), false, "http")

	if len(result.Zones) != 2 {
		t.Fatalf("pass covered %d zones, want 2", len(result.Zones))
	}
	for _, st := range result.Zones {
		if st.Outcome != outcomeRecorded {
			t.Errorf("zone %s outcome = %q, want recorded", st.Zone, st.Outcome)
		}
		if st.Decision != "ok" {
			t.Errorf("zone %s decision = %q, want ok", st.Zone, st.Decision)
		}
	}
	if msgs := f.notifier.texts(); len(msgs) != 0 {
		t.Errorf("notifier received %d messages on a healthy pass: %v", len(msgs), msgs)
	}

	history, err := f.store.HistoryValues(context.Background(), "mclean", "2026-07-21")
	if err != nil {
		t.Fatalf("HistoryValues() error = %v", err)
	}
	if len(history) != 11 {
		t.Errorf("history length after pass = %d, want 11", len(history))
	}
}

func TestRunner_alertAndSuppression(t *testing.T) {
	day := time.Date(2026, 7, 20, 6, 0, 0, 0, time.UTC)
	f := newRunnerFixture(t, testConfig(), day)

	seedHistory(t, f.store, "mclean", day, steadyHistory())
	seedHistory(t, f.store, "story", day, steadyHistory())
	f.provider.values["mclean"] = 0.52 // deep drop
	f.provider.values["story"] = 0.64

	result := f.runner.RunPass(context.Background(), false, "http")

	var mclean ZoneStatus
	for _, st := range result.Zones {
		if st.Zone == "mclean" {
			mclean = st
		}
	}
	if mclean.Decision != "alert" {
		t.Fatalf("mclean decision = %q, want alert", mclean.Decision)
	}

	// The zone alert plus the aggregate: the weighted score is dragged
	// far below the magnitude threshold by mclean's weight.
	msgs := f.notifier.texts()
	if len(msgs) != 2 || !strings.Contains(msgs[0], "mclean") {
		t.Fatalf("notifier messages = %v, want a mclean alert and an aggregate alert", msgs)
	}
	if strings.Contains(msgs[0], "FORCED") {
		t.Errorf("organic alert carries the forced label: %q", msgs[0])
	}
	if !strings.Contains(msgs[1], "Aggregate signal") {
		t.Errorf("second message = %q, want the aggregate alert", msgs[1])
	}

	lastDay, found, err := f.store.LastAlertDay(context.Background(), "mclean")
	if err != nil || !found || lastDay != "2026-07-20" {
		t.Fatalf("LastAlertDay() = %q, %v, %v; want 2026-07-20", lastDay, found, err)
	}

	alerts, err := f.store.RecentAlerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentAlerts() error = %v", err)
	}
	foundZoneAlert := false
	for _, a := range alerts {
		if a.Kind == AlertKindZone && a.Zone == "mclean" {
			foundZoneAlert = true
			if a.ID == "" {
				t.Error("alert row has empty id")
			}
		}
	}
	if !foundZoneAlert {
		t.Error("no zone alert row logged")
	}

	// The next day the zone is still bad, but inside the suppression
	// window: recorded, no second zone notification. The aggregate has
	// no suppression of its own and fires again on magnitude, but the
	// suppressed zone contributes nothing to coverage.
	nextDay := day.AddDate(0, 0, 1)
	runner2 := NewRunner(testConfig(), f.zones, f.store, f.provider, f.notifier,
		event.NewBus(zap.NewNop()), zap.NewNop(), func() time.Time { return nextDay })
	f.provider.values["mclean"] = 0.50

	result2 := runner2.RunPass(context.Background(), false, "http")
	for _, st := range result2.Zones {
		if st.Zone == "mclean" && st.Decision != "suppressed" {
			t.Errorf("mclean decision on day 2 = %q, want suppressed", st.Decision)
		}
	}
	if result2.Aggregate.Coverage != 0 {
		t.Errorf("day 2 coverage = %v, want 0: suppressed zones are not alerting", result2.Aggregate.Coverage)
	}

	msgs = f.notifier.texts()
	if len(msgs) != 3 {
		t.Fatalf("notifier received %d messages, want 3 (suppression holds the zone alert)", len(msgs))
	}
	if !strings.Contains(msgs[2], "Aggregate signal") {
		t.Errorf("day 2 message = %q, want an aggregate alert only", msgs[2])
	}
}

func TestRunner_duplicatePassIsIdempotent(t *testing.T) {
	day := time.Date(2026, 7, 20, 6, 0, 0, 0, time.UTC)
	f := newRunnerFixture(t, testConfig(), day)

	seedHistory(t, f.store, "mclean", day, steadyHistory())
	seedHistory(t, f.store, "story", day, steadyHistory())
	f.provider.values["mclean"] = 0.64
	f.provider.values["story"] = 0.65

	f.runner.RunPass(context.Background(), false, "http")
	result := f.runner.RunPass(context.Background(), false, "http")

	for _, st := range result.Zones {
		if st.Outcome != outcomeDuplicate {
			t.Errorf("zone %s outcome on rerun = %q, want duplicate", st.Zone, st.Outcome)
		}
	}

	history, err := f.store.HistoryValues(context.Background(), "mclean", "2026-07-21")
	if err != nil {
		t.Fatalf("HistoryValues() error = %v", err)
	}
	if len(history) != 11 {
		t.Errorf("history length after rerun = %d, want 11", len(history))
	}
}

func TestRunner_unavailableZoneSkipped(t *testing.T) {
	day := time.Date(2026, 7, 20, 6, 0, 0, 0, time.UTC)
	f := newRunnerFixture(t, testConfig(), day)

	seedHistory(t, f.store, "story", day, steadyHistory())
	f.provider.errs["mclean"] = fmt.Errorf("cloud cover: %w", provider.ErrUnavailable)
	f.provider.values["story"] = 0.64

	result := f.runner.RunPass(context.Background(), false, "http")

	for _, st := range result.Zones {
		switch st.Zone {
		case "mclean":
			if st.Outcome != outcomeSkipped {
				t.Errorf("mclean outcome = %q, want skipped", st.Outcome)
			}
			if st.Error == "" {
				t.Error("skipped zone carries no error detail")
			}
		case "story":
			if st.Outcome != outcomeRecorded {
				t.Errorf("story outcome = %q, want recorded", st.Outcome)
			}
		}
	}

	// Only story contributed; its weight alone backs the aggregate.
	if result.Aggregate.Zones != 1 {
		t.Errorf("aggregate zones = %d, want 1", result.Aggregate.Zones)
	}

	// The skipped zone must not gain a history row.
	history, err := f.store.HistoryValues(context.Background(), "mclean", "2026-07-21")
	if err != nil {
		t.Fatalf("HistoryValues() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("skipped zone has %d history rows, want 0", len(history))
	}
}

func TestRunner_forcedPass(t *testing.T) {
	day := time.Date(2026, 7, 20, 6, 0, 0, 0, time.UTC)
	f := newRunnerFixture(t, testConfig(), day)

	seedHistory(t, f.store, "mclean", day, steadyHistory())
	seedHistory(t, f.store, "story", day, steadyHistory())
	f.provider.values["mclean"] = 0.64 // healthy, would not alert organically
	f.provider.values["story"] = 0.65

	result := f.runner.RunPass(context.Background(), true, "forced")

	for _, st := range result.Zones {
		if st.Decision != "alert" {
			t.Errorf("zone %s decision = %q, want alert on forced pass", st.Zone, st.Decision)
		}
	}

	msgs := f.notifier.texts()
	if len(msgs) != 2 {
		t.Fatalf("notifier received %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if !strings.HasPrefix(m, "[FORCED RUN]") {
			t.Errorf("forced message missing label: %q", m)
		}
	}

	// Forced deliveries are diagnostics, not detections: they count for
	// nothing in the coverage predicate.
	if result.Aggregate.Coverage != 0 {
		t.Errorf("forced pass coverage = %v, want 0", result.Aggregate.Coverage)
	}
	if result.Aggregate.Triggered {
		t.Errorf("aggregate = %+v, want untriggered on healthy forced data", result.Aggregate)
	}

	// Forced deliveries must not consume the suppression window.
	if _, found, err := f.store.LastAlertDay(context.Background(), "mclean"); err != nil || found {
		t.Errorf("LastAlertDay() after forced pass = found %v, err %v; want untouched", found, err)
	}
}

func TestRunner_forcedPassWithholdsAggregate(t *testing.T) {
	day := time.Date(2026, 7, 20, 6, 0, 0, 0, time.UTC)
	f := newRunnerFixture(t, testConfig(), day)

	seedHistory(t, f.store, "mclean", day, steadyHistory())
	seedHistory(t, f.store, "story", day, steadyHistory())
	// Genuinely anomalous readings: the magnitude predicate holds, but a
	// forced pass only ever delivers labeled messages.
	f.provider.values["mclean"] = 0.52
	f.provider.values["story"] = 0.53

	result := f.runner.RunPass(context.Background(), true, "forced")

	if !result.Aggregate.Triggered {
		t.Fatalf("aggregate = %+v, want triggered on magnitude", result.Aggregate)
	}

	msgs := f.notifier.texts()
	if len(msgs) != 2 {
		t.Fatalf("notifier received %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if !strings.HasPrefix(m, "[FORCED RUN]") {
			t.Errorf("forced message missing label: %q", m)
		}
		if strings.Contains(m, "Aggregate signal") {
			t.Errorf("forced pass delivered an aggregate alert: %q", m)
		}
	}
}

func TestRunner_coldStartRecordsQuietly(t *testing.T) {
	day := time.Date(2026, 7, 20, 6, 0, 0, 0, time.UTC)
	f := newRunnerFixture(t, testConfig(), day)

	// No history at all; even a tiny value must not alert.
	f.provider.values["mclean"] = 0.05
	f.provider.values["story"] = 0.04

	result := f.runner.RunPass(context.Background(), false, "http")

	for _, st := range result.Zones {
		if st.Outcome != outcomeRecorded || st.Decision != "ok" {
			t.Errorf("zone %s = %q/%q, want recorded/ok on cold start", st.Zone, st.Outcome, st.Decision)
		}
	}
	if msgs := f.notifier.texts(); len(msgs) != 0 {
		t.Errorf("notifier received %d messages on cold start, want 0", len(msgs))
	}
	if result.Aggregate.Zones != 0 {
		t.Errorf("aggregate zones = %d, want 0: cold-start zones are excluded", result.Aggregate.Zones)
	}
}

func TestRunner_aggregateAlert(t *testing.T) {
	day := time.Date(2026, 7, 20, 6, 0, 0, 0, time.UTC)
	f := newRunnerFixture(t, testConfig(), day)

	seedHistory(t, f.store, "mclean", day, steadyHistory())
	seedHistory(t, f.store, "story", day, steadyHistory())
	// Both zones slump together; each breaches its own gate and the
	// weighted score lands deep below the magnitude threshold.
	f.provider.values["mclean"] = 0.52
	f.provider.values["story"] = 0.53

	result := f.runner.RunPass(context.Background(), false, "http")

	if !result.Aggregate.Triggered {
		t.Fatalf("aggregate = %+v, want triggered", result.Aggregate)
	}
	if result.Aggregate.Label != "stress signal (long)" {
		t.Errorf("aggregate label = %q, want the negative-regime label", result.Aggregate.Label)
	}
	if result.Aggregate.Coverage != 1.0 {
		t.Errorf("aggregate coverage = %v, want 1.0", result.Aggregate.Coverage)
	}

	var sawAggregate bool
	for _, m := range f.notifier.texts() {
		if strings.Contains(m, "Aggregate signal") {
			sawAggregate = true
		}
	}
	if !sawAggregate {
		t.Error("no aggregate message delivered")
	}

	alerts, err := f.store.RecentAlerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentAlerts() error = %v", err)
	}
	var sawRow bool
	for _, a := range alerts {
		if a.Kind == AlertKindAggregate {
			sawRow = true
			if a.Score == 0 {
				t.Error("aggregate alert row has zero score")
			}
		}
	}
	if !sawRow {
		t.Error("no aggregate alert row logged")
	}
}

func TestRunner_notifierFailureDoesNotAbortPass(t *testing.T) {
	day := time.Date(2026, 7, 20, 6, 0, 0, 0, time.UTC)
	f := newRunnerFixture(t, testConfig(), day)

	seedHistory(t, f.store, "mclean", day, steadyHistory())
	seedHistory(t, f.store, "story", day, steadyHistory())
	f.provider.values["mclean"] = 0.52
	f.provider.values["story"] = 0.64
	f.notifier.err = errors.New("telegram down")

	result := f.runner.RunPass(context.Background(), false, "http")

	// The pass still records everything and logs the alert row.
	for _, st := range result.Zones {
		if st.Outcome != outcomeRecorded {
			t.Errorf("zone %s outcome = %q, want recorded", st.Zone, st.Outcome)
		}
	}
	alerts, err := f.store.RecentAlerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentAlerts() error = %v", err)
	}
	if len(alerts) == 0 {
		t.Error("no alert rows despite gate breach")
	}
}

func TestRunner_sendTest(t *testing.T) {
	day := time.Date(2026, 7, 20, 6, 0, 0, 0, time.UTC)
	f := newRunnerFixture(t, testConfig(), day)

	if err := f.runner.SendTest(context.Background()); err != nil {
		t.Fatalf("SendTest() error = %v", err)
	}

	msgs := f.notifier.texts()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "test message") {
		t.Fatalf("notifier messages = %v, want one test message", msgs)
	}

	alerts, err := f.store.RecentAlerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentAlerts() error = %v", err)
	}
	if len(alerts) != 1 || alerts[0].Kind != AlertKindTest {
		t.Fatalf("alert log = %+v, want one test entry", alerts)
	}

	// No statistics are touched by a test message.
	history, err := f.store.HistoryValues(context.Background(), "mclean", "2026-07-21")
	if err != nil {
		t.Fatalf("HistoryValues() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("test message wrote %d history rows, want 0", len(history))
	}
}
