package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cropsight/cropsight/internal/notify"
	"github.com/cropsight/cropsight/internal/provider"
	"github.com/cropsight/cropsight/internal/zone"
	"github.com/cropsight/cropsight/pkg/plugin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ZoneStatus is one zone's outcome within a pass.
type ZoneStatus struct {
	Zone       string  `json:"zone"`
	Outcome    string  `json:"outcome"`  // recorded, duplicate, skipped
	Decision   string  `json:"decision"` // ok, alert, suppressed
	Index      float64 `json:"index,omitempty"`
	AnomalyPct float64 `json:"anomaly_pct,omitempty"`
	ZScore     float64 `json:"z_score,omitempty"`
	Error      string  `json:"error,omitempty"`

	// validStats marks zones whose statistics came from a real baseline
	// and may enter the aggregate.
	validStats bool
}

// PassResult summarizes one full monitoring pass. A pass never fails as
// a unit; per-zone trouble lands in the status list.
type PassResult struct {
	Day       string           `json:"day"`
	Forced    bool             `json:"forced"`
	Zones     []ZoneStatus     `json:"zones"`
	Aggregate AggregateOutcome `json:"aggregate"`
	Started   time.Time        `json:"started"`
	Duration  time.Duration    `json:"duration"`
}

// Runner executes monitoring passes: fetch, compute, persist, decide
// and notify for every zone, then the aggregate evaluation.
type Runner struct {
	cfg      Config
	zones    *zone.Registry
	store    *Store
	provider provider.Provider
	notifier notify.Notifier
	bus      plugin.EventBus
	logger   *zap.Logger
	engine   Engine
	now      func() time.Time
}

// NewRunner wires a runner. now defaults to time.Now when nil.
func NewRunner(cfg Config, zones *zone.Registry, store *Store, prov provider.Provider,
	notifier notify.Notifier, bus plugin.EventBus, logger *zap.Logger, now func() time.Time) *Runner {
	if now == nil {
		now = time.Now
	}
	return &Runner{
		cfg:      cfg,
		zones:    zones,
		store:    store,
		provider: prov,
		notifier: notifier,
		bus:      bus,
		logger:   logger,
		engine:   Engine{MinSamples: cfg.MinSamples},
		now:      now,
	}
}

// RunPass executes one pass over all zones. trigger labels the metrics
// ("scheduled", "http", "forced"). force bypasses the alert gate and
// suppression for every zone, on a separate path with labeled messages.
func (r *Runner) RunPass(ctx context.Context, force bool, trigger string) PassResult {
	started := r.now().UTC()
	day := started.Format(DayFormat)

	result := PassResult{
		Day:     day,
		Forced:  force,
		Zones:   make([]ZoneStatus, r.zones.Len()),
		Started: started,
	}

	agg := NewAggregator(r.cfg.Aggregate, r.zones.TotalWeight())
	var aggMu sync.Mutex

	sem := make(chan struct{}, r.cfg.MaxWorkers)
	var wg sync.WaitGroup

	for i, z := range r.zones.All() {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, z zone.Zone) {
			defer wg.Done()
			defer func() { <-sem }()

			st := r.processZone(ctx, z, day, force)
			result.Zones[i] = st
			zoneOutcomesTotal.WithLabelValues(st.Outcome).Inc()

			if st.Outcome != outcomeSkipped && st.validStats {
				// Coverage counts zones whose alert actually fired this
				// pass. Forced deliveries and suppressed zones are not
				// anomaly detections.
				organicAlert := !force && st.Decision == DecisionAlert.String()
				aggMu.Lock()
				agg.Add(st.ZScore, z.Weight, organicAlert)
				aggMu.Unlock()
			}
		}(i, z)
	}
	wg.Wait()

	result.Aggregate = agg.Outcome()
	aggregateScore.Set(result.Aggregate.Score)

	globalAlerted := false
	if result.Aggregate.Triggered {
		if force {
			// A forced pass is a diagnostic; its output is always labeled.
			// The aggregate text has no such label, so it is withheld here
			// and the outcome stays visible in the pass result.
			r.logger.Info("aggregate threshold met during forced pass, notification withheld",
				zap.String("day", day),
				zap.Float64("score", result.Aggregate.Score))
		} else {
			globalAlerted = r.emitGlobalAlert(ctx, day, result.Aggregate)
		}
	}

	result.Duration = r.now().UTC().Sub(started)
	passesTotal.WithLabelValues(trigger).Inc()
	passDuration.Observe(result.Duration.Seconds())

	ev := r.passEvent(result, globalAlerted)
	r.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicPassCompleted,
		Source:    "watch",
		Timestamp: r.now(),
		Payload:   ev,
	})
	r.logger.Info(passSummaryText(ev),
		zap.String("day", day),
		zap.String("trigger", trigger),
		zap.Duration("duration", result.Duration),
	)

	return result
}

func (r *Runner) processZone(ctx context.Context, z zone.Zone, day string, force bool) ZoneStatus {
	st := ZoneStatus{Zone: z.Name, Outcome: outcomeSkipped, Decision: DecisionNone.String()}

	value, err := r.provider.Fetch(ctx, z, r.now().UTC())
	if err != nil {
		if errors.Is(err, provider.ErrUnavailable) {
			r.logger.Info("no usable reading, zone skipped",
				zap.String("zone", z.Name), zap.String("day", day), zap.Error(err))
		} else {
			r.logger.Error("provider fetch failed, zone skipped",
				zap.String("zone", z.Name), zap.String("day", day), zap.Error(err))
		}
		st.Error = err.Error()
		return st
	}
	st.Index = value

	history, err := r.store.HistoryValues(ctx, z.Name, day)
	if err != nil {
		r.logger.Error("history load failed, zone skipped",
			zap.String("zone", z.Name), zap.Error(err))
		st.Error = err.Error()
		return st
	}

	res, err := r.engine.Compute(history, value)
	if err != nil {
		// Zero-mean history: the percent anomaly is meaningless but the
		// z-score still is. Loud, because stored data should never be flat
		// around zero for a bounded vegetation index.
		r.logger.Error("degenerate history",
			zap.String("zone", z.Name), zap.Int("samples", len(history)), zap.Error(err))
	}
	st.AnomalyPct = res.AnomalyPct
	st.ZScore = res.ZScore
	st.validStats = res.Valid

	delta7, hasDelta := Delta7d(history, value)
	breached := res.Valid && r.cfg.Gate.Breached(res, delta7, hasDelta)

	if err := r.store.AppendRecord(ctx, Record{
		Day: day, Zone: z.Name, Index: value,
		AnomalyPct: res.AnomalyPct, ZScore: res.ZScore,
	}); err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			// Another pass already recorded and decided for this day.
			st.Outcome = outcomeDuplicate
			return st
		}
		r.logger.Error("append failed, zone skipped",
			zap.String("zone", z.Name), zap.Error(err))
		st.Error = err.Error()
		return st
	}
	st.Outcome = outcomeRecorded

	if force {
		st.Decision = DecisionAlert.String()
		r.emitZoneAlert(ctx, z, day, value, res, AlertKindForced)
	} else {
		st.Decision = r.decideAndAlert(ctx, z, day, value, res, breached).String()
	}

	r.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicZoneRecorded,
		Source:    "watch",
		Timestamp: r.now(),
		Payload: ZoneRecordedEvent{
			Day: day, Zone: z.Name, Index: value,
			AnomalyPct: res.AnomalyPct, ZScore: res.ZScore,
			Tier: z.Tier(), Decision: st.Decision,
		},
	})

	return st
}

// decideAndAlert applies the gate, the suppression window and the
// compare-and-set on the zone's alert marker. Losing the CAS means a
// concurrent pass already notified; the zone reports suppressed.
func (r *Runner) decideAndAlert(ctx context.Context, z zone.Zone, day string,
	value float64, res Result, breached bool) Decision {

	if !breached {
		return DecisionNone
	}

	lastDay, hasLast, err := r.store.LastAlertDay(ctx, z.Name)
	if err != nil {
		r.logger.Error("alert state load failed",
			zap.String("zone", z.Name), zap.Error(err))
		return DecisionSuppressed
	}

	daysSince := NeverAlerted
	if hasLast {
		daysSince = daysBetween(lastDay, day)
	}

	d := Decide(breached, daysSince, r.cfg.MinDaysBetweenAlerts)
	if d != DecisionAlert {
		return d
	}

	observed := ""
	if hasLast {
		observed = lastDay
	}
	won, err := r.store.AdvanceAlertDay(ctx, z.Name, observed, day)
	if err != nil {
		r.logger.Error("alert state update failed",
			zap.String("zone", z.Name), zap.Error(err))
		return DecisionSuppressed
	}
	if !won {
		r.logger.Info("alert already claimed by a concurrent pass",
			zap.String("zone", z.Name), zap.String("day", day))
		return DecisionSuppressed
	}

	r.emitZoneAlert(ctx, z, day, value, res, AlertKindZone)
	return DecisionAlert
}

func (r *Runner) emitZoneAlert(ctx context.Context, z zone.Zone, day string,
	value float64, res Result, kind string) {

	text := zoneAlertText(z, day, value, res)
	if kind == AlertKindForced {
		text = forcedAlertText(z, day, value, res)
	}

	alert := Alert{
		ID: uuid.NewString(), Zone: z.Name, Day: day, Kind: kind,
		Message: text, AnomalyPct: res.AnomalyPct, ZScore: res.ZScore,
	}
	if err := r.store.InsertAlert(ctx, alert); err != nil {
		r.logger.Error("alert log insert failed",
			zap.String("zone", z.Name), zap.Error(err))
	}

	if err := r.notifier.Notify(ctx, notify.Message{Text: text}); err != nil {
		r.logger.Error("alert delivery failed",
			zap.String("zone", z.Name),
			zap.String("notifier", r.notifier.Name()),
			zap.Error(err))
	}
	alertsTotal.WithLabelValues(kind).Inc()

	r.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicAlertTriggered,
		Source:    "watch",
		Timestamp: r.now(),
		Payload: AlertTriggeredEvent{
			ID: alert.ID, Zone: z.Name, Day: day, Kind: kind,
			AnomalyPct: res.AnomalyPct, ZScore: res.ZScore,
		},
	})
}

func (r *Runner) emitGlobalAlert(ctx context.Context, day string, out AggregateOutcome) bool {
	text := aggregateAlertText(day, out)
	alert := Alert{
		ID: uuid.NewString(), Day: day, Kind: AlertKindAggregate,
		Message: text, Score: out.Score,
	}
	if err := r.store.InsertAlert(ctx, alert); err != nil {
		r.logger.Error("aggregate alert log insert failed", zap.Error(err))
	}

	if err := r.notifier.Notify(ctx, notify.Message{Text: text}); err != nil {
		r.logger.Error("aggregate alert delivery failed",
			zap.String("notifier", r.notifier.Name()), zap.Error(err))
	}
	alertsTotal.WithLabelValues(AlertKindAggregate).Inc()

	r.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicAlertGlobal,
		Source:    "watch",
		Timestamp: r.now(),
		Payload: GlobalAlertEvent{
			ID: alert.ID, Day: day, Score: out.Score,
			Coverage: out.Coverage, Label: out.Label,
		},
	})
	return true
}

// SendTest delivers a diagnostic message through the configured
// notifier and logs it. No statistics are touched.
func (r *Runner) SendTest(ctx context.Context) error {
	day := r.now().UTC().Format(DayFormat)
	text := testAlertText(day, r.provider.Name(), r.notifier.Name(), r.zones.Len())

	if err := r.notifier.Notify(ctx, notify.Message{Text: text}); err != nil {
		return err
	}
	alertsTotal.WithLabelValues(AlertKindTest).Inc()

	return r.store.InsertAlert(ctx, Alert{
		ID: uuid.NewString(), Day: day, Kind: AlertKindTest, Message: text,
	})
}

func (r *Runner) passEvent(res PassResult, globalAlerted bool) PassCompletedEvent {
	ev := PassCompletedEvent{
		Day:            res.Day,
		Zones:          len(res.Zones),
		AggregateScore: res.Aggregate.Score,
		GlobalAlert:    globalAlerted,
		DurationMillis: res.Duration.Milliseconds(),
		Forced:         res.Forced,
	}
	for _, st := range res.Zones {
		switch st.Outcome {
		case outcomeRecorded:
			ev.Recorded++
		case outcomeDuplicate:
			ev.Duplicates++
		case outcomeSkipped:
			ev.Skipped++
		}
		switch st.Decision {
		case DecisionAlert.String():
			ev.Alerts++
		case DecisionSuppressed.String():
			ev.Suppressed++
		}
	}
	return ev
}

// daysBetween returns whole days from one day key to another.
func daysBetween(from, to string) int {
	a, errA := time.Parse(DayFormat, from)
	b, errB := time.Parse(DayFormat, to)
	if errA != nil || errB != nil {
		return NeverAlerted
	}
	return int(b.Sub(a).Hours() / 24)
}
