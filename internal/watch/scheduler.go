package watch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler drives the runner on a fixed interval. Overlap with
// HTTP-triggered passes is safe: the history unique constraint and the
// alert-state compare-and-set make concurrent passes converge.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	season   SeasonConfig
	logger   *zap.Logger
	record   func(PassResult)

	mu       sync.Mutex
	started  bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler around the runner. record receives
// each completed pass result; nil disables recording.
func NewScheduler(runner *Runner, interval time.Duration, season SeasonConfig,
	logger *zap.Logger, record func(PassResult)) *Scheduler {
	if record == nil {
		record = func(PassResult) {}
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		season:   season,
		logger:   logger,
		record:   record,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the interval loop. The first pass runs one interval
// after start, not immediately, so a crash-looping process cannot spam
// the provider.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go s.loop()
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := s.runner.now().UTC()
			if !s.season.Contains(now) {
				s.logger.Info("outside season window, scheduled pass skipped",
					zap.Int("doy", now.YearDay()),
					zap.Int("start_doy", s.season.StartDOY),
					zap.Int("end_doy", s.season.EndDOY),
				)
				continue
			}
			s.record(s.runner.RunPass(context.Background(), false, "scheduled"))
		}
	}
}

// Stop halts the loop and waits for an in-flight pass to finish.
// Safe to call without Start and safe to call twice.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}
