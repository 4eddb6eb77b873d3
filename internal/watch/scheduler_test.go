package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestScheduler_runsPasses(t *testing.T) {
	day := time.Date(2026, 7, 20, 6, 0, 0, 0, time.UTC)
	f := newRunnerFixture(t, testConfig(), day)
	f.provider.values["mclean"] = 0.6
	f.provider.values["story"] = 0.6

	var mu sync.Mutex
	var recorded []PassResult
	s := NewScheduler(f.runner, 10*time.Millisecond, SeasonConfig{}, zap.NewNop(),
		func(res PassResult) {
			mu.Lock()
			recorded = append(recorded, res)
			mu.Unlock()
		})

	s.Start()
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	mu.Lock()
	n := len(recorded)
	mu.Unlock()
	if n == 0 {
		t.Fatal("scheduler recorded no passes")
	}

	// All passes share the pinned day; reruns are duplicates, so the
	// history holds exactly one row per zone.
	history, err := f.store.HistoryValues(context.Background(), "mclean", "2026-07-21")
	if err != nil {
		t.Fatalf("HistoryValues() error = %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history rows = %d, want 1 despite %d passes", len(history), n)
	}
}

func TestScheduler_skipsOutOfSeason(t *testing.T) {
	// January 20th is DOY 20, outside the growing window.
	day := time.Date(2026, 1, 20, 6, 0, 0, 0, time.UTC)
	f := newRunnerFixture(t, testConfig(), day)
	f.provider.values["mclean"] = 0.6
	f.provider.values["story"] = 0.6

	s := NewScheduler(f.runner, 10*time.Millisecond,
		SeasonConfig{StartDOY: 120, EndDOY: 260}, zap.NewNop(), nil)

	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	history, err := f.store.HistoryValues(context.Background(), "mclean", "2026-01-21")
	if err != nil {
		t.Fatalf("HistoryValues() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("out-of-season scheduler recorded %d rows, want 0", len(history))
	}
}

func TestScheduler_stopWithoutStart(t *testing.T) {
	day := time.Date(2026, 7, 20, 6, 0, 0, 0, time.UTC)
	f := newRunnerFixture(t, testConfig(), day)

	s := NewScheduler(f.runner, time.Hour, SeasonConfig{}, zap.NewNop(), nil)

	done := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop() // idempotent
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() without Start blocked")
	}
}
