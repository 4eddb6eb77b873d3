// Package watch is the monitoring core: one pass per day fetches the
// surface index for every zone, scores it against the zone's own
// history, persists the observation and raises alerts through the
// configured notifier.
package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cropsight/cropsight/internal/notify"
	"github.com/cropsight/cropsight/internal/provider"
	"github.com/cropsight/cropsight/internal/zone"
	"github.com/cropsight/cropsight/pkg/plugin"
	"go.uber.org/zap"
)

// Module is the watch plugin.
type Module struct {
	cfg      Config
	zones    *zone.Registry
	provider provider.Provider
	notifier notify.Notifier

	store     *Store
	runner    *Runner
	scheduler *Scheduler
	logger    *zap.Logger

	mu   sync.RWMutex
	last *PassResult
}

// New creates the watch module. The zone registry, provider and
// notifier are built by the composition root from top-level config;
// everything else arrives through Init.
func New(zones *zone.Registry, prov provider.Provider, notifier notify.Notifier) *Module {
	return &Module{
		zones:    zones,
		provider: prov,
		notifier: notifier,
	}
}

// Info returns module metadata.
func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "watch",
		Version:     "0.1.0",
		Description: "Vegetation index monitoring and alerting",
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

// Init loads config, applies migrations and wires the runner.
func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	if err := deps.Config.Unmarshal(&m.cfg); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	if m.cfg.PassInterval <= 0 {
		m.cfg.PassInterval = 24 * time.Hour
	}
	if m.cfg.MinSamples < 2 {
		m.cfg.MinSamples = 5
	}
	if m.cfg.MaxWorkers < 1 {
		m.cfg.MaxWorkers = 4
	}

	if err := deps.Store.Migrate(ctx, "watch", Migrations()); err != nil {
		return fmt.Errorf("watch migrations: %w", err)
	}

	m.store = NewStore(deps.Store)
	m.runner = NewRunner(m.cfg, m.zones, m.store, m.provider, m.notifier, deps.Bus, m.logger, nil)
	m.scheduler = NewScheduler(m.runner, m.cfg.PassInterval, m.cfg.Season, m.logger, m.setLastPass)

	m.logger.Info("watch module initialized",
		zap.Int("zones", m.zones.Len()),
		zap.String("provider", m.provider.Name()),
		zap.String("notifier", m.notifier.Name()),
		zap.Duration("pass_interval", m.cfg.PassInterval),
	)

	return nil
}

// ValidateConfig checks the loaded configuration after Init.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

// Start launches the pass scheduler.
func (m *Module) Start(context.Context) error {
	m.scheduler.Start()
	return nil
}

// Stop halts the scheduler and waits for an in-flight pass.
func (m *Module) Stop(context.Context) error {
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	return nil
}

// Health reports the module's state for /api/v1/health consumers.
func (m *Module) Health(context.Context) plugin.HealthStatus {
	details := map[string]string{
		"zones":    fmt.Sprintf("%d", m.zones.Len()),
		"provider": m.provider.Name(),
		"notifier": m.notifier.Name(),
	}
	if last := m.lastPass(); last != nil {
		details["last_pass_day"] = last.Day
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

func (m *Module) setLastPass(res PassResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &res
}

func (m *Module) lastPass() *PassResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
