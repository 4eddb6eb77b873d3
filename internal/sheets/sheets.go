// Package sheets forwards recorded observations to a spreadsheet
// webhook (a Google Apps Script endpoint or anything shaped like one).
// Delivery is fire-and-forget: a failed POST is logged and dropped so
// the monitoring pass is never coupled to the spreadsheet's uptime.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cropsight/cropsight/internal/watch"
	"github.com/cropsight/cropsight/pkg/plugin"
	"go.uber.org/zap"
)

// Config holds the sheets module configuration.
type Config struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Enabled bool          `mapstructure:"enabled"`
}

// Module is the sheets plugin.
type Module struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates the sheets module.
func New() *Module {
	return &Module{}
}

// Info returns module metadata.
func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "sheets",
		Version:      "0.1.0",
		Description:  "Spreadsheet webhook logging for recorded observations",
		Dependencies: []string{"watch"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

// Init reads config and prepares the HTTP client.
func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	if err := deps.Config.Unmarshal(&m.cfg); err != nil {
		return fmt.Errorf("sheets config: %w", err)
	}
	if m.cfg.Timeout <= 0 {
		m.cfg.Timeout = 10 * time.Second
	}
	m.client = &http.Client{Timeout: m.cfg.Timeout}

	if m.cfg.Enabled && m.cfg.URL == "" {
		m.logger.Info("sheets module enabled but no url configured, deliveries disabled")
	}

	return nil
}

// Start is a no-op; the module is purely event-driven.
func (m *Module) Start(context.Context) error { return nil }

// Stop is a no-op.
func (m *Module) Stop(context.Context) error { return nil }

// Subscriptions wires the module to recorded-observation events.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: watch.TopicZoneRecorded, Handler: m.onZoneRecorded},
	}
}

// Health reports whether deliveries are active.
func (m *Module) Health(context.Context) plugin.HealthStatus {
	if !m.active() {
		return plugin.HealthStatus{
			Status:  "healthy",
			Message: "deliveries disabled",
		}
	}
	return plugin.HealthStatus{
		Status:  "healthy",
		Details: map[string]string{"url": m.cfg.URL},
	}
}

func (m *Module) active() bool {
	return m.cfg.Enabled && m.cfg.URL != ""
}

// row is the flat record posted to the webhook, one per observation.
type row struct {
	Date       string  `json:"date"`
	Zone       string  `json:"zone"`
	Index      float64 `json:"index"`
	AnomalyPct float64 `json:"anomaly_pct"`
	ZScore     float64 `json:"z_score"`
	Tier       string  `json:"tier"`
	Decision   string  `json:"decision"`
}

func (m *Module) onZoneRecorded(ctx context.Context, event plugin.Event) {
	if !m.active() {
		return
	}

	rec, ok := event.Payload.(watch.ZoneRecordedEvent)
	if !ok {
		m.logger.Warn("unexpected payload type on zone recorded event",
			zap.String("topic", event.Topic))
		return
	}

	if err := m.post(ctx, row{
		Date:       rec.Day,
		Zone:       rec.Zone,
		Index:      rec.Index,
		AnomalyPct: rec.AnomalyPct,
		ZScore:     rec.ZScore,
		Tier:       rec.Tier,
		Decision:   rec.Decision,
	}); err != nil {
		m.logger.Warn("sheets delivery failed",
			zap.String("zone", rec.Zone),
			zap.String("day", rec.Day),
			zap.Error(err),
		)
	}
}

func (m *Module) post(ctx context.Context, r row) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding row: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting row: %w", err)
	}
	defer resp.Body.Close()

	// Apps Script endpoints answer 200 or a 302 to a result page.
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}
