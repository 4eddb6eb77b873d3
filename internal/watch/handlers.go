package watch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cropsight/cropsight/internal/server"
	"github.com/cropsight/cropsight/pkg/plugin"
	"go.uber.org/zap"
)

// Routes exposes the module's HTTP surface, mounted under /api/v1/watch.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/run", Handler: m.handleRun},
		{Method: "POST", Path: "/test", Handler: m.handleTest},
		{Method: "GET", Path: "/history", Handler: m.handleHistoryCSV},
		{Method: "GET", Path: "/history.json", Handler: m.handleHistoryJSON},
		{Method: "GET", Path: "/alerts", Handler: m.handleAlerts},
		{Method: "GET", Path: "/status", Handler: m.handleStatus},
	}
}

// handleRun triggers a pass synchronously and returns its result.
// ?force=true runs the forced path: every zone alerts, explicitly
// labeled, bypassing the gate and the suppression window.
func (m *Module) handleRun(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			server.BadRequest(w, fmt.Sprintf("invalid force value %q", raw), r.URL.Path)
			return
		}
		force = parsed
	}

	trigger := "http"
	if force {
		trigger = "forced"
	}

	result := m.runner.RunPass(r.Context(), force, trigger)
	m.setLastPass(result)

	writeJSON(w, http.StatusOK, result)
}

// handleTest sends a diagnostic message through the notifier.
func (m *Module) handleTest(w http.ResponseWriter, r *http.Request) {
	if err := m.runner.SendTest(r.Context()); err != nil {
		m.logger.Error("test message delivery failed", zap.Error(err))
		server.InternalError(w, "test message delivery failed: "+err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleHistoryCSV streams the full observation history as CSV.
func (m *Module) handleHistoryCSV(w http.ResponseWriter, r *http.Request) {
	records, err := m.store.ExportRows(r.Context())
	if err != nil {
		m.logger.Error("history export failed", zap.Error(err))
		server.InternalError(w, "history export failed", r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="cropsight_history.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"date", "zone", "index_value", "anomaly_pct", "z_score", "tier"})
	for _, rec := range records {
		tier := ""
		if z, ok := m.zones.Get(rec.Zone); ok {
			tier = z.Tier()
		}
		_ = cw.Write([]string{
			rec.Day,
			rec.Zone,
			strconv.FormatFloat(rec.Index, 'f', -1, 64),
			strconv.FormatFloat(rec.AnomalyPct, 'f', 2, 64),
			strconv.FormatFloat(rec.ZScore, 'f', 2, 64),
			tier,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		m.logger.Error("history CSV write failed", zap.Error(err))
	}
}

// handleHistoryJSON returns the full observation history as JSON.
func (m *Module) handleHistoryJSON(w http.ResponseWriter, r *http.Request) {
	records, err := m.store.ExportRows(r.Context())
	if err != nil {
		m.logger.Error("history export failed", zap.Error(err))
		server.InternalError(w, "history export failed", r.URL.Path)
		return
	}
	if records == nil {
		records = []Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleAlerts returns the most recent alert log entries.
func (m *Module) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 50, 500)
	if err != nil {
		server.BadRequest(w, err.Error(), r.URL.Path)
		return
	}

	alerts, err := m.store.RecentAlerts(r.Context(), limit)
	if err != nil {
		m.logger.Error("alert log load failed", zap.Error(err))
		server.InternalError(w, "alert log load failed", r.URL.Path)
		return
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// StatusResponse is the response for GET /status.
type StatusResponse struct {
	Zones       int         `json:"zones"`
	TotalWeight float64     `json:"total_weight"`
	Provider    string      `json:"provider"`
	Notifier    string      `json:"notifier"`
	LastPass    *PassResult `json:"last_pass,omitempty"`
}

// handleStatus reports module configuration and the last pass summary.
func (m *Module) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Zones:       m.zones.Len(),
		TotalWeight: m.zones.TotalWeight(),
		Provider:    m.runner.provider.Name(),
		Notifier:    m.runner.notifier.Name(),
		LastPass:    m.lastPass(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseLimit reads ?limit= with a default and an upper bound.
func parseLimit(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if n > max {
		n = max
	}
	return n, nil
}
