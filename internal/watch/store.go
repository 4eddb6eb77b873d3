package watch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cropsight/cropsight/pkg/plugin"
)

// ErrDuplicateRecord reports an append for a (zone, day) pair that is
// already recorded. Benign under overlapping passes: the first writer
// wins and the observation is identical by construction.
var ErrDuplicateRecord = errors.New("observation already recorded for zone and day")

// DayFormat is the canonical day key used across tables and exports.
const DayFormat = "2006-01-02"

// Record is one stored observation.
type Record struct {
	Day        string  `json:"day"`
	Zone       string  `json:"zone"`
	Index      float64 `json:"index_value"`
	AnomalyPct float64 `json:"anomaly_pct"`
	ZScore     float64 `json:"z_score"`
}

// Alert is one row of the alert log.
type Alert struct {
	ID         string  `json:"id"`
	Zone       string  `json:"zone,omitempty"`
	Day        string  `json:"day"`
	Kind       string  `json:"kind"`
	Message    string  `json:"message"`
	AnomalyPct float64 `json:"anomaly_pct"`
	ZScore     float64 `json:"z_score"`
	Score      float64 `json:"score"`
	CreatedAt  string  `json:"created_at"`
}

// Alert kinds.
const (
	AlertKindZone      = "zone"
	AlertKindForced    = "forced"
	AlertKindAggregate = "aggregate"
	AlertKindTest      = "test"
)

// Store wraps the shared database for the watch module's tables.
type Store struct {
	db plugin.Store
}

// NewStore creates a store over the shared database.
func NewStore(db plugin.Store) *Store {
	return &Store{db: db}
}

// AppendRecord inserts one observation. Appends are durable once this
// returns; a (zone, day) collision maps to ErrDuplicateRecord.
func (s *Store) AppendRecord(ctx context.Context, rec Record) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO watch_history (day, zone, index_value, anomaly_pct, z_score)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Day, rec.Zone, rec.Index, rec.AnomalyPct, rec.ZScore,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: zone %s day %s", ErrDuplicateRecord, rec.Zone, rec.Day)
		}
		return fmt.Errorf("appending record: %w", err)
	}
	return nil
}

// HistoryValues returns a zone's index values in chronological order,
// excluding the given day so the current observation never skews its
// own baseline.
func (s *Store) HistoryValues(ctx context.Context, zone, beforeDay string) ([]float64, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT index_value FROM watch_history
		WHERE zone = ? AND day < ?
		ORDER BY day ASC`,
		zone, beforeDay,
	)
	if err != nil {
		return nil, fmt.Errorf("loading history for %s: %w", zone, err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning history for %s: %w", zone, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// ExportRows returns all observations ordered by day then zone.
func (s *Store) ExportRows(ctx context.Context) ([]Record, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT day, zone, index_value, anomaly_pct, z_score
		FROM watch_history
		ORDER BY day ASC, zone ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("exporting history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Day, &r.Zone, &r.Index, &r.AnomalyPct, &r.ZScore); err != nil {
			return nil, fmt.Errorf("scanning export row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastAlertDay returns the zone's most recent alert day, if any.
func (s *Store) LastAlertDay(ctx context.Context, zone string) (string, bool, error) {
	var day string
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT last_alert_day FROM watch_alert_state WHERE zone = ?`, zone,
	).Scan(&day)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading alert state for %s: %w", zone, err)
	}
	return day, true, nil
}

// AdvanceAlertDay moves the zone's last-alert marker from the observed
// value to day, compare-and-set style. Returns false without error when
// another pass advanced the marker first; the caller must then skip its
// own notification.
func (s *Store) AdvanceAlertDay(ctx context.Context, zone, observed, day string) (bool, error) {
	var res sql.Result
	var err error

	if observed == "" {
		res, err = s.db.DB().ExecContext(ctx, `
			INSERT INTO watch_alert_state (zone, last_alert_day)
			VALUES (?, ?)
			ON CONFLICT(zone) DO NOTHING`,
			zone, day,
		)
	} else {
		res, err = s.db.DB().ExecContext(ctx, `
			UPDATE watch_alert_state
			SET last_alert_day = ?
			WHERE zone = ? AND last_alert_day = ?`,
			day, zone, observed,
		)
	}
	if err != nil {
		return false, fmt.Errorf("advancing alert day for %s: %w", zone, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advancing alert day for %s: %w", zone, err)
	}
	return n == 1, nil
}

// InsertAlert appends one row to the alert log.
func (s *Store) InsertAlert(ctx context.Context, a Alert) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO watch_alerts (id, zone, day, kind, message, anomaly_pct, z_score, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Zone, a.Day, a.Kind, a.Message, a.AnomalyPct, a.ZScore, a.Score,
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}
	return nil
}

// RecentAlerts returns the newest alerts first, up to limit.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, zone, day, kind, message, anomaly_pct, z_score, score, created_at
		FROM watch_alerts
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("loading alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.Zone, &a.Day, &a.Kind, &a.Message,
			&a.AnomalyPct, &a.ZScore, &a.Score, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning alert row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
