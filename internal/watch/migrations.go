package watch

import (
	"database/sql"

	"github.com/cropsight/cropsight/pkg/plugin"
)

// Migrations returns the watch module's schema migrations.
func Migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create watch_history table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE watch_history (
						id          INTEGER PRIMARY KEY AUTOINCREMENT,
						day         TEXT NOT NULL,
						zone        TEXT NOT NULL,
						index_value REAL NOT NULL,
						anomaly_pct REAL NOT NULL,
						z_score     REAL NOT NULL,
						created_at  TEXT NOT NULL DEFAULT (datetime('now')),
						UNIQUE(zone, day)
					);
					CREATE INDEX idx_watch_history_zone_day
						ON watch_history(zone, day);
				`)
				return err
			},
		},
		{
			Version:     2,
			Description: "create watch_alert_state table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE watch_alert_state (
						zone           TEXT PRIMARY KEY,
						last_alert_day TEXT NOT NULL
					);
				`)
				return err
			},
		},
		{
			Version:     3,
			Description: "create watch_alerts log table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE watch_alerts (
						id          TEXT PRIMARY KEY,
						zone        TEXT NOT NULL DEFAULT '',
						day         TEXT NOT NULL,
						kind        TEXT NOT NULL,
						message     TEXT NOT NULL,
						anomaly_pct REAL NOT NULL DEFAULT 0,
						z_score     REAL NOT NULL DEFAULT 0,
						score       REAL NOT NULL DEFAULT 0,
						created_at  TEXT NOT NULL DEFAULT (datetime('now'))
					);
					CREATE INDEX idx_watch_alerts_day ON watch_alerts(day);
				`)
				return err
			},
		},
	}
}
