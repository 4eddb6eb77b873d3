package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cropsight/cropsight/pkg/plugin"
)

func tempDB(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New(%q): %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_creates_database(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNew_invalid_path(t *testing.T) {
	_, err := New("/nonexistent/path/to/db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestTx_commit(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	_, err := s.DB().ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)")
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	err = s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO test (id, name) VALUES (1, 'mclean')")
		return err
	})
	if err != nil {
		t.Fatalf("Tx commit: %v", err)
	}

	var name string
	err = s.DB().QueryRowContext(ctx, "SELECT name FROM test WHERE id = 1").Scan(&name)
	if err != nil {
		t.Fatalf("query after commit: %v", err)
	}
	if name != "mclean" {
		t.Errorf("got name %q, want %q", name, "mclean")
	}
}

func TestTx_rollback(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	_, err := s.DB().ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)")
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	err = s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO test (id, name) VALUES (1, 'story')")
		if err != nil {
			return err
		}
		return sql.ErrNoRows // Simulate an error to trigger rollback
	})
	if err != sql.ErrNoRows {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}

	var count int
	err = s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM test").Scan(&count)
	if err != nil {
		t.Fatalf("count after rollback: %v", err)
	}
	if count != 0 {
		t.Errorf("got count %d after rollback, want 0", count)
	}
}

func TestMigrate_applies_in_order(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	migrations := []plugin.Migration{
		{
			Version:     1,
			Description: "create history table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("CREATE TABLE watch_history (id INTEGER PRIMARY KEY, zone TEXT)")
				return err
			},
		},
		{
			Version:     2,
			Description: "add index column",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("ALTER TABLE watch_history ADD COLUMN index_value REAL")
				return err
			},
		},
	}

	if err := s.Migrate(ctx, "watch", migrations); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	// Both migrations applied: the column from version 2 must exist.
	_, err := s.DB().ExecContext(ctx,
		"INSERT INTO watch_history (id, zone, index_value) VALUES (1, 'McLean, IL', 0.65)")
	if err != nil {
		t.Fatalf("insert after migrations: %v", err)
	}
}

func TestMigrate_skips_applied(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	calls := 0
	migrations := []plugin.Migration{
		{
			Version:     1,
			Description: "create table",
			Up: func(tx *sql.Tx) error {
				calls++
				_, err := tx.Exec("CREATE TABLE once (id INTEGER PRIMARY KEY)")
				return err
			},
		},
	}

	if err := s.Migrate(ctx, "watch", migrations); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if err := s.Migrate(ctx, "watch", migrations); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if calls != 1 {
		t.Errorf("migration Up called %d times, want 1", calls)
	}
}

func TestMigrate_rolls_back_failed_migration(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	migrations := []plugin.Migration{
		{
			Version:     1,
			Description: "failing migration",
			Up: func(tx *sql.Tx) error {
				if _, err := tx.Exec("CREATE TABLE half_done (id INTEGER PRIMARY KEY)"); err != nil {
					return err
				}
				return boom
			},
		},
	}

	err := s.Migrate(ctx, "watch", migrations)
	if !errors.Is(err, boom) {
		t.Fatalf("Migrate error = %v, want %v", err, boom)
	}

	// The table created inside the failed migration must not persist.
	var count int
	err = s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'half_done'",
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Error("failed migration left table behind")
	}
}

func TestCheckVersion_first_run_records_version(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	if err := s.CheckVersion(ctx, "0.3.0"); err != nil {
		t.Fatalf("CheckVersion first run: %v", err)
	}

	var stored string
	err := s.DB().QueryRowContext(ctx, "SELECT app_version FROM _schema_meta WHERE id = 1").Scan(&stored)
	if err != nil {
		t.Fatalf("query schema meta: %v", err)
	}
	if stored != "0.3.0" {
		t.Errorf("stored version = %q, want %q", stored, "0.3.0")
	}
}

func TestCheckVersion_rejects_older_binary(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	if err := s.CheckVersion(ctx, "0.4.0"); err != nil {
		t.Fatalf("CheckVersion: %v", err)
	}

	err := s.CheckVersion(ctx, "0.3.0")
	if !errors.Is(err, ErrNewerSchema) {
		t.Errorf("CheckVersion error = %v, want ErrNewerSchema", err)
	}
}

func TestCheckVersion_dev_always_passes(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	if err := s.CheckVersion(ctx, "0.4.0"); err != nil {
		t.Fatalf("CheckVersion: %v", err)
	}
	if err := s.CheckVersion(ctx, "dev"); err != nil {
		t.Errorf("CheckVersion(dev) error = %v, want nil", err)
	}
}
