package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"multisig-observer/src/logger"
	"multisig-observer/src/models"

	"github.com/juju/clock"
	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
	Clock  clock.Clock
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	// Schema is named after the executable
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresDB{
		Config: cfg,
		Schema: sanitizeIdentifier(name),
		Logger: log,
		Clock:  clock.WallClock,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."stream_transitions" (
			id BIGSERIAL PRIMARY KEY,
			watch TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			reason TEXT,
			at TIMESTAMPTZ NOT NULL
		);
	`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create stream_transitions: %w", err)
	}

	query = fmt.Sprintf(`CREATE INDEX IF NOT EXISTS stream_transitions_watch_at ON "%s"."stream_transitions" (watch, at)`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to index stream_transitions: %w", err)
	}

	// Registered account sets (see postgres_accounts.go)
	query = fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."watch_accounts" (
			watch TEXT,
			account TEXT,
			type TEXT,
			ref_schema TEXT,
			ref_table TEXT,
			ref_field TEXT,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (watch, account)
		);
	`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create watch_accounts: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveTransitions(records []models.MTransitionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO "%s"."stream_transitions" (watch, from_state, to_state, reason, at)
		VALUES ($1, $2, $3, $4, $5)
	`, d.Schema)
	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.Watch, r.FromState, r.ToState, r.Reason, r.At.UTC()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) RecentTransitions(watch string, limit int) ([]models.MTransitionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT watch, from_state, to_state, COALESCE(reason, ''), at
		FROM "%s"."stream_transitions"
		WHERE watch = $1
		ORDER BY at DESC, id DESC
		LIMIT $2
	`, d.Schema)
	rows, err := d.DB.Query(query, watch, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.MTransitionRecord{}
	for rows.Next() {
		var r models.MTransitionRecord
		if err := rows.Scan(&r.Watch, &r.FromState, &r.ToState, &r.Reason, &r.At); err != nil {
			return nil, err
		}
		r.At = r.At.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CleanupOldData() error {
	retentionDays := d.Config.Storage.RetentionDays
	if retentionDays <= 0 {
		return nil
	}
	cutoff := d.Clock.Now().UTC().AddDate(0, 0, -retentionDays)

	d.Logger.Info("Cleaning up transitions older than %d days (before %s)...", retentionDays, cutoff.Format("2006-01-02 15:04:05"))

	if _, err := d.DB.Exec(fmt.Sprintf(`DELETE FROM "%s"."stream_transitions" WHERE at < $1`, d.Schema), cutoff); err != nil {
		d.Logger.Error("Cleanup stream_transitions error: %v", err)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------

// sanitizeIdentifier keeps letters, digits and underscores.
func sanitizeIdentifier(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "multisig_observer"
	}
	return b.String()
}
