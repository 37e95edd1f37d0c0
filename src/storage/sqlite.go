package storage

import (
	"database/sql"
	"fmt"
	"time"

	"multisig-observer/src/logger"
	"multisig-observer/src/models"

	"github.com/juju/clock"
	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
	Clock  clock.Clock
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
		Clock:  clock.WallClock,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	// modernc sqlite serialises writers anyway
	db.SetMaxOpenConns(1)
	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) createTables() error {
	// at is stored as unix milliseconds
	query := `
		CREATE TABLE IF NOT EXISTS stream_transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			watch TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			reason TEXT,
			at INTEGER NOT NULL
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create stream_transitions: %w", err)
	}

	query = `CREATE INDEX IF NOT EXISTS idx_stream_transitions_watch_at ON stream_transitions (watch, at);`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to index stream_transitions: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveTransitions(records []models.MTransitionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO stream_transitions (watch, from_state, to_state, reason, at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.Watch, r.FromState, r.ToState, r.Reason, r.At.UTC().UnixMilli()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) RecentTransitions(watch string, limit int) ([]models.MTransitionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.DB.Query(`
		SELECT watch, from_state, to_state, COALESCE(reason, ''), at
		FROM stream_transitions
		WHERE watch = ?
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, watch, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.MTransitionRecord{}
	for rows.Next() {
		var r models.MTransitionRecord
		var at int64
		if err := rows.Scan(&r.Watch, &r.FromState, &r.ToState, &r.Reason, &at); err != nil {
			return nil, err
		}
		r.At = time.UnixMilli(at).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) CleanupOldData() error {
	retentionDays := d.Config.Storage.RetentionDays
	if retentionDays <= 0 {
		return nil
	}
	cutoff := d.Clock.Now().UTC().AddDate(0, 0, -retentionDays).UnixMilli()

	res, err := d.DB.Exec("DELETE FROM stream_transitions WHERE at < ?", cutoff)
	if err != nil {
		d.Logger.Error("Cleanup stream_transitions error: %v", err)
		return err
	}

	removed, _ := res.RowsAffected()
	d.Logger.Info("Cleanup completed: %d transitions older than %d days removed", removed, retentionDays)
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
