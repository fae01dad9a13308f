// Package storage exports the result of one analysis run to a SQLite database so it
// can be inspected with external tools. Each export replaces the previous one; the
// analyzer never reads the database back.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/olegiv/meterlog-analyzer-go/internal/analyzer"
	"github.com/olegiv/meterlog-analyzer-go/internal/report"
)

// Storage handles database operations
type Storage struct {
	db *sql.DB
}

// Database configuration constants
const (
	// busyTimeoutMs is how long SQLite waits when database is locked (5 seconds)
	busyTimeoutMs = 5000
	// maxOpenConns limits concurrent connections (SQLite works best with 1)
	maxOpenConns = 1
	maxIdleConns = 1
	// connMaxLifetime is how long a connection can be reused
	connMaxLifetime = 30 * time.Minute
)

const dateLayout = "2006-01-02"

// exportTables lists the tables cleared before every export, children first.
var exportTables = []string{"outliers", "daily_energy", "field_stats", "file_diagnostics", "runs"}

// New opens (or creates) the export database at dbPath and migrates its schema.
func New(dbPath string) (*Storage, error) {
	// 0700: owner only
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d", dbPath, busyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// currentSchemaVersion is the latest schema version.
// Increment this when adding new migrations.
const currentSchemaVersion = 2

// initSchema creates the schema_version table and runs pending migrations.
func (s *Storage) initSchema() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	if err := s.migrateSchema(s.getSchemaVersion()); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// getSchemaVersion returns the current schema version (0 if not set)
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

func (s *Storage) setSchemaVersion(version int) error {
	if _, err := s.db.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return err
	}
	return nil
}

// migrateSchema runs migrations from currentVersion to latest
func (s *Storage) migrateSchema(currentVersion int) error {
	if currentVersion >= currentSchemaVersion {
		return nil
	}

	log.Printf("storage: migrating schema from version %d to %d", currentVersion, currentSchemaVersion)

	// Migration 0 -> 1: run, statistics and daily tables
	if currentVersion < 1 {
		if err := s.migrateV1(); err != nil {
			return fmt.Errorf("migration v1 failed: %w", err)
		}
	}

	// Migration 1 -> 2: AI review columns on runs
	if currentVersion < 2 {
		if err := s.migrateV2(); err != nil {
			return fmt.Errorf("migration v2 failed: %w", err)
		}
	}

	if err := s.setSchemaVersion(currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	log.Printf("storage: schema migration completed successfully (now at version %d)", currentSchemaVersion)
	return nil
}

func (s *Storage) migrateV1() error {
	log.Printf("storage: running migration v1 - create export tables")

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		generated_at TEXT NOT NULL,
		directory TEXT NOT NULL,
		records INTEGER NOT NULL,
		period_start TEXT,
		period_end TEXT,
		files_loaded INTEGER NOT NULL,
		files_rejected INTEGER NOT NULL,
		total_kwh REAL NOT NULL DEFAULT 0.0,
		outlier_total INTEGER NOT NULL DEFAULT 0,
		counter_resets INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS file_diagnostics (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		file TEXT NOT NULL,
		file_date TEXT,
		records INTEGER NOT NULL DEFAULT 0,
		lines INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS field_stats (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		field TEXT NOT NULL,
		count INTEGER NOT NULL,
		mean REAL, std REAL, min REAL, q1 REAL, median REAL, q3 REAL, max REAL,
		iqr REAL, lower_bound REAL, upper_bound REAL,
		outliers INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, field)
	);

	CREATE TABLE IF NOT EXISTS daily_energy (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		date TEXT NOT NULL,
		kwh REAL NOT NULL,
		energy_min_raw REAL,
		energy_max_raw REAL,
		samples INTEGER NOT NULL,
		counter_resets INTEGER NOT NULL DEFAULT 0,
		generated_kwh REAL NOT NULL DEFAULT 0.0,
		PRIMARY KEY (run_id, date)
	);

	CREATE TABLE IF NOT EXISTS outliers (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		field TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		value REAL NOT NULL,
		source TEXT,
		line INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_outliers_field ON outliers(run_id, field);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) migrateV2() error {
	log.Printf("storage: running migration v2 - add review columns")

	hasReview, err := s.hasColumn("runs", "review_status")
	if err != nil {
		return err
	}
	if hasReview {
		return nil
	}

	if _, err := s.db.Exec(`ALTER TABLE runs ADD COLUMN review_status TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("failed to add review_status column: %w", err)
	}
	if _, err := s.db.Exec(`ALTER TABLE runs ADD COLUMN review TEXT`); err != nil {
		return fmt.Errorf("failed to add review column: %w", err)
	}

	return nil
}

// hasColumn reports whether table has a column called name.
func (s *Storage) hasColumn(table, name string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to get table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var cid int
		var colName, colType string
		var notNull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("failed to scan column info: %w", err)
		}
		if colName == name {
			return true, nil
		}
	}

	return false, rows.Err()
}

// ExportRun replaces the database contents with r. Everything is written in one
// transaction; on error the previous export is left intact.
func (s *Storage) ExportRun(ctx context.Context, r *report.Report) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range exportTables {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err = insertRun(ctx, tx, r); err != nil {
		return err
	}
	if err = insertFiles(ctx, tx, r); err != nil {
		return err
	}
	if err = insertFieldStats(ctx, tx, r); err != nil {
		return err
	}
	if err = insertDaily(ctx, tx, r); err != nil {
		return err
	}
	if err = insertOutliers(ctx, tx, r); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export: %w", err)
	}
	return nil
}

func insertRun(ctx context.Context, tx *sql.Tx, r *report.Report) error {
	var start, end any
	if r.Records > 0 {
		start = r.Start.Format(time.RFC3339)
		end = r.End.Format(time.RFC3339)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, generated_at, directory, records, period_start, period_end,
			files_loaded, files_rejected, total_kwh, outlier_total, counter_resets
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID,
		r.GeneratedAt.Format(time.RFC3339),
		r.Directory,
		r.Records,
		start,
		end,
		len(r.Accepted),
		len(r.Rejected),
		r.TotalKWh(),
		r.OutlierTotal(),
		r.CounterResets(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func insertFiles(ctx context.Context, tx *sql.Tx, r *report.Report) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO file_diagnostics (run_id, file, file_date, records, lines, skipped, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare file insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	files := append(append([]report.FileDiagnostic{}, r.Accepted...), r.Rejected...)
	for _, f := range files {
		var date, errText any
		if !f.Date.IsZero() {
			date = f.Date.Format(dateLayout)
		}
		if f.Error != "" {
			errText = f.Error
		}
		if _, err := stmt.ExecContext(ctx, r.RunID, f.File, date, f.Records, f.Lines, f.Skipped, errText); err != nil {
			return fmt.Errorf("failed to insert file %s: %w", f.File, err)
		}
	}
	return nil
}

func insertFieldStats(ctx context.Context, tx *sql.Tx, r *report.Report) error {
	bounds := make(map[string]report.OutlierSection, len(r.Outliers))
	for _, o := range r.Outliers {
		bounds[string(o.Field)] = o
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO field_stats (
			run_id, field, count, mean, std, min, q1, median, q3, max,
			iqr, lower_bound, upper_bound, outliers
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare field stats insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, sm := range r.Summaries {
		o := bounds[string(sm.Field)]
		if _, err := stmt.ExecContext(ctx,
			r.RunID, string(sm.Field), sm.Count,
			sm.Mean, stdValue(sm), sm.Min, sm.Q1, sm.Q2, sm.Q3, sm.Max,
			o.Bounds.IQR, o.Bounds.Lower, o.Bounds.Upper, o.Total,
		); err != nil {
			return fmt.Errorf("failed to insert stats for %s: %w", sm.Field, err)
		}
	}
	return nil
}

func insertDaily(ctx context.Context, tx *sql.Tx, r *report.Report) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_energy (
			run_id, date, kwh, energy_min_raw, energy_max_raw, samples, counter_resets, generated_kwh
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare daily insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range r.Daily {
		if _, err := stmt.ExecContext(ctx,
			r.RunID, d.Date.Format(dateLayout), d.KWhEstimate,
			nullable(d.EnergyMinRaw), nullable(d.EnergyMaxRaw),
			d.Samples, d.CounterResets, d.GeneratedKWhEstimate,
		); err != nil {
			return fmt.Errorf("failed to insert daily energy for %s: %w", d.Date.Format(dateLayout), err)
		}
	}
	return nil
}

// insertOutliers stores the previewed outliers; the full count is in field_stats.
func insertOutliers(ctx context.Context, tx *sql.Tx, r *report.Report) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outliers (run_id, field, timestamp, value, source, line)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare outlier insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, section := range r.Outliers {
		for _, p := range section.Preview {
			if _, err := stmt.ExecContext(ctx,
				r.RunID, string(section.Field), p.Timestamp.Format(time.RFC3339), p.Value, p.Source, p.Line,
			); err != nil {
				return fmt.Errorf("failed to insert outlier: %w", err)
			}
		}
	}
	return nil
}

// SaveReview attaches an AI review to an exported run. review is stored as JSON.
func (s *Storage) SaveReview(ctx context.Context, runID, status string, review any) error {
	payload, err := json.Marshal(review)
	if err != nil {
		return fmt.Errorf("failed to marshal review: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET review_status = ?, review = ? WHERE run_id = ?`,
		status, string(payload), runID)
	if err != nil {
		return fmt.Errorf("failed to save review: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s not found", runID)
	}

	return nil
}

// GetStatistics returns the row count of every export table.
func (s *Storage) GetStatistics() (map[string]int, error) {
	stats := make(map[string]int, len(exportTables))
	for _, table := range exportTables {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}

// stdValue stores an undefined standard deviation as NULL
func stdValue(sm analyzer.Summary) any {
	if !sm.HasStd() {
		return nil
	}
	return sm.Std
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
