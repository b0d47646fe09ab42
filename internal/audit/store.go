package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/calibration"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("audit: not found")

// Outcome is a ground-truth label attached to a target after the fact.
type Outcome struct {
	ID        string            `json:"id"`
	ChainID   int64             `json:"chain_id"`
	Target    string            `json:"target"`
	Label     calibration.Label `json:"label"`
	Source    string            `json:"source,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store is the SQLite-backed audit trail.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) audit.db under dataDir and runs migrations.
func OpenStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return open(filepath.Join(dataDir, "audit.db"))
}

func open(dbPath string) (*Store, error) {
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// single writer; WAL lets readers proceed
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("Audit store initialized", "path", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS scans (
			id TEXT PRIMARY KEY,
			scan_type TEXT NOT NULL,
			chain_id INTEGER NOT NULL,
			target TEXT NOT NULL,
			from_address TEXT,
			probability REAL NOT NULL,
			risk_level TEXT NOT NULL,
			archetype TEXT NOT NULL,
			confidence REAL NOT NULL,
			decision TEXT NOT NULL,
			policy_mode TEXT,
			policy_override TEXT,
			critical_flags TEXT,
			failed_analyzers TEXT,
			category_scores TEXT,
			created_at DATETIME NOT NULL
		)`,

		// one label per target; relabelling replaces it
		`CREATE TABLE IF NOT EXISTS outcomes (
			id TEXT PRIMARY KEY,
			chain_id INTEGER NOT NULL,
			target TEXT NOT NULL,
			label TEXT NOT NULL,
			source TEXT,
			created_at DATETIME NOT NULL,
			UNIQUE(chain_id, target)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_scans_target ON scans(chain_id, target, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_created ON scans(created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// Record implements Recorder.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	flags, err := json.Marshal(nonNil(e.CriticalFlags))
	if err != nil {
		return fmt.Errorf("failed to encode flags: %w", err)
	}
	failed, err := json.Marshal(nonNil(e.FailedAnalyzers))
	if err != nil {
		return fmt.Errorf("failed to encode failed analyzers: %w", err)
	}
	scores, err := json.Marshal(e.CategoryScores)
	if err != nil {
		return fmt.Errorf("failed to encode category scores: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scans (
			id, scan_type, chain_id, target, from_address, probability, risk_level,
			archetype, confidence, decision, policy_mode, policy_override,
			critical_flags, failed_analyzers, category_scores, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ScanType, e.ChainID, normalize(e.Target), normalize(e.From), e.Probability,
		string(e.RiskLevel), string(e.Archetype), e.Confidence, e.Decision, e.PolicyMode,
		e.PolicyOverride, string(flags), string(failed), string(scores), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}
	return nil
}

// Get returns the entry with id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectScans+` WHERE id = ?`, id)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to query scan: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNotFound
	}
	return entries[0], nil
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectScans+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	return scanEntries(rows)
}

// RecordOutcome labels a target. The target must have been scanned before.
func (s *Store) RecordOutcome(ctx context.Context, o Outcome) (Outcome, error) {
	if _, err := calibration.ParseLabel(string(o.Label)); err != nil {
		return Outcome{}, err
	}
	o.Target = normalize(o.Target)

	var seen int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM scans WHERE chain_id = ? AND target = ?`, o.ChainID, o.Target,
	).Scan(&seen)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to look up scans: %w", err)
	}
	if seen == 0 {
		return Outcome{}, fmt.Errorf("%w: no scan for %s on chain %d", ErrNotFound, o.Target, o.ChainID)
	}

	o.ID = uuid.New().String()
	o.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outcomes (id, chain_id, target, label, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chain_id, target) DO UPDATE SET
			label = excluded.label,
			source = excluded.source,
			created_at = excluded.created_at
	`, o.ID, o.ChainID, o.Target, string(o.Label), o.Source, o.CreatedAt)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to record outcome: %w", err)
	}
	return o, nil
}

// LabeledSamples pairs every labeled target with the probability of its most
// recent scan. An empty scanType matches all scan types.
func (s *Store) LabeledSamples(ctx context.Context, scanType string) ([]calibration.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.probability, o.label
		FROM outcomes o
		JOIN scans s ON s.id = (
			SELECT id FROM scans
			WHERE chain_id = o.chain_id AND target = o.target AND (? = '' OR scan_type = ?)
			ORDER BY created_at DESC
			LIMIT 1
		)
		ORDER BY o.created_at
	`, scanType, scanType)
	if err != nil {
		return nil, fmt.Errorf("failed to query labeled samples: %w", err)
	}
	defer rows.Close()

	var samples []calibration.Sample
	for rows.Next() {
		var sample calibration.Sample
		var label string
		if err := rows.Scan(&sample.Score, &label); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		sample.Label = calibration.Label(label)
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetPoolStats returns database connection pool statistics
func (s *Store) GetPoolStats() map[string]interface{} {
	stats := s.db.Stats()
	return map[string]interface{}{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
		"wait_duration_ms": stats.WaitDuration.Milliseconds(),
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

const selectScans = `
	SELECT id, scan_type, chain_id, target, from_address, probability, risk_level,
		archetype, confidence, decision, policy_mode, policy_override,
		critical_flags, failed_analyzers, category_scores, created_at
	FROM scans`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var from, mode, override, flags, failed, scores sql.NullString
		var level, archetype string
		if err := rows.Scan(&e.ID, &e.ScanType, &e.ChainID, &e.Target, &from, &e.Probability,
			&level, &archetype, &e.Confidence, &e.Decision, &mode, &override,
			&flags, &failed, &scores, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		e.From = from.String
		e.RiskLevel = risk.RiskLevel(level)
		e.Archetype = risk.Archetype(archetype)
		e.PolicyMode = mode.String
		e.PolicyOverride = override.String
		if err := decodeColumn(flags, &e.CriticalFlags); err != nil {
			return nil, err
		}
		if err := decodeColumn(failed, &e.FailedAnalyzers); err != nil {
			return nil, err
		}
		if err := decodeColumn(scores, &e.CategoryScores); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func decodeColumn(col sql.NullString, v any) error {
	if !col.Valid || col.String == "" || col.String == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), v); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
