package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"peerscan/internal/domain"

	_ "modernc.org/sqlite"
)

// DefaultListLimit applies when ListRuns is called with a non-positive limit
const DefaultListLimit = 50

// Repository implements repository.RunRepository using SQLite
type Repository struct {
	db   *sql.DB
	log  zerolog.Logger
	keep int
}

// New creates a new SQLite repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db, log: zerolog.Nop()}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

// WithRetention makes ObserveRun keep only the newest keep runs; 0 keeps all
func (r *Repository) WithRetention(keep int) *Repository {
	r.keep = keep
	return r
}

// WithLogger sets the logger used by ObserveRun
func (r *Repository) WithLogger(log zerolog.Logger) *Repository {
	r.log = log.With().Str("component", "runs").Logger()
	return r
}

func (r *Repository) migrate() error {
	schema := `
	PRAGMA busy_timeout = 5000;
	PRAGMA journal_mode = WAL;

	CREATE TABLE IF NOT EXISTS scan_runs (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		candidates INTEGER NOT NULL DEFAULT 0,
		reachable INTEGER NOT NULL DEFAULT 0,
		verified INTEGER NOT NULL DEFAULT 0,
		matched INTEGER NOT NULL DEFAULT 0,
		prefix TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// RecordRun stores a run summary
func (r *Repository) RecordRun(ctx context.Context, run domain.RunSummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scan_runs (id, operation, started_at, duration_ns, candidates, reachable, verified, matched, prefix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.Operation), run.StartedAt.UnixNano(), int64(run.Duration),
		run.Candidates, run.Reachable, run.Verified, run.Matched, stringToNull(run.Prefix))
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the newest runs first
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, operation, started_at, duration_ns, candidates, reachable, verified, matched, prefix
		FROM scan_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.RunSummary{}
	for rows.Next() {
		var (
			run        domain.RunSummary
			op         string
			startedAt  int64
			durationNs int64
			prefix     sql.NullString
		)
		if err := rows.Scan(&run.ID, &op, &startedAt, &durationNs,
			&run.Candidates, &run.Reachable, &run.Verified, &run.Matched, &prefix); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Operation = domain.Operation(op)
		run.StartedAt = time.Unix(0, startedAt)
		run.Duration = time.Duration(durationNs)
		run.Prefix = nullToString(prefix)
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Prune deletes all but the newest keep runs and returns how many were removed
func (r *Repository) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM scan_runs
		WHERE rowid NOT IN (
			SELECT rowid FROM scan_runs ORDER BY started_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

// ObserveRun records run and logs failures; discovery never fails on history
func (r *Repository) ObserveRun(ctx context.Context, run domain.RunSummary) {
	if err := r.RecordRun(ctx, run); err != nil {
		r.log.Warn().Err(err).Str("run", run.ID).Msg("Failed to record scan run")
		return
	}
	if r.keep <= 0 {
		return
	}
	if removed, err := r.Prune(ctx, r.keep); err != nil {
		r.log.Warn().Err(err).Msg("Failed to prune scan runs")
	} else if removed > 0 {
		r.log.Debug().Msgf("Pruned %d old scan runs", removed)
	}
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
