package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"mcs-engine/internal/simulation"
	"mcs-engine/internal/stats"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Run kinds.
const (
	KindStandard    = "standard"
	KindDependent   = "dependent"
	KindSensitivity = "sensitivity"
)

// Run is one archived simulation.
type Run struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Expression string         `json:"expression"`
	Samples    int            `json:"samples"`
	Seed       uint64         `json:"seed,omitempty"`
	Summary    *stats.Summary `json:"summary,omitempty"`
	Scenarios  []Scenario     `json:"scenarios,omitempty"`
	Definition string         `json:"definition,omitempty"`
	CreatedAt  time.Time      `json:"created_at,omitzero"`
}

// Scenario is the summary of one sensitivity scenario.
type Scenario struct {
	Key     string        `json:"key"`
	Summary stats.Summary `json:"summary"`
}

// FromResults describes a standard simulation run.
func FromResults(r *simulation.Results, seed uint64) Run {
	summary := r.Summary()
	return Run{
		Kind:       KindStandard,
		Expression: r.Expression(),
		Samples:    r.SampleCount(),
		Seed:       seed,
		Summary:    &summary,
	}
}

// FromDependent describes a dependent simulation run.
func FromDependent(r *simulation.DependentResults, seed uint64) Run {
	summary := r.Summary()
	return Run{
		Kind:       KindDependent,
		Expression: r.Expression(),
		Samples:    r.SampleCount(),
		Seed:       seed,
		Summary:    &summary,
	}
}

// FromSensitivity describes a sensitivity sweep, one scenario per key in
// result order.
func FromSensitivity(r *simulation.SensitivityResults, seed uint64) Run {
	run := Run{
		Kind:       KindSensitivity,
		Expression: r.Expression(),
		Samples:    r.SampleCount(),
		Seed:       seed,
	}
	for _, key := range r.Keys() {
		res, _ := r.Scenario(key)
		run.Scenarios = append(run.Scenarios, Scenario{Key: key, Summary: res.Summary()})
	}
	return run
}

// timeFormat has fixed width so created_at sorts as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the SQLite run archive.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens (creating if needed) the archive at dbPath.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug().Str("path", dbPath).Msg("Run archive opened")
	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// SaveRun archives run and returns its new id. ID and CreatedAt are assigned
// here; values set by the caller are ignored.
func (s *Store) SaveRun(ctx context.Context, run Run) (string, error) {
	run.ID = uuid.NewString()
	run.CreatedAt = time.Now().UTC()

	var summary sql.NullString
	if run.Summary != nil {
		data, err := json.Marshal(run.Summary)
		if err != nil {
			return "", fmt.Errorf("failed to encode summary: %w", err)
		}
		summary = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, kind, expression, samples, seed, summary, definition, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Expression, run.Samples, int64(run.Seed), summary,
		nullString(run.Definition), run.CreatedAt.Format(timeFormat),
	); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for i, sc := range run.Scenarios {
		data, err := json.Marshal(sc.Summary)
		if err != nil {
			return "", fmt.Errorf("failed to encode scenario %q: %w", sc.Key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scenarios (run_id, position, key, summary) VALUES (?, ?, ?, ?)`,
			run.ID, i, sc.Key, string(data),
		); err != nil {
			return "", fmt.Errorf("failed to insert scenario %q: %w", sc.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	log.Debug().Str("id", run.ID).Str("kind", run.Kind).Int("scenarios", len(run.Scenarios)).Msg("Run archived")
	return run.ID, nil
}

// ListRuns returns the most recent runs first, without scenario rows or
// definitions. limit <= 0 returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, kind, expression, samples, seed, summary, created_at FROM runs ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run     Run
			seed    int64
			summary sql.NullString
			created string
		)
		if err := rows.Scan(&run.ID, &run.Kind, &run.Expression, &run.Samples, &seed, &summary, &created); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := decodeRun(&run, seed, summary, created); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns a run with its scenarios and definition.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var (
		run        Run
		seed       int64
		summary    sql.NullString
		definition sql.NullString
		created    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, expression, samples, seed, summary, definition, created_at FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Kind, &run.Expression, &run.Samples, &seed, &summary, &definition, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	if err := decodeRun(&run, seed, summary, created); err != nil {
		return nil, err
	}
	run.Definition = definition.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, summary FROM scenarios WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sc   Scenario
			data string
		)
		if err := rows.Scan(&sc.Key, &data); err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &sc.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode scenario %q: %w", sc.Key, err)
		}
		run.Scenarios = append(run.Scenarios, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &run, nil
}

// DeleteRun removes a run and its scenarios.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func decodeRun(run *Run, seed int64, summary sql.NullString, created string) error {
	run.Seed = uint64(seed)
	if summary.Valid {
		run.Summary = &stats.Summary{}
		if err := json.Unmarshal([]byte(summary.String), run.Summary); err != nil {
			return fmt.Errorf("failed to decode summary of run %s: %w", run.ID, err)
		}
	}
	t, err := time.Parse(timeFormat, created)
	if err != nil {
		return fmt.Errorf("failed to parse created_at of run %s: %w", run.ID, err)
	}
	run.CreatedAt = t
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
