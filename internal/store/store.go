// Package store keeps the dump history in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/topy/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for dump runs.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Dumps are recorded from worker goroutines.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dumps (
			id INTEGER PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			target TEXT NOT NULL,
			format TEXT NOT NULL,
			source TEXT NOT NULL,
			users INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			message TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_dumps_started_at ON dumps(started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_dumps_target ON dumps(target);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertDump records a finished dump run.
func (s *Store) InsertDump(ctx context.Context, run model.DumpRun) (int64, error) {
	ok := 0
	if run.OK {
		ok = 1
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dumps (started_at, ended_at, target, format, source, users, ok, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC().Format(timeLayout),
		run.EndedAt.UTC().Format(timeLayout),
		run.Target,
		run.Format,
		string(run.Trigger),
		run.Users,
		ok,
		run.Message,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LastDump returns the most recent run, optionally restricted to a trigger.
// It returns nil when nothing was recorded.
func (s *Store) LastDump(ctx context.Context, trigger model.DumpTrigger) (*model.DumpRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, ended_at, target, format, source, users, ok, message
		 FROM dumps
		 WHERE (? = '' OR source = ?)
		 ORDER BY started_at DESC, id DESC
		 LIMIT 1`, string(trigger), string(trigger))
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListDumps returns runs in chronological order. Last keeps only the most
// recent N matching runs.
func (s *Store) ListDumps(ctx context.Context, filter model.HistoryFilter) ([]model.DumpRun, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Target != "" {
		clauses = append(clauses, "target = ?")
		args = append(args, filter.Target)
	}
	if filter.Since != nil {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	if filter.Failed {
		clauses = append(clauses, "ok = 0")
	}
	limit := -1
	if filter.Last > 0 {
		limit = filter.Last
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT * FROM (
		SELECT id, started_at, ended_at, target, format, source, users, ok, message
		FROM dumps
		WHERE %s
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	) ORDER BY started_at ASC, id ASC`, strings.Join(clauses, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var runs []model.DumpRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Prune deletes all but the keep most recent runs and returns how many went.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must be >= 0")
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dumps WHERE id NOT IN (
			SELECT id FROM dumps ORDER BY started_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (model.DumpRun, error) {
	var run model.DumpRun
	var startedAt, endedAt, trigger string
	var ok int
	if err := sc.Scan(&run.ID, &startedAt, &endedAt, &run.Target, &run.Format, &trigger, &run.Users, &ok, &run.Message); err != nil {
		return model.DumpRun{}, err
	}
	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return model.DumpRun{}, err
	}
	if run.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
		return model.DumpRun{}, err
	}
	run.Trigger = model.DumpTrigger(trigger)
	run.OK = ok != 0
	return run, nil
}
