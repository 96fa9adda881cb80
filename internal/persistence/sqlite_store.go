package persistence

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/conveyor/pkg/api"
)

// SQLiteRunStore is a RunStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteRunStore struct {
	db *sql.DB
}

// Ensure SQLiteRunStore implements RunStore.
var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore initializes the required schema in the given
// database and returns a new SQLiteRunStore.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			event TEXT NOT NULL,
			status TEXT NOT NULL,
			instances BLOB,
			started_at INTEGER NOT NULL DEFAULT 0,
			finished_at INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow, started_at);`,
	)
	return err
}

func (s *SQLiteRunStore) SaveRun(run *api.Run) error {
	instances, err := EncodeInstances(run.Instances)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (id, workflow, event, status, instances, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Workflow,
		run.Event,
		string(run.Status),
		instances,
		unixOrZero(run.StartedAt),
		unixOrZero(run.FinishedAt),
	)
	return err
}

func (s *SQLiteRunStore) UpdateRun(run *api.Run) error {
	instances, err := EncodeInstances(run.Instances)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE runs
		SET workflow = ?, event = ?, status = ?, instances = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
		run.Workflow,
		run.Event,
		string(run.Status),
		instances,
		unixOrZero(run.StartedAt),
		unixOrZero(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}

	return nil
}

func (s *SQLiteRunStore) GetRun(id string) (*api.Run, error) {
	row := s.db.QueryRow(`
		SELECT id, workflow, event, status, instances, started_at, finished_at
		FROM runs
		WHERE id = ?`,
		id,
	)

	run, err := scanRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *SQLiteRunStore) ListRuns(filter RunFilter) ([]*api.Run, error) {
	query := `
		SELECT id, workflow, event, status, instances, started_at, finished_at
		FROM runs`
	var args []any
	var clauses []string

	if filter.Workflow != "" {
		clauses = append(clauses, "workflow = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
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

func scanRun(scan func(dest ...any) error) (*api.Run, error) {
	var run api.Run
	var statusStr string
	var instances []byte
	var startedAt, finishedAt int64

	if err := scan(&run.ID, &run.Workflow, &run.Event, &statusStr, &instances, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	run.Status = api.Status(statusStr)
	if startedAt != 0 {
		run.StartedAt = time.Unix(0, startedAt)
	}
	if finishedAt != 0 {
		run.FinishedAt = time.Unix(0, finishedAt)
	}

	decoded, err := DecodeInstances(instances)
	if err != nil {
		return nil, err
	}
	run.Instances = decoded

	return &run, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
