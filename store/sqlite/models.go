package sqlite

import (
	"database/sql"
	"time"

	"github.com/queueworks/forq/job"
)

// jobColumns is the canonical column list every job query selects, in
// scan order.
const jobColumns = "id, command, state, attempts, max_retries, last_error, worker_id, available_at, created_at, updated_at"

// jobRow mirrors the forq_jobs table. Timestamps are stored as unix
// milliseconds so comparisons in SQL never depend on string formats.
type jobRow struct {
	ID          string
	Command     string
	State       string
	Attempts    int
	MaxRetries  int
	LastError   string
	WorkerID    string
	AvailableAt int64
	CreatedAt   int64
	UpdatedAt   int64
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*job.Job, error) {
	var m jobRow
	err := r.Scan(
		&m.ID, &m.Command, &m.State, &m.Attempts, &m.MaxRetries,
		&m.LastError, &m.WorkerID, &m.AvailableAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m.toJob(), nil
}

func scanJobs(rows *sql.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (m *jobRow) toJob() *job.Job {
	return &job.Job{
		ID:          m.ID,
		Command:     m.Command,
		State:       job.State(m.State),
		Attempts:    m.Attempts,
		MaxRetries:  m.MaxRetries,
		LastError:   m.LastError,
		WorkerID:    m.WorkerID,
		AvailableAt: fromMillis(m.AvailableAt),
		CreatedAt:   fromMillis(m.CreatedAt),
		UpdatedAt:   fromMillis(m.UpdatedAt),
	}
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
