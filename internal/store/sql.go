package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/paperreel/backend/internal/job"
)

//go:embed schema.sql
var schema string

// timeLayout is fixed width so that text comparison of stored timestamps
// matches chronological order. Values are always stored in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// applyAttempts bounds the read-validate-update loop before giving up with
// ErrConflict.
const applyAttempts = 3

// SQL is a job.Store on a relational database. Queries are written with ?
// placeholders and rebound per driver, so the same store runs on PostgreSQL
// and SQLite. Concurrent transitions are serialized optimistically: updates
// are guarded on the snapshot they were validated against and retried
// against the fresh row when the guard misses.
type SQL struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQL creates a store over an open database handle.
func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{
		db:  db,
		now: time.Now,
	}
}

// EnsureSchema creates the video_jobs table and its indexes if absent.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w: %w", job.ErrStorage, err)
	}
	return nil
}

type jobRow struct {
	JobID        string `db:"job_id"`
	PaperRef     string `db:"paper_ref"`
	Status       string `db:"status"`
	Progress     int    `db:"progress"`
	ResultURL    string `db:"result_url"`
	ErrorKind    string `db:"error_kind"`
	ErrorMessage string `db:"error_message"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func (r *jobRow) toJob() (*job.Job, error) {
	createdAt, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at %q: %w: %w", r.CreatedAt, job.ErrStorage, err)
	}
	updatedAt, err := time.Parse(timeLayout, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at %q: %w: %w", r.UpdatedAt, job.ErrStorage, err)
	}

	out := &job.Job{
		ID:        r.JobID,
		PaperRef:  r.PaperRef,
		Status:    job.Status(r.Status),
		Progress:  r.Progress,
		ResultURL: r.ResultURL,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if r.ErrorKind != "" {
		out.Error = &job.ErrorDetail{Kind: r.ErrorKind, Message: r.ErrorMessage}
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

const selectColumns = `
	job_id, paper_ref, status, progress,
	result_url, error_kind, error_message,
	created_at, updated_at
`

func (s *SQL) Create(ctx context.Context, paperRef string) (*job.Job, error) {
	now := s.now().UTC()
	created := &job.Job{
		ID:        uuid.New().String(),
		PaperRef:  paperRef,
		Status:    job.StatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := s.db.Rebind(`
		INSERT INTO video_jobs (
			job_id, paper_ref, status, progress,
			result_url, error_kind, error_message,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(
		ctx,
		query,
		created.ID,
		created.PaperRef,
		string(created.Status),
		created.Progress,
		"",
		"",
		"",
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w: %w", job.ErrStorage, err)
	}

	return created, nil
}

func (s *SQL) Get(ctx context.Context, id string) (*job.Job, error) {
	query := s.db.Rebind(`SELECT ` + selectColumns + ` FROM video_jobs WHERE job_id = ?`)

	var row jobRow
	err := s.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, job.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w: %w", job.ErrStorage, err)
	}

	return row.toJob()
}

// Apply validates ev against the latest committed row and persists the
// outcome with an update guarded on that row's status and progress. Every
// transition changes status or progress or is idempotent under rewrite, so
// the guard misses exactly when a concurrent update was serialized first;
// the event is then revalidated against the fresh row.
func (s *SQL) Apply(ctx context.Context, id string, ev job.Event) (*job.Job, error) {
	query := s.db.Rebind(`
		UPDATE video_jobs
		SET status = ?, progress = ?, result_url = ?,
		    error_kind = ?, error_message = ?, updated_at = ?
		WHERE job_id = ? AND status = ? AND progress = ?
	`)

	for attempt := 0; attempt < applyAttempts; attempt++ {
		cur, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		next, changed, err := job.Transition(cur, ev, s.now().UTC())
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", id, err)
		}
		if !changed {
			return next, nil
		}

		var errorKind, errorMessage string
		if next.Error != nil {
			errorKind = next.Error.Kind
			errorMessage = next.Error.Message
		}

		res, err := s.db.ExecContext(
			ctx,
			query,
			string(next.Status),
			next.Progress,
			next.ResultURL,
			errorKind,
			errorMessage,
			formatTime(next.UpdatedAt),
			id,
			string(cur.Status),
			cur.Progress,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to apply job event: %w: %w", job.ErrStorage, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to apply job event: %w: %w", job.ErrStorage, err)
		}
		if affected == 1 {
			return next, nil
		}
	}

	return nil, fmt.Errorf("job %s: %w", id, job.ErrConflict)
}

func (s *SQL) List(ctx context.Context, filter job.Filter) ([]job.Job, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + selectColumns + ` FROM video_jobs WHERE 1=1`)
	args := []interface{}{}

	if filter.Status != "" {
		sb.WriteString(" AND status = ?")
		args = append(args, string(filter.Status))
	}

	if filter.PaperRef != "" {
		sb.WriteString(" AND paper_ref = ?")
		args = append(args, filter.PaperRef)
	}

	if filter.Cursor != nil {
		sb.WriteString(" AND (created_at, job_id) < (?, ?)")
		args = append(args, formatTime(filter.Cursor.CreatedAt), filter.Cursor.ID)
	}

	// Newest first; job_id breaks created_at ties so pagination is stable.
	sb.WriteString(" ORDER BY created_at DESC, job_id DESC")

	pageSize := filter.PageSize
	if pageSize > 0 {
		// One extra row tells the caller whether a further page exists.
		sb.WriteString(" LIMIT ?")
		args = append(args, pageSize+1)
	}

	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(sb.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w: %w", job.ErrStorage, err)
	}

	jobs := make([]job.Job, 0, len(rows))
	for i := range rows {
		converted, err := rows[i].toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *converted)
	}

	return jobs, nil
}

func (s *SQL) CountByStatus(ctx context.Context) (map[job.Status]int, error) {
	query := `SELECT status, COUNT(*) AS total FROM video_jobs GROUP BY status`

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w: %w", job.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[job.Status]int)
	for rows.Next() {
		var status string
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w: %w", job.ErrStorage, err)
		}
		counts[job.Status(status)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w: %w", job.ErrStorage, err)
	}

	return counts, nil
}

// Ping checks the database connection.
func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
