package batch

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound        = errors.New("batch: not found")
	ErrInvalidArgument = errors.New("batch: invalid argument")
)

// Store persists batch statuses.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

const batchColumns = `id, project_id, batch_status, scheduled_processing_time, processed_at, created_at`

// ActiveForProject returns the project's open debounce window, if any. Only
// in_progress counts: once a sweep claims the batch its members are fixed,
// and a later arrival must open a fresh window.
func (s *Store) ActiveForProject(ctx context.Context, projectID string) (BatchStatus, bool, error) {
	if projectID == "" {
		return BatchStatus{}, false, ErrInvalidArgument
	}
	q := `
SELECT ` + batchColumns + `
FROM batch_statuses
WHERE project_id = $1 AND batch_status = 'in_progress'
`
	b, err := scanBatch(s.db.QueryRowContext(ctx, q, projectID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return BatchStatus{}, false, nil
		}
		return BatchStatus{}, false, err
	}
	return b, true, nil
}

// Create opens a new debounce window for the project. The partial unique
// index on (project_id) WHERE batch_status = 'in_progress' makes a
// concurrent duplicate surface as ErrActiveExists; callers should re-read
// and attach instead. A claimed (processing) batch does not hold the slot.
var ErrActiveExists = errors.New("batch: active batch already exists for project")

func (s *Store) Create(ctx context.Context, projectID string, scheduledAt time.Time) (BatchStatus, error) {
	if projectID == "" || scheduledAt.IsZero() {
		return BatchStatus{}, ErrInvalidArgument
	}
	b := BatchStatus{
		ID:                      uuid.NewString(),
		ProjectID:               projectID,
		Status:                  StateInProgress,
		ScheduledProcessingTime: scheduledAt.UTC(),
		CreatedAt:               s.clock().UTC(),
	}
	const q = `
INSERT INTO batch_statuses (id, project_id, batch_status, scheduled_processing_time, created_at)
VALUES ($1, $2, $3, $4, $5)
`
	_, err := s.db.ExecContext(ctx, q, b.ID, b.ProjectID, b.Status, b.ScheduledProcessingTime, b.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return BatchStatus{}, ErrActiveExists
		}
		return BatchStatus{}, err
	}
	return b, nil
}

// ClaimDue atomically claims due in_progress batches by flipping them to
// processing. SKIP LOCKED plus the status guard makes overlapping sweeps
// each claim a disjoint set; a batch already processing is never returned.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]BatchStatus, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `
UPDATE batch_statuses
SET batch_status = 'processing'
WHERE id IN (
  SELECT id FROM batch_statuses
  WHERE batch_status = 'in_progress' AND scheduled_processing_time <= $1
  ORDER BY scheduled_processing_time ASC
  LIMIT $2
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + batchColumns
	rows, err := s.db.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BatchStatus
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	return s.finish(ctx, id, StateCompleted)
}

func (s *Store) MarkError(ctx context.Context, id string) error {
	return s.finish(ctx, id, StateError)
}

func (s *Store) finish(ctx context.Context, id string, state State) error {
	if id == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE batch_statuses
SET batch_status = $2, processed_at = $3
WHERE id = $1 AND batch_status = 'processing'
`
	res, err := s.db.ExecContext(ctx, q, id, state, s.clock().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Requeue returns a claimed batch to in_progress with a pushed-out schedule,
// used when the decision engine is saturated and the batch should be retried
// by a later sweep instead of failing terminally.
func (s *Store) Requeue(ctx context.Context, id string, scheduledAt time.Time) error {
	if id == "" || scheduledAt.IsZero() {
		return ErrInvalidArgument
	}
	const q = `
UPDATE batch_statuses
SET batch_status = 'in_progress', scheduled_processing_time = $2
WHERE id = $1 AND batch_status = 'processing'
`
	res, err := s.db.ExecContext(ctx, q, id, scheduledAt.UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanBatch(r interface{ Scan(...any) error }) (BatchStatus, error) {
	var b BatchStatus
	err := r.Scan(&b.ID, &b.ProjectID, &b.Status, &b.ScheduledProcessingTime, &b.ProcessedAt, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BatchStatus{}, ErrNotFound
		}
		return BatchStatus{}, err
	}
	return b, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
