package webhooks

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("webhooks: not found")
	ErrInvalidArgument  = errors.New("webhooks: invalid argument")
	ErrAlreadyProcessed = errors.New("webhooks: already processed")
)

// Store persists raw webhooks.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

func (s *Store) Insert(ctx context.Context, w RawWebhook) (RawWebhook, error) {
	if w.Service == "" || len(w.RawPayload) == 0 {
		return RawWebhook{}, ErrInvalidArgument
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.CreatedAt = s.clock().UTC()

	const q = `
INSERT INTO raw_webhooks (id, service, company_id, raw_payload, signature, processed, created_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, FALSE, $6)
`
	_, err := s.db.ExecContext(ctx, q, w.ID, w.Service, w.CompanyID, w.RawPayload, w.Signature, w.CreatedAt)
	if err != nil {
		return RawWebhook{}, err
	}
	return w, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (RawWebhook, error) {
	const q = `
SELECT id, service, COALESCE(company_id, ''), raw_payload, COALESCE(signature, ''),
       processed, COALESCE(processing_error, ''), created_at, processed_at
FROM raw_webhooks
WHERE id = $1
`
	var w RawWebhook
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&w.ID, &w.Service, &w.CompanyID, &w.RawPayload, &w.Signature,
		&w.Processed, &w.ProcessingError, &w.CreatedAt, &w.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RawWebhook{}, ErrNotFound
		}
		return RawWebhook{}, err
	}
	return w, nil
}

// MarkProcessed flips processed to true exactly once. A second call for the
// same row returns ErrAlreadyProcessed; re-drives must clear the flag first
// via ResetForRedrive.
func (s *Store) MarkProcessed(ctx context.Context, id, processingError string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE raw_webhooks
SET processed = TRUE, processing_error = NULLIF($2, ''), processed_at = $3
WHERE id = $1 AND processed = FALSE
`
	res, err := s.db.ExecContext(ctx, q, id, processingError, s.clock().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish missing row from double processing.
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrAlreadyProcessed
	}
	return nil
}

// ResetForRedrive re-opens a failed webhook so an operator can re-run
// normalization. Only rows that failed (processing_error set) are eligible.
func (s *Store) ResetForRedrive(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE raw_webhooks
SET processed = FALSE, processing_error = NULL, processed_at = NULL
WHERE id = $1 AND processed = TRUE AND processing_error IS NOT NULL
`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFailed returns processed webhooks that recorded a processing error,
// newest first, for operator inspection.
func (s *Store) ListFailed(ctx context.Context, limit int) ([]RawWebhook, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, service, COALESCE(company_id, ''), raw_payload, COALESCE(signature, ''),
       processed, COALESCE(processing_error, ''), created_at, processed_at
FROM raw_webhooks
WHERE processed = TRUE AND processing_error IS NOT NULL
ORDER BY created_at DESC
LIMIT $1
`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RawWebhook
	for rows.Next() {
		var w RawWebhook
		if err := rows.Scan(
			&w.ID, &w.Service, &w.CompanyID, &w.RawPayload, &w.Signature,
			&w.Processed, &w.ProcessingError, &w.CreatedAt, &w.ProcessedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
