package comms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists canonical communications.
//
// NOTE: This store assumes a communications table with participants stored
// as a JSONB column. Content is write-once: there is no update path for it.

type Store struct {
	db    *sql.DB
	clock func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

var (
	ErrNotFound        = errors.New("comms: not found")
	ErrInvalidArgument = errors.New("comms: invalid argument")
)

func (s *Store) Insert(ctx context.Context, c Communication) (Communication, error) {
	if c.CompanyID == "" || c.RawWebhookID == "" {
		return Communication{}, ErrInvalidArgument
	}
	if c.Type == "" || !ValidSubtype(c.Subtype) {
		return Communication{}, ErrInvalidArgument
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = s.clock().UTC()
	}
	c.CreatedAt = s.clock().UTC()

	parts, err := json.Marshal(c.Participants)
	if err != nil {
		return Communication{}, err
	}

	const q = `
INSERT INTO communications
  (id, company_id, type, subtype, direction, participants, timestamp, duration,
   content, recording_url, project_id, batch_id, multi_project_potential, raw_webhook_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11,''),NULLIF($12,''),$13,$14,$15)
`
	_, err = s.db.ExecContext(ctx, q,
		c.ID, c.CompanyID, c.Type, c.Subtype, c.Direction, parts, c.Timestamp,
		c.DurationSeconds, c.Content, c.RecordingURL, c.ProjectID, c.BatchID,
		c.MultiProjectPotential, c.RawWebhookID, c.CreatedAt,
	)
	if err != nil {
		return Communication{}, err
	}
	return c, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (Communication, error) {
	const q = `
SELECT id, company_id, type, subtype, direction, participants, timestamp, duration,
       content, recording_url, COALESCE(project_id, ''), COALESCE(batch_id, ''),
       multi_project_potential, raw_webhook_id, created_at
FROM communications
WHERE id = $1
`
	return scanCommunication(s.db.QueryRowContext(ctx, q, id))
}

// ListByBatch returns all member communications of a batch ordered by
// timestamp. Used both for transcript assembly and error recovery.
func (s *Store) ListByBatch(ctx context.Context, batchID string) ([]Communication, error) {
	if batchID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT id, company_id, type, subtype, direction, participants, timestamp, duration,
       content, recording_url, COALESCE(project_id, ''), COALESCE(batch_id, ''),
       multi_project_potential, raw_webhook_id, created_at
FROM communications
WHERE batch_id = $1
ORDER BY timestamp ASC
`
	rows, err := s.db.QueryContext(ctx, q, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Communication
	for rows.Next() {
		c, err := scanCommunication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AssignProject sets project_id after disambiguation. Content stays untouched.
func (s *Store) AssignProject(ctx context.Context, id, projectID string) error {
	if id == "" || projectID == "" {
		return ErrInvalidArgument
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE communications SET project_id = $2 WHERE id = $1`, id, projectID)
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

// AttachBatch links a communication to a batch.
func (s *Store) AttachBatch(ctx context.Context, id, batchID string) error {
	if id == "" || batchID == "" {
		return ErrInvalidArgument
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE communications SET batch_id = $2 WHERE id = $1`, id, batchID)
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

// Transcript concatenates the batch members into one chronological text block.
func Transcript(members []Communication) string {
	lines := make([]string, 0, len(members))
	for _, m := range members {
		lines = append(lines, m.TranscriptLine())
	}
	return strings.Join(lines, "\n")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommunication(r rowScanner) (Communication, error) {
	var c Communication
	var parts []byte
	err := r.Scan(
		&c.ID, &c.CompanyID, &c.Type, &c.Subtype, &c.Direction, &parts,
		&c.Timestamp, &c.DurationSeconds, &c.Content, &c.RecordingURL,
		&c.ProjectID, &c.BatchID, &c.MultiProjectPotential, &c.RawWebhookID, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Communication{}, ErrNotFound
		}
		return Communication{}, err
	}
	if len(parts) > 0 {
		if err := json.Unmarshal(parts, &c.Participants); err != nil {
			return Communication{}, err
		}
	}
	return c, nil
}
