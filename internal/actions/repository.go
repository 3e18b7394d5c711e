package actions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// NOTE: This repository assumes the following tables exist:
// - action_records
// - projects (next_check_date advanced by reminder actions)
//
// Status transitions are guarded in SQL (WHERE status = 'pending') so a
// terminal record can never move again, even under concurrent callers.

func insertAction(ctx context.Context, tx *sql.Tx, rec ActionRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO action_records
  (id, prompt_run_id, project_id, action_type, action_payload, requires_approval,
   status, recipient_id, sender_id, executed_at, execution_result, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),NULLIF($9,''),$10,NULLIF($11,''),$12)
`
	_, err = tx.ExecContext(ctx, q,
		rec.ID, rec.PromptRunID, rec.ProjectID, rec.Type, payload, rec.RequiresApproval,
		rec.Status, rec.RecipientID, rec.SenderID, rec.ExecutedAt, rec.ExecutionResult, rec.CreatedAt,
	)
	return err
}

func advanceProjectNextCheck(ctx context.Context, tx *sql.Tx, projectID string, next time.Time, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
UPDATE projects SET next_check_date = $2, updated_at = $3 WHERE id = $1
`, projectID, next, now)
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

const actionColumns = `
id, prompt_run_id, project_id, action_type, action_payload, requires_approval,
status, COALESCE(recipient_id, ''), COALESCE(sender_id, ''), executed_at,
COALESCE(execution_result, ''), created_at
`

func getAction(ctx context.Context, db *sql.DB, id string) (ActionRecord, error) {
	q := `SELECT ` + actionColumns + ` FROM action_records WHERE id = $1`
	return scanAction(db.QueryRowContext(ctx, q, id))
}

func listActionsByProject(ctx context.Context, db *sql.DB, projectID string, status Status, limit int) ([]ActionRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	q := `SELECT ` + actionColumns + ` FROM action_records WHERE project_id = $1`
	args := []any{projectID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, status)
	}
	args = append(args, limit)
	q += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		rec, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// finishAction moves pending -> executed|failed. Returns ErrNotPending when
// the record is missing or already terminal.
func finishAction(ctx context.Context, db *sql.DB, id string, status Status, result string, at time.Time) error {
	const q = `
UPDATE action_records
SET status = $2, execution_result = NULLIF($3, ''), executed_at = $4
WHERE id = $1 AND status = 'pending'
`
	res, err := db.ExecContext(ctx, q, id, status, result, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

func scanAction(r interface{ Scan(...any) error }) (ActionRecord, error) {
	var rec ActionRecord
	var payload []byte
	err := r.Scan(
		&rec.ID, &rec.PromptRunID, &rec.ProjectID, &rec.Type, &payload, &rec.RequiresApproval,
		&rec.Status, &rec.RecipientID, &rec.SenderID, &rec.ExecutedAt, &rec.ExecutionResult, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ActionRecord{}, ErrNotFound
		}
		return ActionRecord{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return ActionRecord{}, err
		}
	}
	return rec, nil
}
