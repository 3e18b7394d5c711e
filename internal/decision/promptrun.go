package decision

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PromptRun is the append-only audit record of one engine invocation.
// Every action record references the run that produced it.
//
// Rows are never updated after reaching a terminal status; no Delete is
// provided.

type PromptRun struct {
	ID        string `json:"id" db:"id"`
	ProjectID string `json:"project_id,omitempty" db:"project_id"`

	WorkflowPromptID string `json:"workflow_prompt_id" db:"workflow_prompt_id"`

	PromptInput  string `json:"prompt_input" db:"prompt_input"`
	PromptOutput string `json:"prompt_output,omitempty" db:"prompt_output"`

	Status       RunStatus `json:"status" db:"status"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`

	AIProvider string `json:"ai_provider" db:"ai_provider"`
	AIModel    string `json:"ai_model" db:"ai_model"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusError     RunStatus = "ERROR"
)

var ErrRunNotFound = errors.New("decision: prompt run not found")

// RunStore persists prompt runs.
type RunStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db, clock: time.Now}
}

func (s *RunStore) Begin(ctx context.Context, projectID, workflowPromptID, promptInput string, model ModelConfig) (PromptRun, error) {
	run := PromptRun{
		ID:               uuid.NewString(),
		ProjectID:        projectID,
		WorkflowPromptID: workflowPromptID,
		PromptInput:      promptInput,
		Status:           RunStatusRunning,
		AIProvider:       model.Provider,
		AIModel:          model.Model,
		CreatedAt:        s.clock().UTC(),
	}
	const q = `
INSERT INTO prompt_runs (id, project_id, workflow_prompt_id, prompt_input, status, ai_provider, ai_model, created_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
`
	_, err := s.db.ExecContext(ctx, q,
		run.ID, run.ProjectID, run.WorkflowPromptID, run.PromptInput,
		run.Status, run.AIProvider, run.AIModel, run.CreatedAt,
	)
	if err != nil {
		return PromptRun{}, err
	}
	return run, nil
}

func (s *RunStore) Complete(ctx context.Context, id, promptOutput string) error {
	return s.finish(ctx, id, RunStatusCompleted, promptOutput, "")
}

func (s *RunStore) Fail(ctx context.Context, id, errorMessage string) error {
	return s.finish(ctx, id, RunStatusError, "", errorMessage)
}

func (s *RunStore) finish(ctx context.Context, id string, status RunStatus, output, errMsg string) error {
	const q = `
UPDATE prompt_runs
SET status = $2, prompt_output = NULLIF($3, ''), error_message = NULLIF($4, ''), completed_at = $5
WHERE id = $1 AND status = 'RUNNING'
`
	res, err := s.db.ExecContext(ctx, q, id, status, output, errMsg, s.clock().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// ListByProject returns the audit trail for a project, newest first.
func (s *RunStore) ListByProject(ctx context.Context, projectID string, limit int) ([]PromptRun, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, COALESCE(project_id, ''), workflow_prompt_id, prompt_input,
       COALESCE(prompt_output, ''), status, COALESCE(error_message, ''),
       ai_provider, ai_model, created_at, completed_at
FROM prompt_runs
WHERE project_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := s.db.QueryContext(ctx, q, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PromptRun
	for rows.Next() {
		var r PromptRun
		if err := rows.Scan(
			&r.ID, &r.ProjectID, &r.WorkflowPromptID, &r.PromptInput,
			&r.PromptOutput, &r.Status, &r.ErrorMessage,
			&r.AIProvider, &r.AIModel, &r.CreatedAt, &r.CompletedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
