package projects

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("projects: not found")
	ErrInvalidArgument = errors.New("projects: invalid argument")
)

// Store reads and mutates projects, tracks and contacts.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

const projectColumns = `
id, company_id, track_id, name, COALESCE(address, ''), COALESCE(summary, ''),
COALESCE(next_step, ''), status, next_check_date, last_action_check, created_at, updated_at
`

func (s *Store) GetByID(ctx context.Context, id string) (Project, error) {
	if id == "" {
		return Project{}, ErrInvalidArgument
	}
	q := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	return scanProject(s.db.QueryRowContext(ctx, q, id))
}

// ListOpenByCompany returns the bounded set of open projects used for
// disambiguation and multi-project classification.
func (s *Store) ListOpenByCompany(ctx context.Context, companyID string) ([]Project, error) {
	if companyID == "" {
		return nil, ErrInvalidArgument
	}
	q := `SELECT ` + projectColumns + ` FROM projects WHERE company_id = $1 AND status = 'open' ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, q, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindOpenByContactPhone matches open projects through the contact directory.
// Used by the dispatcher to attribute an inbound communication.
func (s *Store) FindOpenByContactPhone(ctx context.Context, companyID, phone string) ([]Project, error) {
	if companyID == "" || phone == "" {
		return nil, ErrInvalidArgument
	}
	q := `
SELECT DISTINCT ` + projectColumns + `
FROM projects
WHERE company_id = $1 AND status = 'open'
  AND id IN (SELECT project_id FROM contacts WHERE company_id = $1 AND phone = $2 AND project_id IS NOT NULL)
`
	rows, err := s.db.QueryContext(ctx, q, companyID, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateSummary persists the stage-1 pipeline output.
func (s *Store) UpdateSummary(ctx context.Context, id, summary, nextStep string) error {
	if id == "" || summary == "" {
		return ErrInvalidArgument
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE projects SET summary = $2, next_step = $3, updated_at = $4 WHERE id = $1
`, id, summary, nextStep, s.clock().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

// AdvanceNextCheck moves the reminder horizon forward. Only forward moves
// are applied when a check is already scheduled sooner by another action.
func (s *Store) AdvanceNextCheck(ctx context.Context, id string, next time.Time) error {
	if id == "" || next.IsZero() {
		return ErrInvalidArgument
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE projects SET next_check_date = $2, updated_at = $3 WHERE id = $1
`, id, next.UTC(), s.clock().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ClaimDueForCheck claims projects due for a reminder check. The claim sets
// last_action_check = now and only matches rows not yet claimed today, so
// overlapping sweeps cannot double-process a project.
func (s *Store) ClaimDueForCheck(ctx context.Context, now time.Time, limit int) ([]Project, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `
UPDATE projects
SET last_action_check = $1, updated_at = $1
WHERE id IN (
  SELECT id FROM projects
  WHERE status = 'open'
    AND next_check_date IS NOT NULL AND next_check_date <= $1
    AND (last_action_check IS NULL OR last_action_check < next_check_date)
  ORDER BY next_check_date ASC
  LIMIT $2
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + projectColumns
	rows, err := s.db.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetTrack(ctx context.Context, id string) (Track, error) {
	if id == "" {
		return Track{}, ErrInvalidArgument
	}
	const q = `
SELECT id, company_id, name, COALESCE(base_prompt, ''), COALESCE(roles, '{}'), COALESCE(milestone_instructions, '[]')
FROM tracks
WHERE id = $1
`
	var t Track
	var roles, milestones []byte
	err := s.db.QueryRowContext(ctx, q, id).Scan(&t.ID, &t.CompanyID, &t.Name, &t.BasePrompt, &roles, &milestones)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Track{}, ErrNotFound
		}
		return Track{}, err
	}
	if err := json.Unmarshal(roles, &t.Roles); err != nil {
		return Track{}, err
	}
	if err := json.Unmarshal(milestones, &t.MilestoneInstructions); err != nil {
		return Track{}, err
	}
	return t, nil
}

// ListContacts returns the contacts visible to a project: its own contacts
// plus company-level contacts not attached to any project.
func (s *Store) ListContacts(ctx context.Context, companyID, projectID string) ([]Contact, error) {
	if companyID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT id, company_id, COALESCE(project_id, ''), name, COALESCE(role, ''), COALESCE(phone, ''), COALESCE(email, '')
FROM contacts
WHERE company_id = $1 AND (project_id = $2 OR project_id IS NULL)
ORDER BY name ASC
`
	rows, err := s.db.QueryContext(ctx, q, companyID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.ProjectID, &c.Name, &c.Role, &c.Phone, &c.Email); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanProject(r interface{ Scan(...any) error }) (Project, error) {
	var p Project
	err := r.Scan(
		&p.ID, &p.CompanyID, &p.TrackID, &p.Name, &p.Address, &p.Summary,
		&p.NextStep, &p.Status, &p.NextCheckDate, &p.LastActionCheck,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, err
	}
	return p, nil
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
