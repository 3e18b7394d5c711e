package projects

import "time"

// Project is a tenant-scoped job the agent keeps a running summary of.
//
// Mutation rules:
// - Summary and NextStep are written only by the updater pipeline.
// - NextCheckDate advances via set_future_reminder actions and the
//   reminder sweep (LastActionCheck is the sweep's claim marker).

type Project struct {
	ID        string `json:"id" db:"id"`
	CompanyID string `json:"company_id" db:"company_id"`
	TrackID   string `json:"track_id" db:"track_id"`

	Name    string `json:"name" db:"name"`
	Address string `json:"address,omitempty" db:"address"`

	Summary  string `json:"summary" db:"summary"`
	NextStep string `json:"next_step,omitempty" db:"next_step"`

	Status ProjectStatus `json:"status" db:"status"`

	NextCheckDate   *time.Time `json:"next_check_date,omitempty" db:"next_check_date"`
	LastActionCheck *time.Time `json:"last_action_check,omitempty" db:"last_action_check"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type ProjectStatus string

const (
	StatusOpen   ProjectStatus = "open"
	StatusClosed ProjectStatus = "closed"
)

// Track carries the per-workflow prompt context fed to the decision engine:
// participant roles, the base prompt, and per-milestone instructions.
type Track struct {
	ID         string `json:"id" db:"id"`
	CompanyID  string `json:"company_id" db:"company_id"`
	Name       string `json:"name" db:"name"`
	BasePrompt string `json:"base_prompt" db:"base_prompt"`

	// Roles maps a role name ("homeowner", "adjuster") to its description.
	Roles map[string]string `json:"roles" db:"roles"`

	// MilestoneInstructions are ordered stage-specific directives.
	MilestoneInstructions []string `json:"milestone_instructions" db:"milestone_instructions"`
}

// Contact is a company-scoped person the agent can message or attribute
// communications to.
type Contact struct {
	ID        string `json:"id" db:"id"`
	CompanyID string `json:"company_id" db:"company_id"`
	ProjectID string `json:"project_id,omitempty" db:"project_id"`

	Name  string `json:"name" db:"name"`
	Role  string `json:"role,omitempty" db:"role"`
	Phone string `json:"phone,omitempty" db:"phone"`
	Email string `json:"email,omitempty" db:"email"`
}

// Fingerprint is the compact per-project identity handed to the decision
// engine during disambiguation.
type Fingerprint struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	Summary   string `json:"summary"`
	NextStep  string `json:"next_step,omitempty"`
}

// Fingerprint builds the disambiguation identity for a project, truncating
// the summary so a large project history cannot blow the prompt budget.
func (p Project) Fingerprint() Fingerprint {
	const maxSummary = 500
	summary := p.Summary
	if len(summary) > maxSummary {
		summary = summary[:maxSummary] + "..."
	}
	return Fingerprint{
		ProjectID: p.ID,
		Name:      p.Name,
		Address:   p.Address,
		Summary:   summary,
		NextStep:  p.NextStep,
	}
}
