package actions

import "time"

// ActionRecord is one proposed or executed semi-autonomous action.
//
// State machine: pending (initial) -> executed | failed (terminal).
// Status only moves forward; there is no transition out of a terminal state.
//
// Invariants:
// - Every record references the PromptRun that produced it.
// - requires_approval=true blocks the executed transition until an
//   explicit approval signal arrives.
// - set_future_reminder records auto-execute at creation time.

type ActionRecord struct {
	ID          string `json:"id" db:"id"`
	PromptRunID string `json:"prompt_run_id" db:"prompt_run_id"`
	ProjectID   string `json:"project_id" db:"project_id"`

	Type    ActionType     `json:"action_type" db:"action_type"`
	Payload map[string]any `json:"action_payload" db:"action_payload"`

	RequiresApproval bool   `json:"requires_approval" db:"requires_approval"`
	Status           Status `json:"status" db:"status"`

	RecipientID string `json:"recipient_id,omitempty" db:"recipient_id"`
	SenderID    string `json:"sender_id,omitempty" db:"sender_id"`

	ExecutedAt      *time.Time `json:"executed_at,omitempty" db:"executed_at"`
	ExecutionResult string     `json:"execution_result,omitempty" db:"execution_result"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type ActionType string

const (
	TypeMessage           ActionType = "message"
	TypeSetFutureReminder ActionType = "set_future_reminder"
	TypeDataUpdate        ActionType = "data_update"
	TypeEscalation        ActionType = "escalation"
	TypeHumanInLoop       ActionType = "human_in_loop"
	TypeNoAction          ActionType = "no_action"
)

func ValidType(t ActionType) bool {
	switch t {
	case TypeMessage, TypeSetFutureReminder, TypeDataUpdate, TypeEscalation, TypeHumanInLoop, TypeNoAction:
		return true
	default:
		return false
	}
}

// requiresApproval reports whether a type needs an external approval signal
// before execution. Reminders and no-ops are safe to run unattended.
func requiresApproval(t ActionType) bool {
	switch t {
	case TypeSetFutureReminder, TypeNoAction:
		return false
	default:
		return true
	}
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
)
