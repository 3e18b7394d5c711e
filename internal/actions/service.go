package actions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"comms-platform/internal/projects"
	"comms-platform/pkg/utils"
)

var (
	ErrNotFound         = errors.New("actions: not found")
	ErrInvalidArgument  = errors.New("actions: invalid argument")
	ErrNotPending       = errors.New("actions: record is not pending")
	ErrApprovalRequired = errors.New("actions: approval required before execution")
)

// Messenger sends an outbound message through the telephony/SMS provider.
// The provider itself is a black box: content in, provider message id out.
type Messenger interface {
	Send(ctx context.Context, companyID, contactID, content string) (string, error)
}

// CRMWriter applies data updates to the external CRM.
type CRMWriter interface {
	UpdateProjectField(ctx context.Context, companyID, projectID, field string, value any) error
}

// Service owns the action-record state machine.
type Service struct {
	db        *sql.DB
	projects  *projects.Store
	messenger Messenger
	crm       CRMWriter
	clock     func() time.Time
}

func NewService(db *sql.DB, projectStore *projects.Store, messenger Messenger, crm CRMWriter) *Service {
	return &Service{
		db:        db,
		projects:  projectStore,
		messenger: messenger,
		crm:       crm,
		clock:     time.Now,
	}
}

// CreateInput is one proposed action from the decision engine.
type CreateInput struct {
	PromptRunID string
	ProjectID   string
	Type        ActionType
	Payload     map[string]any
}

// Create validates and persists a proposed action.
//
// Side effects by type:
// - message: recipient/sender resolved to contact ids before insertion.
// - set_future_reminder: advances project.next_check_date in the same
//   transaction and the record is created already executed.
// Failed validation creates no row.
func (s *Service) Create(ctx context.Context, in CreateInput) (ActionRecord, error) {
	if in.PromptRunID == "" || in.ProjectID == "" {
		return ActionRecord{}, ErrInvalidArgument
	}
	if !ValidType(in.Type) {
		return ActionRecord{}, &ValidationError{Field: "action_type", Reason: fmt.Sprintf("unknown type %q", in.Type)}
	}
	if err := validatePayload(in.Type, in.Payload); err != nil {
		return ActionRecord{}, err
	}

	now := s.clock().UTC()
	rec := ActionRecord{
		ID:               uuid.NewString(),
		PromptRunID:      in.PromptRunID,
		ProjectID:        in.ProjectID,
		Type:             in.Type,
		Payload:          in.Payload,
		RequiresApproval: requiresApproval(in.Type),
		Status:           StatusPending,
		CreatedAt:        now,
	}

	if in.Type == TypeMessage {
		if err := s.resolveParties(ctx, &rec); err != nil {
			return ActionRecord{}, err
		}
	}

	if in.Type == TypeSetFutureReminder {
		days, _ := requireNumber(in.Payload, "days_until_check")
		next := now.AddDate(0, 0, int(days))
		rec.Status = StatusExecuted
		rec.ExecutedAt = &now
		rec.ExecutionResult = fmt.Sprintf("next_check_date advanced to %s", next.Format(time.RFC3339))

		err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
			if err := insertAction(ctx, tx, rec); err != nil {
				return err
			}
			return advanceProjectNextCheck(ctx, tx, rec.ProjectID, next, now)
		})
		if err != nil {
			return ActionRecord{}, err
		}
		return rec, nil
	}

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return insertAction(ctx, tx, rec)
	})
	if err != nil {
		return ActionRecord{}, err
	}
	return rec, nil
}

// resolveParties maps the payload's recipient (and optional sender) names to
// contact ids. An unresolvable recipient rejects the action: a message with
// no deliverable target must not reach the approval queue.
func (s *Service) resolveParties(ctx context.Context, rec *ActionRecord) error {
	project, err := s.projects.GetByID(ctx, rec.ProjectID)
	if err != nil {
		return err
	}
	contacts, err := s.projects.ListContacts(ctx, project.CompanyID, project.ID)
	if err != nil {
		return err
	}

	recipient := payloadString(rec.Payload, "recipient")
	rec.RecipientID = resolveContact(contacts, recipient)
	if rec.RecipientID == "" {
		return &ValidationError{Field: "recipient", Reason: fmt.Sprintf("no contact matches %q", recipient)}
	}

	if sender := payloadString(rec.Payload, "sender"); sender != "" {
		rec.SenderID = resolveContact(contacts, sender)
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id string) (ActionRecord, error) {
	if id == "" {
		return ActionRecord{}, ErrInvalidArgument
	}
	return getAction(ctx, s.db, id)
}

func (s *Service) ListByProject(ctx context.Context, projectID string, status Status, limit int) ([]ActionRecord, error) {
	if projectID == "" {
		return nil, ErrInvalidArgument
	}
	return listActionsByProject(ctx, s.db, projectID, status, limit)
}

// Approve supplies the external approval signal and executes the record.
func (s *Service) Approve(ctx context.Context, id string) (ActionRecord, error) {
	rec, err := s.GetByID(ctx, id)
	if err != nil {
		return ActionRecord{}, err
	}
	if rec.Status != StatusPending {
		return ActionRecord{}, ErrNotPending
	}
	return s.execute(ctx, rec)
}

// Execute runs a pending record that does not need approval. Approval-gated
// records must go through Approve.
func (s *Service) Execute(ctx context.Context, id string) (ActionRecord, error) {
	rec, err := s.GetByID(ctx, id)
	if err != nil {
		return ActionRecord{}, err
	}
	if rec.Status != StatusPending {
		return ActionRecord{}, ErrNotPending
	}
	if rec.RequiresApproval {
		return ActionRecord{}, ErrApprovalRequired
	}
	return s.execute(ctx, rec)
}

func (s *Service) execute(ctx context.Context, rec ActionRecord) (ActionRecord, error) {
	now := s.clock().UTC()
	result, execErr := s.performAction(ctx, rec)

	status := StatusExecuted
	if execErr != nil {
		status = StatusFailed
		result = execErr.Error()
	}
	if err := finishAction(ctx, s.db, rec.ID, status, result, now); err != nil {
		return ActionRecord{}, err
	}

	rec.Status = status
	rec.ExecutedAt = &now
	rec.ExecutionResult = result
	if execErr != nil {
		// The failure is recorded terminally; callers see it via status.
		return rec, nil
	}
	return rec, nil
}

func (s *Service) performAction(ctx context.Context, rec ActionRecord) (string, error) {
	switch rec.Type {
	case TypeMessage:
		if s.messenger == nil {
			return "", errors.New("messenger not configured")
		}
		project, err := s.projects.GetByID(ctx, rec.ProjectID)
		if err != nil {
			return "", err
		}
		msgID, err := s.messenger.Send(ctx, project.CompanyID, rec.RecipientID, payloadString(rec.Payload, "message_content"))
		if err != nil {
			return "", fmt.Errorf("send message: %w", err)
		}
		return "provider_message_id=" + msgID, nil

	case TypeDataUpdate:
		if s.crm == nil {
			return "", errors.New("crm writer not configured")
		}
		project, err := s.projects.GetByID(ctx, rec.ProjectID)
		if err != nil {
			return "", err
		}
		field := payloadString(rec.Payload, "field")
		if err := s.crm.UpdateProjectField(ctx, project.CompanyID, project.ID, field, rec.Payload["value"]); err != nil {
			return "", fmt.Errorf("crm update: %w", err)
		}
		return "updated field " + field, nil

	case TypeEscalation, TypeHumanInLoop, TypeNoAction:
		// Record-only types: execution is the acknowledgment itself.
		return "acknowledged", nil

	default:
		return "", fmt.Errorf("unexecutable action type %q", rec.Type)
	}
}
