package actions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

// The execute paths (WithTx, finishAction) use Postgres-specific SQL and are
// covered by integration tests. What is safe to unit-test without a DB is
// the synchronous rejection surface of Create: every invalid input must be
// refused before any row could be written.

func TestCreateRejectsMissingIdentifiers(t *testing.T) {
	svc := NewService((*sql.DB)(nil), nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{ProjectID: "p", Type: TypeNoAction})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for missing prompt run, got %v", err)
	}

	_, err = svc.Create(context.Background(), CreateInput{PromptRunID: "r", Type: TypeNoAction})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for missing project, got %v", err)
	}
}

func TestCreateRejectsUnknownType(t *testing.T) {
	svc := NewService((*sql.DB)(nil), nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{PromptRunID: "r", ProjectID: "p", Type: "launch_rocket"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "action_type" {
		t.Fatalf("expected action_type validation error, got %v", err)
	}
}

func TestCreateRejectsInvalidPayloadBeforePersisting(t *testing.T) {
	svc := NewService((*sql.DB)(nil), nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		PromptRunID: "r",
		ProjectID:   "p",
		Type:        TypeMessage,
		Payload:     map[string]any{"recipient": "homeowner"},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "message_content" {
		t.Fatalf("expected message_content validation error, got %v", err)
	}
}

func TestGetByIDRejectsEmptyID(t *testing.T) {
	svc := NewService((*sql.DB)(nil), nil, nil, nil)
	if _, err := svc.GetByID(context.Background(), ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.ListByProject(context.Background(), "", "", 10); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
