package actions

import (
	"errors"
	"testing"
)

func TestValidatePayloadPerType(t *testing.T) {
	cases := []struct {
		name    string
		typ     ActionType
		payload map[string]any
		field   string // empty means valid
	}{
		{"message ok", TypeMessage, map[string]any{"recipient": "homeowner", "message_content": "hi"}, ""},
		{"message missing recipient", TypeMessage, map[string]any{"message_content": "hi"}, "recipient"},
		{"message blank content", TypeMessage, map[string]any{"recipient": "homeowner", "message_content": "  "}, "message_content"},

		{"reminder ok", TypeSetFutureReminder, map[string]any{"days_until_check": float64(3), "check_reason": "confirm install"}, ""},
		{"reminder zero days", TypeSetFutureReminder, map[string]any{"days_until_check": float64(0), "check_reason": "x"}, "days_until_check"},
		{"reminder fractional days", TypeSetFutureReminder, map[string]any{"days_until_check": 1.5, "check_reason": "x"}, "days_until_check"},
		{"reminder missing reason", TypeSetFutureReminder, map[string]any{"days_until_check": float64(2)}, "check_reason"},
		{"reminder non-number", TypeSetFutureReminder, map[string]any{"days_until_check": "soon", "check_reason": "x"}, "days_until_check"},

		{"data update ok", TypeDataUpdate, map[string]any{"field": "status", "value": "closed"}, ""},
		{"data update missing value", TypeDataUpdate, map[string]any{"field": "status"}, "value"},
		{"data update missing field", TypeDataUpdate, map[string]any{"value": "x"}, "field"},

		{"escalation ok", TypeEscalation, map[string]any{"reason": "angry customer"}, ""},
		{"escalation missing reason", TypeEscalation, map[string]any{}, "reason"},

		{"human in loop ok", TypeHumanInLoop, map[string]any{"review_reason": "odd request"}, ""},
		{"human in loop missing", TypeHumanInLoop, nil, "review_reason"},

		{"no action ok", TypeNoAction, nil, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePayload(tc.typ, tc.payload)
			if tc.field == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, verr.Field)
			}
		})
	}
}

func TestRequiresApprovalGateByType(t *testing.T) {
	gated := map[ActionType]bool{
		TypeMessage:           true,
		TypeDataUpdate:        true,
		TypeEscalation:        true,
		TypeHumanInLoop:       true,
		TypeSetFutureReminder: false,
		TypeNoAction:          false,
	}
	for typ, want := range gated {
		if got := requiresApproval(typ); got != want {
			t.Fatalf("requiresApproval(%s) = %v, want %v", typ, got, want)
		}
	}
}
