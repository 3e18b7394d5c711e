package actions

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError names the offending payload field. Failed validation
// creates no row; the caller gets a synchronous rejection.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("actions: invalid field %q: %s", e.Field, e.Reason)
}

// validatePayload checks the per-type required subset before insertion.
func validatePayload(t ActionType, payload map[string]any) error {
	switch t {
	case TypeMessage:
		if err := requireString(payload, "recipient"); err != nil {
			return err
		}
		return requireString(payload, "message_content")

	case TypeSetFutureReminder:
		days, err := requireNumber(payload, "days_until_check")
		if err != nil {
			return err
		}
		if days <= 0 || days != math.Trunc(days) {
			return &ValidationError{Field: "days_until_check", Reason: "must be a positive whole number of days"}
		}
		return requireString(payload, "check_reason")

	case TypeDataUpdate:
		if err := requireString(payload, "field"); err != nil {
			return err
		}
		if _, ok := payload["value"]; !ok {
			return &ValidationError{Field: "value", Reason: "required"}
		}
		return nil

	case TypeEscalation:
		return requireString(payload, "reason")

	case TypeHumanInLoop:
		return requireString(payload, "review_reason")

	case TypeNoAction:
		return nil

	default:
		return &ValidationError{Field: "action_type", Reason: fmt.Sprintf("unknown type %q", t)}
	}
}

func requireString(payload map[string]any, field string) error {
	v, ok := payload[field]
	if !ok {
		return &ValidationError{Field: field, Reason: "required"}
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return &ValidationError{Field: field, Reason: "must be a non-empty string"}
	}
	return nil
}

func requireNumber(payload map[string]any, field string) (float64, error) {
	v, ok := payload[field]
	if !ok {
		return 0, &ValidationError{Field: field, Reason: "required"}
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, &ValidationError{Field: field, Reason: "must be a number"}
	}
}

func payloadString(payload map[string]any, field string) string {
	if v, ok := payload[field]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
