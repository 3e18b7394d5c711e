package pipeline

import "comms-platform/internal/decision"

// actionTools declares the action vocabulary the engine proposes against.
// Tool names are action types; arguments become the record payload.
func actionTools() []decision.ToolSpec {
	return []decision.ToolSpec{
		{
			Name:        "message",
			Description: "Send a message to a project contact. Requires human approval before delivery.",
			Parameters: objectSchema(map[string]any{
				"recipient":       prop("string", "Name or role of the contact to message"),
				"sender":          prop("string", "Name or role of the contact the message is from, if relevant"),
				"message_content": prop("string", "The message body to send"),
			}, "recipient", "message_content"),
		},
		{
			Name:        "set_future_reminder",
			Description: "Schedule the next automatic check of this project.",
			Parameters: objectSchema(map[string]any{
				"days_until_check": prop("number", "Whole number of days until the project should be checked"),
				"check_reason":     prop("string", "What to verify at that check"),
			}, "days_until_check", "check_reason"),
		},
		{
			Name:        "data_update",
			Description: "Update a single field on the project record in the CRM. Requires human approval.",
			Parameters: objectSchema(map[string]any{
				"field": prop("string", "The project field to update"),
				"value": prop("string", "The new value"),
			}, "field", "value"),
		},
		{
			Name:        "escalation",
			Description: "Flag the project for urgent human attention.",
			Parameters: objectSchema(map[string]any{
				"reason": prop("string", "Why this needs urgent attention"),
			}, "reason"),
		},
		{
			Name:        "human_in_loop",
			Description: "Ask a human to review a situation the engine cannot resolve.",
			Parameters: objectSchema(map[string]any{
				"review_reason": prop("string", "What the reviewer should look at"),
			}, "review_reason"),
		},
		{
			Name:        "no_action",
			Description: "Record that nothing is needed right now.",
			Parameters:  objectSchema(map[string]any{}),
		},
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}
