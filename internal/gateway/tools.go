package gateway

import (
	"context"
	"errors"
	"fmt"

	"comms-platform/internal/actions"
	"comms-platform/internal/decision"
	"comms-platform/internal/projects"
)

// Deps are the domain collaborators behind the built-in tool catalog.
type Deps struct {
	Actions   *actions.Service
	Projects  *projects.Store
	Knowledge decision.KnowledgeSearcher
	Messenger actions.Messenger
	CRM       actions.CRMWriter
}

// NewDefaultRegistry builds the registry with every built-in tool.
func NewDefaultRegistry(d Deps) *Registry {
	r := NewRegistry()
	r.Register(createActionRecordTool(d))
	r.Register(listActionsTool(d))
	r.Register(approveActionTool(d))
	r.Register(getProjectTool(d))
	r.Register(updateProjectFieldTool(d))
	r.Register(searchKnowledgeTool(d))
	r.Register(sendMessageTool(d))
	return r
}

// scopedProject loads a project and enforces tenant ownership. A project in
// another tenant reads as not found, never as forbidden.
func scopedProject(ctx context.Context, d Deps, sc SecurityContext, projectID string) (projects.Project, error) {
	if sc.ProjectID != "" {
		projectID = sc.ProjectID
	}
	if projectID == "" {
		return projects.Project{}, &ArgError{Field: "project_id", Reason: "required"}
	}
	p, err := d.Projects.GetByID(ctx, projectID)
	if err != nil {
		return projects.Project{}, err
	}
	if p.CompanyID != sc.TenantID {
		return projects.Project{}, projects.ErrNotFound
	}
	return p, nil
}

func createActionRecordTool(d Deps) ToolDefinition {
	return ToolDefinition{
		Name:        "create_action_record",
		Description: "Create an action record for a project. Approval-gated types stay pending until approved.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project_id": map[string]any{
					"type":        "string",
					"description": "Project the action belongs to (ignored for project-scoped keys)",
				},
				"prompt_run_id": map[string]any{
					"type":        "string",
					"description": "The prompt run that produced this action",
				},
				"action_type": map[string]any{
					"type":        "string",
					"description": "Action type",
					"enum":        []string{"message", "set_future_reminder", "data_update", "escalation", "human_in_loop", "no_action"},
				},
				"payload": map[string]any{
					"type":        "object",
					"description": "Type-specific action payload",
				},
			},
			"required": []string{"prompt_run_id", "action_type", "payload"},
		},
		Execute: func(ctx context.Context, sc SecurityContext, args map[string]any) (any, error) {
			p, err := scopedProject(ctx, d, sc, stringArg(args, "project_id"))
			if err != nil {
				return nil, err
			}
			payload, _ := args["payload"].(map[string]any)
			return d.Actions.Create(ctx, actions.CreateInput{
				PromptRunID: stringArg(args, "prompt_run_id"),
				ProjectID:   p.ID,
				Type:        actions.ActionType(stringArg(args, "action_type")),
				Payload:     payload,
			})
		},
	}
}

func listActionsTool(d Deps) ToolDefinition {
	return ToolDefinition{
		Name:        "list_actions",
		Description: "List a project's action records, newest first.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project_id": map[string]any{
					"type":        "string",
					"description": "Project to list (ignored for project-scoped keys)",
				},
				"status": map[string]any{
					"type":        "string",
					"description": "Filter by status",
					"enum":        []string{"pending", "executed", "failed"},
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum records to return",
				},
			},
		},
		Execute: func(ctx context.Context, sc SecurityContext, args map[string]any) (any, error) {
			p, err := scopedProject(ctx, d, sc, stringArg(args, "project_id"))
			if err != nil {
				return nil, err
			}
			limit := intArg(args, "limit", 50)
			return d.Actions.ListByProject(ctx, p.ID, actions.Status(stringArg(args, "status")), limit)
		},
	}
}

func approveActionTool(d Deps) ToolDefinition {
	return ToolDefinition{
		Name:        "approve_action",
		Description: "Approve a pending action record and execute it.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action_id": map[string]any{
					"type":        "string",
					"description": "The action record to approve",
				},
			},
			"required": []string{"action_id"},
		},
		Execute: func(ctx context.Context, sc SecurityContext, args map[string]any) (any, error) {
			rec, err := d.Actions.GetByID(ctx, stringArg(args, "action_id"))
			if err != nil {
				return nil, err
			}
			if _, err := scopedProject(ctx, d, sc, rec.ProjectID); err != nil {
				// Hide records from other tenants.
				return nil, actions.ErrNotFound
			}
			return d.Actions.Approve(ctx, rec.ID)
		},
	}
}

func getProjectTool(d Deps) ToolDefinition {
	return ToolDefinition{
		Name:        "get_project",
		Description: "Get a project's current summary, next step, and status.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project_id": map[string]any{
					"type":        "string",
					"description": "Project to fetch (ignored for project-scoped keys)",
				},
			},
		},
		Execute: func(ctx context.Context, sc SecurityContext, args map[string]any) (any, error) {
			return scopedProject(ctx, d, sc, stringArg(args, "project_id"))
		},
	}
}

func updateProjectFieldTool(d Deps) ToolDefinition {
	return ToolDefinition{
		Name:        "update_project_field",
		Description: "Update a single field on the project record in the CRM.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project_id": map[string]any{
					"type":        "string",
					"description": "Project to update (ignored for project-scoped keys)",
				},
				"field": map[string]any{
					"type":        "string",
					"description": "The field to update",
				},
				"value": map[string]any{
					"type":        "string",
					"description": "The new value",
				},
			},
			"required": []string{"field", "value"},
		},
		Execute: func(ctx context.Context, sc SecurityContext, args map[string]any) (any, error) {
			if d.CRM == nil {
				return nil, errors.New("crm writer not configured")
			}
			p, err := scopedProject(ctx, d, sc, stringArg(args, "project_id"))
			if err != nil {
				return nil, err
			}
			field := stringArg(args, "field")
			if err := d.CRM.UpdateProjectField(ctx, p.CompanyID, p.ID, field, args["value"]); err != nil {
				return nil, fmt.Errorf("crm update: %w", err)
			}
			return map[string]any{"project_id": p.ID, "field": field, "updated": true}, nil
		},
	}
}

func searchKnowledgeTool(d Deps) ToolDefinition {
	return ToolDefinition{
		Name:        "search_knowledge",
		Description: "Search the tenant's knowledge base.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query text",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum results",
				},
			},
			"required": []string{"query"},
		},
		Execute: func(ctx context.Context, sc SecurityContext, args map[string]any) (any, error) {
			if d.Knowledge == nil {
				return nil, errors.New("knowledge search not configured")
			}
			return d.Knowledge.Search(ctx, sc.TenantID, stringArg(args, "query"), intArg(args, "limit", 10))
		},
	}
}

func sendMessageTool(d Deps) ToolDefinition {
	return ToolDefinition{
		Name:        "send_message",
		Description: "Send a message to a contact through the outbound provider.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"contact_id": map[string]any{
					"type":        "string",
					"description": "The contact to message",
				},
				"message_content": map[string]any{
					"type":        "string",
					"description": "The message body",
				},
			},
			"required": []string{"contact_id", "message_content"},
		},
		Execute: func(ctx context.Context, sc SecurityContext, args map[string]any) (any, error) {
			if d.Messenger == nil {
				return nil, errors.New("messenger not configured")
			}
			msgID, err := d.Messenger.Send(ctx, sc.TenantID, stringArg(args, "contact_id"), stringArg(args, "message_content"))
			if err != nil {
				return nil, fmt.Errorf("send message: %w", err)
			}
			return map[string]any{"provider_message_id": msgID}, nil
		},
	}
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func intArg(args map[string]any, name string, def int) int {
	if n, ok := args[name].(float64); ok && n > 0 {
		return int(n)
	}
	return def
}
