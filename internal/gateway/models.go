package gateway

import (
	"context"
	"time"
)

// SecurityContext is the identity resolved from an access key. It is
// authoritative: tools trust it over anything in caller arguments.
type SecurityContext struct {
	TenantID  string `json:"tenant_id"`
	CompanyID string `json:"company_id,omitempty"`
	OrgID     string `json:"org_id,omitempty"`

	UserType  string `json:"user_type,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	ContactID string `json:"contact_id,omitempty"`

	// ProjectID, when set, pins every tool invocation to one project.
	ProjectID string `json:"project_id,omitempty"`
}

// AccessKey is one provisioned tool-access credential. Only the SHA-256 of
// the bearer token is stored.
type AccessKey struct {
	ID       string
	TenantID string

	// TenantColumn records which column convention held the tenant id
	// ("company_id" or "organization_id").
	TenantColumn string

	UserType  string
	UserID    string
	ContactID string
	ProjectID string

	// EnabledTools limits this key to a subset of the registry. Empty means
	// no tools, not all tools.
	EnabledTools []string

	Active    bool
	ExpiresAt *time.Time
}

// SecurityContext derives the per-request identity from the key row.
func (k AccessKey) SecurityContext() SecurityContext {
	sc := SecurityContext{
		TenantID:  k.TenantID,
		UserType:  k.UserType,
		UserID:    k.UserID,
		ContactID: k.ContactID,
		ProjectID: k.ProjectID,
	}
	if k.TenantColumn == "organization_id" {
		sc.OrgID = k.TenantID
	} else {
		sc.CompanyID = k.TenantID
	}
	return sc
}

// ToolEnabled reports whether this key may call the named tool.
func (k AccessKey) ToolEnabled(name string) bool {
	for _, t := range k.EnabledTools {
		if t == name {
			return true
		}
	}
	return false
}

// ToolDefinition is one dispatchable tool: a JSON-schema contract plus its
// executor. Arguments reaching Execute have already passed schema checks.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`

	Execute func(ctx context.Context, sc SecurityContext, args map[string]any) (any, error) `json:"-"`
}
