package actions

import (
	"strings"

	"comms-platform/internal/projects"
)

// roleSynonyms maps names the decision engine uses for people onto the role
// values stored in the contact directory. Matching is attempted only after
// an exact name match fails.
var roleSynonyms = map[string][]string{
	"homeowner":    {"homeowner", "owner", "client", "customer"},
	"client":       {"client", "customer", "homeowner", "owner"},
	"customer":     {"customer", "client", "homeowner"},
	"adjuster":     {"adjuster", "insurance_adjuster"},
	"insurance":    {"adjuster", "insurance_adjuster"},
	"pm":           {"project_manager", "pm"},
	"manager":      {"project_manager", "pm"},
	"crew":         {"crew_lead", "foreman", "crew"},
	"foreman":      {"foreman", "crew_lead"},
	"salesperson":  {"sales", "salesperson", "rep"},
	"rep":          {"rep", "sales", "salesperson"},
	"subcontractor": {"subcontractor", "sub"},
}

// resolveContact maps a free-text party name to a contact id using the fixed
// priority order: exact name, role synonym, partial substring. Returns empty
// when nothing matches.
func resolveContact(contacts []projects.Contact, name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}

	for _, c := range contacts {
		if strings.ToLower(c.Name) == name {
			return c.ID
		}
	}

	if roles, ok := roleSynonyms[name]; ok {
		for _, role := range roles {
			for _, c := range contacts {
				if strings.EqualFold(c.Role, role) {
					return c.ID
				}
			}
		}
	}

	for _, c := range contacts {
		lower := strings.ToLower(c.Name)
		if strings.Contains(lower, name) || strings.Contains(name, lower) {
			return c.ID
		}
	}
	return ""
}
