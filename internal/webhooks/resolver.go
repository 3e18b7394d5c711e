package webhooks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"comms-platform/internal/comms"
	"comms-platform/internal/projects"
)

// NewLineResolver resolves the owning company from the provisioned line the
// provider delivered for. For inbound traffic that is the receiver side; for
// outbound, the sender side.
func NewLineResolver(db *sql.DB) CompanyResolver {
	return func(ctx context.Context, service string, c comms.Communication) (string, error) {
		for _, value := range lineCandidates(c) {
			const q = `SELECT company_id FROM company_lines WHERE service = $1 AND line = $2`
			var companyID string
			err := db.QueryRowContext(ctx, q, service, value).Scan(&companyID)
			if err == nil {
				return companyID, nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return "", err
			}
		}
		return "", fmt.Errorf("no company line matches %s webhook", service)
	}
}

// lineCandidates orders participant values by how likely each is to be the
// company's own line.
func lineCandidates(c comms.Communication) []string {
	companyRole := "receiver"
	if c.Direction == comms.DirectionOutbound {
		companyRole = "sender"
	}
	if c.Type == comms.TypeCall {
		companyRole = "callee"
		if c.Direction == comms.DirectionOutbound {
			companyRole = "caller"
		}
	}

	var preferred, rest []string
	for _, p := range c.Participants {
		if p.Value == "" {
			continue
		}
		if string(p.Role) == companyRole {
			preferred = append(preferred, p.Value)
		} else {
			rest = append(rest, p.Value)
		}
	}
	return append(preferred, rest...)
}

// OpenProjectClassifier flags communications that could belong to more than
// one project: the counterpart's phone matches several open projects, or no
// project at all while the company has several open.
type OpenProjectClassifier struct {
	Projects *projects.Store
}

func (cl OpenProjectClassifier) MultiProject(ctx context.Context, c comms.Communication) (bool, error) {
	if c.ProjectID != "" || c.CompanyID == "" {
		return false, nil
	}

	for _, p := range c.Participants {
		if p.Type != comms.ParticipantPhone || p.Value == "" {
			continue
		}
		matched, err := cl.Projects.FindOpenByContactPhone(ctx, c.CompanyID, p.Value)
		if err != nil {
			return false, err
		}
		if len(matched) > 1 {
			return true, nil
		}
		if len(matched) == 1 {
			return false, nil
		}
	}

	open, err := cl.Projects.ListOpenByCompany(ctx, c.CompanyID)
	if err != nil {
		return false, err
	}
	return len(open) > 1, nil
}
