package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"comms-platform/internal/comms"
	"comms-platform/internal/decision"
	"comms-platform/internal/projects"
	"comms-platform/pkg/logger"
)

// CommAssigner attributes a communication to a project after the fact.
type CommAssigner interface {
	AssignProject(ctx context.Context, id, projectID string) error
}

// Disambiguator partitions one communication's content across the open
// projects it concerns and runs the updater per partition.
type Disambiguator struct {
	runner    *decision.Runner
	projects  *projects.Store
	commStore CommAssigner
	updater   *Updater
}

func NewDisambiguator(runner *decision.Runner, projectStore *projects.Store, commStore CommAssigner, updater *Updater) *Disambiguator {
	return &Disambiguator{runner: runner, projects: projectStore, commStore: commStore, updater: updater}
}

type partition struct {
	ProjectID       string `json:"project_id"`
	RelevantContent string `json:"relevant_content"`
}

// Disambiguate resolves a communication flagged as possibly spanning several
// projects. When the engine answer cannot be used, it degrades to running
// the updater against every candidate with the full content flagged as
// possibly irrelevant, which over-informs rather than drops.
func (d *Disambiguator) Disambiguate(ctx context.Context, c comms.Communication) error {
	open, err := d.projects.ListOpenByCompany(ctx, c.CompanyID)
	if err != nil {
		return err
	}
	switch len(open) {
	case 0:
		logger.From(ctx).Warn("no open project for cross-project communication", "communication_id", c.ID, "company_id", c.CompanyID)
		return nil
	case 1:
		if err := d.commStore.AssignProject(ctx, c.ID, open[0].ID); err != nil {
			return err
		}
		return d.updater.Process(ctx, open[0].ID, c.TranscriptLine())
	}

	parts, err := d.partition(ctx, c, open)
	if err != nil {
		logger.From(ctx).Warn("disambiguation degraded to fan-out", "communication_id", c.ID, "err", err)
		return d.fanOut(ctx, c, open)
	}
	if len(parts) == 0 {
		// The engine judged the content relevant to none of them.
		logger.From(ctx).Info("communication matched no open project", "communication_id", c.ID)
		return nil
	}

	if len(parts) == 1 {
		if err := d.commStore.AssignProject(ctx, c.ID, parts[0].ProjectID); err != nil {
			return err
		}
	}

	var firstErr error
	for _, p := range parts {
		content := p.RelevantContent
		if strings.TrimSpace(content) == "" {
			content = c.TranscriptLine()
		}
		if err := d.updater.Process(ctx, p.ProjectID, content); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("project %s: %w", p.ProjectID, err)
		}
	}
	return firstErr
}

func (d *Disambiguator) partition(ctx context.Context, c comms.Communication, open []projects.Project) ([]partition, error) {
	byID := make(map[string]bool, len(open))
	fingerprints := make([]string, 0, len(open))
	for _, p := range open {
		byID[p.ID] = true
		fp, err := json.Marshal(p.Fingerprint())
		if err != nil {
			return nil, err
		}
		fingerprints = append(fingerprints, string(fp))
	}

	req := decision.BuildDisambiguation(decision.DisambiguationInput{
		Content:      c.TranscriptLine(),
		Fingerprints: fingerprints,
	})
	runID, res, err := d.runner.Run(ctx, c.CompanyID, "", req)
	if err != nil {
		return nil, err
	}

	var parts []partition
	if err := decodeJSON(res.Text, &parts); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	kept := parts[:0]
	for _, p := range parts {
		if byID[p.ProjectID] {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func (d *Disambiguator) fanOut(ctx context.Context, c comms.Communication, open []projects.Project) error {
	const note = "this communication may concern several projects; only part of it, or none, may be about this one"
	var firstErr error
	for _, p := range open {
		if err := d.updater.ProcessWithNote(ctx, p.ID, c.TranscriptLine(), note); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("project %s: %w", p.ID, err)
		}
	}
	return firstErr
}
