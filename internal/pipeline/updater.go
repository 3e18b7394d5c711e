package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"comms-platform/internal/actions"
	"comms-platform/internal/decision"
	"comms-platform/internal/projects"
	"comms-platform/pkg/logger"
)

// Updater is the two-stage project pipeline: refresh the running summary
// from new communications, then ask the engine which follow-up actions the
// refreshed state warrants.
type Updater struct {
	runner   *decision.Runner
	projects *projects.Store
	actions  *actions.Service
}

func NewUpdater(runner *decision.Runner, projectStore *projects.Store, actionSvc *actions.Service) *Updater {
	return &Updater{runner: runner, projects: projectStore, actions: actionSvc}
}

// Process handles new communication content for one project.
func (u *Updater) Process(ctx context.Context, projectID, content string) error {
	return u.run(ctx, projectID, content, "", "")
}

// ProcessWithNote is the disambiguation fallback path: content that may only
// partially pertain to this project, flagged to the engine as such.
func (u *Updater) ProcessWithNote(ctx context.Context, projectID, content, note string) error {
	return u.run(ctx, projectID, content, note, "")
}

// ProcessReminder runs stage 2 alone for a scheduled check. There is no new
// content, so the summary is left untouched.
func (u *Updater) ProcessReminder(ctx context.Context, projectID, reason string) error {
	project, err := u.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	track, err := u.loadTrack(ctx, project)
	if err != nil {
		return err
	}
	return u.detectActions(ctx, project, track, "", reason)
}

func (u *Updater) run(ctx context.Context, projectID, content, note, reminderReason string) error {
	project, err := u.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	track, err := u.loadTrack(ctx, project)
	if err != nil {
		return err
	}

	req := decision.BuildSummaryUpdate(decision.SummaryUpdateInput{
		ProjectName:        project.Name,
		Address:            project.Address,
		CurrentSummary:     project.Summary,
		CurrentNextStep:    project.NextStep,
		TrackBasePrompt:    track.BasePrompt,
		NewContent:         content,
		DisambiguationNote: note,
	})
	runID, res, err := u.runner.Run(ctx, project.CompanyID, project.ID, req)
	if err != nil {
		return fmt.Errorf("summary update: %w", err)
	}

	var update struct {
		Summary  string `json:"summary"`
		NextStep string `json:"next_step"`
	}
	if err := decodeJSON(res.Text, &update); err != nil {
		return fmt.Errorf("summary update run %s: unparseable engine answer: %w", runID, err)
	}
	if strings.TrimSpace(update.Summary) == "" {
		return fmt.Errorf("summary update run %s: engine returned empty summary", runID)
	}
	if err := u.projects.UpdateSummary(ctx, project.ID, update.Summary, update.NextStep); err != nil {
		return err
	}

	// Stage 2 sees the state stage 1 just wrote.
	project.Summary = update.Summary
	project.NextStep = update.NextStep
	return u.detectActions(ctx, project, track, content, reminderReason)
}

func (u *Updater) detectActions(ctx context.Context, project projects.Project, track projects.Track, content, reminderReason string) error {
	req := decision.BuildActionDetection(decision.ActionDetectionInput{
		ProjectName:           project.Name,
		Summary:               project.Summary,
		NextStep:              project.NextStep,
		TrackBasePrompt:       track.BasePrompt,
		TrackRoles:            track.Roles,
		MilestoneInstructions: track.MilestoneInstructions,
		NewContent:            content,
		ReminderReason:        reminderReason,
	}, actionTools())

	runID, res, err := u.runner.Run(ctx, project.CompanyID, project.ID, req)
	if err != nil {
		return fmt.Errorf("action detection: %w", err)
	}

	log := logger.From(ctx)
	for _, call := range res.ToolCalls {
		rec, err := u.actions.Create(ctx, actions.CreateInput{
			PromptRunID: runID,
			ProjectID:   project.ID,
			Type:        actions.ActionType(call.Name),
			Payload:     call.Arguments,
		})
		if err != nil {
			// One bad proposal must not void the rest of the run.
			var verr *actions.ValidationError
			if errors.As(err, &verr) {
				log.Warn("rejected proposed action", "project_id", project.ID, "prompt_run_id", runID, "type", call.Name, "err", err)
				continue
			}
			return err
		}
		if rec.Status == actions.StatusPending && !rec.RequiresApproval {
			if _, err := u.actions.Execute(ctx, rec.ID); err != nil {
				log.Error("auto-execute failed", "action_id", rec.ID, "err", err)
			}
		}
	}
	return nil
}

func (u *Updater) loadTrack(ctx context.Context, project projects.Project) (projects.Track, error) {
	if project.TrackID == "" {
		return projects.Track{}, nil
	}
	track, err := u.projects.GetTrack(ctx, project.TrackID)
	if err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			// A dangling track reference degrades to default prompting.
			return projects.Track{}, nil
		}
		return projects.Track{}, err
	}
	return track, nil
}

// decodeJSON tolerates the fenced-code-block wrapping chat models are prone
// to emitting around JSON answers.
func decodeJSON(text string, v any) error {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if start := strings.IndexAny(s, "[{"); start > 0 {
		s = s[start:]
	}
	return json.Unmarshal([]byte(s), v)
}
