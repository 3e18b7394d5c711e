package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"comms-platform/internal/decision"
	"comms-platform/internal/projects"
	"comms-platform/pkg/logger"
)

// ReminderSweeper finds projects whose scheduled check date has arrived and
// runs action detection for each. Like the batch sweep it is externally
// triggered and safe to overlap: the store's claim is the only lock.
type ReminderSweeper struct {
	projects   *projects.Store
	updater    *Updater
	claimLimit int
	clock      func() time.Time
}

func NewReminderSweeper(projectStore *projects.Store, updater *Updater, claimLimit int) *ReminderSweeper {
	return &ReminderSweeper{
		projects:   projectStore,
		updater:    updater,
		claimLimit: claimLimit,
		clock:      time.Now,
	}
}

// SweepOnce claims and checks one tranche of due projects, returning how
// many were checked.
func (s *ReminderSweeper) SweepOnce(ctx context.Context) (int, error) {
	due, err := s.projects.ClaimDueForCheck(ctx, s.clock(), s.claimLimit)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, p := range due {
		reason := "scheduled check date reached with no new communications since"
		if p.NextCheckDate != nil {
			reason = fmt.Sprintf("scheduled check date %s reached with no new communications since", p.NextCheckDate.Format("2006-01-02"))
		}
		if err := s.updater.ProcessReminder(ctx, p.ID, reason); err != nil {
			if errors.Is(err, decision.ErrConcurrencyLimit) {
				// Leave the rest of the tranche for a later sweep.
				logger.From(ctx).Warn("reminder sweep saturated", "project_id", p.ID)
				return done, nil
			}
			logger.From(ctx).Error("reminder check failed", "project_id", p.ID, "err", err)
			continue
		}
		done++
	}
	return done, nil
}
