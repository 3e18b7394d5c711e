package batch

import (
	"context"
	"errors"
	"time"

	"comms-platform/internal/comms"
	"comms-platform/internal/decision"
	"comms-platform/pkg/logger"
)

// Sweeper processes due batches. It is externally triggered (cron / ops
// endpoint), not an in-process timer, and is idempotent under overlapping
// invocations: the store's claim is the only lock.
type Sweeper struct {
	batches   StatusStore
	commStore CommStore
	updater   Updater

	requeueDelay time.Duration
	claimLimit   int
	clock        func() time.Time
}

func NewSweeper(batches StatusStore, commStore CommStore, updater Updater, claimLimit int) *Sweeper {
	return &Sweeper{
		batches:      batches,
		commStore:    commStore,
		updater:      updater,
		requeueDelay: time.Minute,
		claimLimit:   claimLimit,
		clock:        time.Now,
	}
}

// SweepOnce claims and processes one tranche of due batches. It returns the
// number of batches that reached a terminal state.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	claimed, err := s.batches.ClaimDue(ctx, s.clock(), s.claimLimit)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, b := range claimed {
		terminal, err := s.processBatch(ctx, b)
		if err != nil {
			// Already recorded on the batch row; keep sweeping the rest.
			logger.From(ctx).Error("batch processing failed", "batch_id", b.ID, "project_id", b.ProjectID, "err", err)
		}
		if terminal {
			done++
		}
	}
	return done, nil
}

// processBatch renders one transcript covering every member communication
// and invokes the updater exactly once. Errors never lose data: members
// remain queryable by batch_id for recovery. The bool reports whether the
// batch reached a terminal state; a requeued batch did not.
func (s *Sweeper) processBatch(ctx context.Context, b BatchStatus) (bool, error) {
	members, err := s.commStore.ListByBatch(ctx, b.ID)
	if err != nil {
		_ = s.batches.MarkError(ctx, b.ID)
		return true, err
	}
	if len(members) == 0 {
		// A window can close empty when its only member was re-attributed.
		return true, s.batches.MarkCompleted(ctx, b.ID)
	}

	transcript := comms.Transcript(members)
	if err := s.updater.Process(ctx, b.ProjectID, transcript); err != nil {
		if errors.Is(err, decision.ErrConcurrencyLimit) {
			// Engine saturated for this company; retry in a later sweep.
			return false, s.batches.Requeue(ctx, b.ID, s.clock().Add(s.requeueDelay))
		}
		_ = s.batches.MarkError(ctx, b.ID)
		return true, err
	}
	return true, s.batches.MarkCompleted(ctx, b.ID)
}
