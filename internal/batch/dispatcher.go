package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"comms-platform/internal/comms"
	"comms-platform/internal/projects"
	"comms-platform/pkg/logger"
)

// Updater is the downstream summary/action pipeline. Content is the
// chronological transcript of one or more communications.
type Updater interface {
	Process(ctx context.Context, projectID, content string) error
}

// Disambiguator handles communications that may span several open projects.
type Disambiguator interface {
	Disambiguate(ctx context.Context, c comms.Communication) error
}

// CommStore is the slice of the communications store the dispatcher needs.
type CommStore interface {
	ListByBatch(ctx context.Context, batchID string) ([]comms.Communication, error)
	AssignProject(ctx context.Context, id, projectID string) error
	AttachBatch(ctx context.Context, id, batchID string) error
}

// ProjectMatcher attributes a communication to open projects by the
// counterpart's phone number.
type ProjectMatcher interface {
	FindOpenByContactPhone(ctx context.Context, companyID, phone string) ([]projects.Project, error)
}

// StatusStore is the batch persistence slice the dispatcher and sweeper
// drive. *Store is the Postgres implementation.
type StatusStore interface {
	ActiveForProject(ctx context.Context, projectID string) (BatchStatus, bool, error)
	Create(ctx context.Context, projectID string, scheduledAt time.Time) (BatchStatus, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]BatchStatus, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkError(ctx context.Context, id string) error
	Requeue(ctx context.Context, id string, scheduledAt time.Time) error
}

// Dispatcher routes each new communication to immediate processing, a
// debounce batch, or multi-project disambiguation.
type Dispatcher struct {
	batches       StatusStore
	commStore     CommStore
	matcher       ProjectMatcher
	updater       Updater
	disambiguator Disambiguator

	window    time.Duration
	immediate bool
	clock     func() time.Time
}

func NewDispatcher(batches StatusStore, commStore CommStore, matcher ProjectMatcher, updater Updater, disambiguator Disambiguator, window time.Duration, immediate bool) *Dispatcher {
	if window <= 0 {
		window = time.Minute
	}
	return &Dispatcher{
		batches:       batches,
		commStore:     commStore,
		matcher:       matcher,
		updater:       updater,
		disambiguator: disambiguator,
		window:        window,
		immediate:     immediate,
		clock:         time.Now,
	}
}

// Dispatch runs after the normalization durability boundary: any error here
// is the caller's to log, never to propagate back to the webhook sender.
func (d *Dispatcher) Dispatch(ctx context.Context, c comms.Communication) error {
	if c.MultiProjectPotential {
		return d.disambiguator.Disambiguate(ctx, c)
	}

	projectID := c.ProjectID
	if projectID == "" {
		matched, err := d.matchProject(ctx, c)
		if err != nil {
			return err
		}
		switch len(matched) {
		case 0:
			// No open project: nothing to update. The communication stays
			// queryable by company for later manual attribution.
			logger.From(ctx).Info("communication has no open project", "communication_id", c.ID, "company_id", c.CompanyID)
			return nil
		case 1:
			projectID = matched[0].ID
			if err := d.commStore.AssignProject(ctx, c.ID, projectID); err != nil {
				return err
			}
		default:
			return d.disambiguator.Disambiguate(ctx, c)
		}
	}

	if d.immediate {
		return d.updater.Process(ctx, projectID, c.TranscriptLine())
	}
	return d.enqueue(ctx, c, projectID)
}

func (d *Dispatcher) matchProject(ctx context.Context, c comms.Communication) ([]projects.Project, error) {
	phone := counterpartPhone(c)
	if phone == "" || phone == "unknown" {
		return nil, nil
	}
	matched, err := d.matcher.FindOpenByContactPhone(ctx, c.CompanyID, phone)
	if err != nil {
		return nil, fmt.Errorf("match project: %w", err)
	}
	return matched, nil
}

// enqueue attaches the communication to the project's active debounce batch,
// opening a new window when none is active.
func (d *Dispatcher) enqueue(ctx context.Context, c comms.Communication, projectID string) error {
	active, ok, err := d.batches.ActiveForProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !ok {
		active, err = d.batches.Create(ctx, projectID, d.clock().Add(d.window))
		if errors.Is(err, ErrActiveExists) {
			// Lost the race to a concurrent dispatch; attach to the winner.
			active, ok, err = d.batches.ActiveForProject(ctx, projectID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("batch: active batch vanished for project %s", projectID)
			}
		} else if err != nil {
			return err
		}
	}
	return d.commStore.AttachBatch(ctx, c.ID, active.ID)
}

func counterpartPhone(c comms.Communication) string {
	for _, p := range c.Participants {
		if p.Type != comms.ParticipantPhone {
			continue
		}
		switch p.Role {
		case comms.RoleSender, comms.RoleCaller:
			if c.Direction == comms.DirectionInbound {
				return p.Value
			}
		case comms.RoleReceiver, comms.RoleCallee:
			if c.Direction == comms.DirectionOutbound {
				return p.Value
			}
		}
	}
	// Fall back to the first participant rather than dropping attribution.
	for _, p := range c.Participants {
		if p.Type == comms.ParticipantPhone {
			return p.Value
		}
	}
	return ""
}
