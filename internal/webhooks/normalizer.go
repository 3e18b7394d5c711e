package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"comms-platform/internal/comms"
	"comms-platform/internal/providers"
	"comms-platform/pkg/logger"
)

// RawStore is the raw-webhook persistence slice the normalizer drives.
type RawStore interface {
	Insert(ctx context.Context, w RawWebhook) (RawWebhook, error)
	GetByID(ctx context.Context, id string) (RawWebhook, error)
	MarkProcessed(ctx context.Context, id, processingError string) error
	ResetForRedrive(ctx context.Context, id string) error
}

// CommStore is the slice of the communications store the normalizer needs.
type CommStore interface {
	Insert(ctx context.Context, c comms.Communication) (comms.Communication, error)
}

// Dispatcher routes a freshly normalized communication into business logic
// (immediate processing, debounce batch or disambiguation).
type Dispatcher interface {
	Dispatch(ctx context.Context, c comms.Communication) error
}

// CompanyResolver maps a normalized communication to its tenant, typically
// by looking up the receiving number. Kept as a function injection to avoid
// persistence assumptions here.
type CompanyResolver func(ctx context.Context, service string, c comms.Communication) (string, error)

// MultiProjectClassifier decides whether a communication may span several
// open projects. The trigger is heuristic; implementations are pluggable
// behind this stable boolean interface.
type MultiProjectClassifier interface {
	MultiProject(ctx context.Context, c comms.Communication) (bool, error)
}

// ErrUnknownService indicates no parser is registered for the webhook's service.
var ErrUnknownService = errors.New("webhooks: unknown service")

// ParseFailure wraps a fatal parse error after it has been recorded on the
// raw webhook. The webhook is processed; the record carries the detail.
type ParseFailure struct {
	WebhookID string
	Err       error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("webhooks: parse failed for %s: %v", e.WebhookID, e.Err)
}

func (e *ParseFailure) Unwrap() error { return e.Err }

// Normalizer drives each raw webhook through its state machine:
// ingested -> parse -> {normalized, processed=true} | {failed, processed=true}.
//
// The durability boundary is normalization: once the Communication row is
// persisted and the webhook is marked processed, nothing downstream may undo
// it. Dispatcher failures are logged and left for sweep recovery.
type Normalizer struct {
	store      RawStore
	commStore  CommStore
	parsers    *providers.Registry
	dispatcher Dispatcher
	resolver   CompanyResolver
	classifier MultiProjectClassifier

	// DispatchAsync decouples provider retry semantics from AI-processing
	// latency. Tests set it false for determinism.
	DispatchAsync bool
}

func NewNormalizer(store RawStore, commStore CommStore, parsers *providers.Registry, dispatcher Dispatcher, resolver CompanyResolver, classifier MultiProjectClassifier) *Normalizer {
	return &Normalizer{
		store:         store,
		commStore:     commStore,
		parsers:       parsers,
		dispatcher:    dispatcher,
		resolver:      resolver,
		classifier:    classifier,
		DispatchAsync: true,
	}
}

// Ingest stores the raw payload and immediately runs normalization.
// The returned Communication is zero-valued when normalization failed.
func (n *Normalizer) Ingest(ctx context.Context, service string, payload []byte, signature string) (RawWebhook, comms.Communication, error) {
	raw, err := n.store.Insert(ctx, RawWebhook{Service: service, RawPayload: payload, Signature: signature})
	if err != nil {
		return RawWebhook{}, comms.Communication{}, err
	}
	c, err := n.Normalize(ctx, raw.ID)
	return raw, c, err
}

// Normalize processes one stored raw webhook. Safe to call again after
// ResetForRedrive; calling it for an already processed webhook is an error.
func (n *Normalizer) Normalize(ctx context.Context, rawID string) (comms.Communication, error) {
	raw, err := n.store.GetByID(ctx, rawID)
	if err != nil {
		return comms.Communication{}, err
	}
	if raw.Processed {
		return comms.Communication{}, ErrAlreadyProcessed
	}

	parser, ok := n.parsers.Get(raw.Service)
	if !ok {
		if markErr := n.store.MarkProcessed(ctx, raw.ID, "unknown service: "+raw.Service); markErr != nil {
			return comms.Communication{}, markErr
		}
		return comms.Communication{}, fmt.Errorf("%w: %s", ErrUnknownService, raw.Service)
	}

	c, parseErr := parser.Parse(raw.RawPayload)
	if parseErr != nil {
		if markErr := n.store.MarkProcessed(ctx, raw.ID, parseErr.Error()); markErr != nil {
			return comms.Communication{}, markErr
		}
		return comms.Communication{}, &ParseFailure{WebhookID: raw.ID, Err: parseErr}
	}

	c.RawWebhookID = raw.ID
	c.CompanyID = raw.CompanyID
	if c.CompanyID == "" && n.resolver != nil {
		companyID, resolveErr := n.resolver(ctx, raw.Service, c)
		if resolveErr != nil {
			if markErr := n.store.MarkProcessed(ctx, raw.ID, "company resolution failed: "+resolveErr.Error()); markErr != nil {
				return comms.Communication{}, markErr
			}
			return comms.Communication{}, &ParseFailure{WebhookID: raw.ID, Err: resolveErr}
		}
		c.CompanyID = companyID
	}

	if n.classifier != nil {
		multi, classifyErr := n.classifier.MultiProject(ctx, c)
		if classifyErr != nil {
			// Classification is best-effort; default to single-project handling.
			logger.From(ctx).Warn("multi-project classification failed", "raw_webhook_id", raw.ID, "err", classifyErr)
		} else {
			c.MultiProjectPotential = multi
		}
	}

	stored, err := n.commStore.Insert(ctx, c)
	if err != nil {
		if markErr := n.store.MarkProcessed(ctx, raw.ID, "persist failed: "+err.Error()); markErr != nil {
			return comms.Communication{}, markErr
		}
		return comms.Communication{}, err
	}

	if err := n.store.MarkProcessed(ctx, raw.ID, ""); err != nil {
		return comms.Communication{}, err
	}

	n.dispatch(ctx, stored)
	return stored, nil
}

// Redrive re-opens a failed webhook and re-runs normalization.
func (n *Normalizer) Redrive(ctx context.Context, rawID string) (comms.Communication, error) {
	if err := n.store.ResetForRedrive(ctx, rawID); err != nil {
		return comms.Communication{}, err
	}
	return n.Normalize(ctx, rawID)
}

// dispatch hands the communication to business logic. Failures here must not
// propagate: the Communication is already durable and recoverable.
func (n *Normalizer) dispatch(ctx context.Context, c comms.Communication) {
	if n.dispatcher == nil {
		return
	}
	run := func(ctx context.Context) {
		start := time.Now()
		if err := n.dispatcher.Dispatch(ctx, c); err != nil {
			logger.From(ctx).Error("dispatch failed",
				"communication_id", c.ID,
				"company_id", c.CompanyID,
				"duration_ms", time.Since(start).Milliseconds(),
				"err", err)
		}
	}
	if n.DispatchAsync {
		go run(context.WithoutCancel(ctx))
		return
	}
	run(ctx)
}
