package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"comms-platform/pkg/utils"
)

// Runner executes engine requests with the full ambient contract: an
// append-only PromptRun per invocation and a per-company concurrency cap.
type Runner struct {
	engine Engine
	runs   *RunStore
	model  ModelConfig

	rdb      *redis.Client
	capLimit int
	capTTL   time.Duration
}

func NewRunner(engine Engine, runs *RunStore, model ModelConfig, rdb *redis.Client, capLimit int) *Runner {
	return &Runner{
		engine:   engine,
		runs:     runs,
		model:    model,
		rdb:      rdb,
		capLimit: capLimit,
		capTTL:   5 * time.Minute,
	}
}

func (r *Runner) Model() ModelConfig { return r.model }

// Run invokes the engine once for a project. The PromptRun row is created
// before the call and finished after it, so a crash mid-call leaves an
// inspectable RUNNING row rather than losing the invocation.
func (r *Runner) Run(ctx context.Context, companyID, projectID string, req Request) (string, Result, error) {
	release, err := r.acquireSlot(ctx, companyID)
	if err != nil {
		return "", Result{}, err
	}
	defer release()

	input := renderRunInput(req)
	run, err := r.runs.Begin(ctx, projectID, req.Template, input, r.model)
	if err != nil {
		return "", Result{}, fmt.Errorf("begin prompt run: %w", err)
	}

	res, err := r.engine.Complete(ctx, req)
	if err != nil {
		_ = r.runs.Fail(ctx, run.ID, err.Error())
		return run.ID, Result{}, err
	}

	if err := r.runs.Complete(ctx, run.ID, renderRunOutput(res)); err != nil {
		// The engine answered; a failed audit write must not discard it.
		return run.ID, res, nil
	}
	return run.ID, res, nil
}

// acquireSlot enforces the per-company cap with a short retry window.
// Saturation surfaces as ErrConcurrencyLimit so callers can requeue.
func (r *Runner) acquireSlot(ctx context.Context, companyID string) (func(), error) {
	if r.rdb == nil || r.capLimit <= 0 || companyID == "" {
		return func() {}, nil
	}
	key := "engine:cap:" + companyID

	for attempt := 0; attempt < 5; attempt++ {
		ok, err := utils.AcquireConcurrencyCap(ctx, r.rdb, key, r.capLimit, r.capTTL)
		if err != nil {
			// Redis trouble must not block the pipeline; run uncapped.
			return func() {}, nil
		}
		if ok {
			return func() {
				_ = utils.ReleaseConcurrencyCap(context.WithoutCancel(ctx), r.rdb, key)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
		}
	}
	return nil, ErrConcurrencyLimit
}

func renderRunInput(req Request) string {
	in := map[string]any{"system": req.System, "user": req.User}
	if len(req.Tools) > 0 {
		names := make([]string, 0, len(req.Tools))
		for _, t := range req.Tools {
			names = append(names, t.Name)
		}
		in["tools"] = names
	}
	b, _ := json.Marshal(in)
	return string(b)
}

func renderRunOutput(res Result) string {
	b, _ := json.Marshal(map[string]any{"text": res.Text, "tool_calls": res.ToolCalls})
	return string(b)
}
