package batch

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"comms-platform/internal/comms"
	"comms-platform/internal/decision"
	"comms-platform/internal/projects"
)

type memStatusStore struct {
	rows     map[string]*BatchStatus
	nextID   int
	raceOnce bool // first Create reports ErrActiveExists
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{rows: map[string]*BatchStatus{}}
}

func (s *memStatusStore) ActiveForProject(ctx context.Context, projectID string) (BatchStatus, bool, error) {
	for _, b := range s.rows {
		if b.ProjectID == projectID && b.Status == StateInProgress {
			return *b, true, nil
		}
	}
	return BatchStatus{}, false, nil
}

func (s *memStatusStore) Create(ctx context.Context, projectID string, scheduledAt time.Time) (BatchStatus, error) {
	if s.raceOnce {
		// Simulate losing the unique-index race once.
		s.raceOnce = false
		s.mustInsert(projectID, scheduledAt)
		return BatchStatus{}, ErrActiveExists
	}
	return s.mustInsert(projectID, scheduledAt), nil
}

func (s *memStatusStore) mustInsert(projectID string, scheduledAt time.Time) BatchStatus {
	s.nextID++
	b := BatchStatus{
		ID:                      "batch-" + strconv.Itoa(s.nextID),
		ProjectID:               projectID,
		Status:                  StateInProgress,
		ScheduledProcessingTime: scheduledAt,
		CreatedAt:               time.Now(),
	}
	s.rows[b.ID] = &b
	return b
}

func (s *memStatusStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]BatchStatus, error) {
	var out []BatchStatus
	for _, b := range s.rows {
		if len(out) >= limit {
			break
		}
		if b.Status == StateInProgress && !b.ScheduledProcessingTime.After(now) {
			b.Status = StateProcessing
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *memStatusStore) MarkCompleted(ctx context.Context, id string) error {
	s.rows[id].Status = StateCompleted
	return nil
}

func (s *memStatusStore) MarkError(ctx context.Context, id string) error {
	s.rows[id].Status = StateError
	return nil
}

func (s *memStatusStore) Requeue(ctx context.Context, id string, scheduledAt time.Time) error {
	s.rows[id].Status = StateInProgress
	s.rows[id].ScheduledProcessingTime = scheduledAt
	return nil
}

type memBatchComms struct {
	byBatch  map[string][]comms.Communication
	assigned map[string]string
	attached map[string]string
}

func newMemBatchComms() *memBatchComms {
	return &memBatchComms{
		byBatch:  map[string][]comms.Communication{},
		assigned: map[string]string{},
		attached: map[string]string{},
	}
}

func (s *memBatchComms) ListByBatch(ctx context.Context, batchID string) ([]comms.Communication, error) {
	return s.byBatch[batchID], nil
}

func (s *memBatchComms) AssignProject(ctx context.Context, id, projectID string) error {
	s.assigned[id] = projectID
	return nil
}

func (s *memBatchComms) AttachBatch(ctx context.Context, id, batchID string) error {
	s.attached[id] = batchID
	return nil
}

type fixedMatcher []projects.Project

func (m fixedMatcher) FindOpenByContactPhone(ctx context.Context, companyID, phone string) ([]projects.Project, error) {
	return m, nil
}

type recordingUpdater struct {
	calls []string // projectID
	texts []string
	err   error
}

func (u *recordingUpdater) Process(ctx context.Context, projectID, content string) error {
	u.calls = append(u.calls, projectID)
	u.texts = append(u.texts, content)
	return u.err
}

type recordingDisambiguator struct {
	calls int
}

func (d *recordingDisambiguator) Disambiguate(ctx context.Context, c comms.Communication) error {
	d.calls++
	return nil
}

func inboundSMS(id string) comms.Communication {
	return comms.Communication{
		ID:        id,
		CompanyID: "comp-1",
		Type:      comms.TypeSMS,
		Subtype:   comms.SubtypeSMSMessage,
		Direction: comms.DirectionInbound,
		Participants: []comms.Participant{
			{Type: comms.ParticipantPhone, Value: "+15550001111", Role: comms.RoleSender},
			{Type: comms.ParticipantPhone, Value: "+15559990000", Role: comms.RoleReceiver},
		},
		Timestamp: time.Now(),
		Content:   "hello",
	}
}

func TestDispatchMultiProjectGoesToDisambiguator(t *testing.T) {
	dis := &recordingDisambiguator{}
	d := NewDispatcher(newMemStatusStore(), newMemBatchComms(), fixedMatcher(nil), &recordingUpdater{}, dis, time.Minute, false)

	c := inboundSMS("c1")
	c.MultiProjectPotential = true
	if err := d.Dispatch(context.Background(), c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if dis.calls != 1 {
		t.Fatalf("expected disambiguation, got %d calls", dis.calls)
	}
}

func TestDispatchSingleMatchAssignsAndEnqueues(t *testing.T) {
	store := newMemStatusStore()
	cs := newMemBatchComms()
	d := NewDispatcher(store, cs, fixedMatcher{{ID: "proj-1"}}, &recordingUpdater{}, &recordingDisambiguator{}, time.Minute, false)

	if err := d.Dispatch(context.Background(), inboundSMS("c1")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cs.assigned["c1"] != "proj-1" {
		t.Fatalf("expected project assignment, got %q", cs.assigned["c1"])
	}
	if cs.attached["c1"] == "" {
		t.Fatalf("expected batch attachment")
	}
	if _, ok, _ := store.ActiveForProject(context.Background(), "proj-1"); !ok {
		t.Fatalf("expected an active batch")
	}
}

func TestDispatchReusesActiveBatch(t *testing.T) {
	store := newMemStatusStore()
	cs := newMemBatchComms()
	d := NewDispatcher(store, cs, fixedMatcher{{ID: "proj-1"}}, &recordingUpdater{}, &recordingDisambiguator{}, time.Minute, false)

	_ = d.Dispatch(context.Background(), inboundSMS("c1"))
	_ = d.Dispatch(context.Background(), inboundSMS("c2"))

	if cs.attached["c1"] != cs.attached["c2"] {
		t.Fatalf("both communications should share the open batch: %q vs %q", cs.attached["c1"], cs.attached["c2"])
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected a single batch, got %d", len(store.rows))
	}
}

func TestDispatchAfterClaimOpensNewBatch(t *testing.T) {
	store := newMemStatusStore()
	cs := newMemBatchComms()
	d := NewDispatcher(store, cs, fixedMatcher{{ID: "proj-1"}}, &recordingUpdater{}, &recordingDisambiguator{}, time.Minute, false)

	_ = d.Dispatch(context.Background(), inboundSMS("c1"))
	claimed, err := store.ClaimDue(context.Background(), time.Now().Add(2*time.Minute), 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("expected one claimed batch, got %d (%v)", len(claimed), err)
	}

	// A claimed batch's member set is fixed; a later arrival must not join it.
	if err := d.Dispatch(context.Background(), inboundSMS("c2")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cs.attached["c2"] == claimed[0].ID {
		t.Fatalf("communication attached to claimed batch %s", claimed[0].ID)
	}
	if cs.attached["c2"] == "" {
		t.Fatalf("expected attachment to a fresh batch")
	}
	if got := store.rows[cs.attached["c2"]].Status; got != StateInProgress {
		t.Fatalf("fresh batch should be in_progress, got %s", got)
	}
}

func TestDispatchSurvivesCreateRace(t *testing.T) {
	store := newMemStatusStore()
	store.raceOnce = true
	cs := newMemBatchComms()
	d := NewDispatcher(store, cs, fixedMatcher{{ID: "proj-1"}}, &recordingUpdater{}, &recordingDisambiguator{}, time.Minute, false)

	if err := d.Dispatch(context.Background(), inboundSMS("c1")); err != nil {
		t.Fatalf("expected race to resolve, got %v", err)
	}
	if cs.attached["c1"] == "" {
		t.Fatalf("expected attachment to the winner's batch")
	}
}

func TestDispatchImmediateModeSkipsBatching(t *testing.T) {
	store := newMemStatusStore()
	u := &recordingUpdater{}
	d := NewDispatcher(store, newMemBatchComms(), fixedMatcher{{ID: "proj-1"}}, u, &recordingDisambiguator{}, time.Minute, true)

	if err := d.Dispatch(context.Background(), inboundSMS("c1")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(u.calls) != 1 || u.calls[0] != "proj-1" {
		t.Fatalf("expected immediate processing, got %v", u.calls)
	}
	if len(store.rows) != 0 {
		t.Fatalf("immediate mode must not open batches")
	}
}

func TestDispatchNoOpenProjectIsANoOp(t *testing.T) {
	u := &recordingUpdater{}
	store := newMemStatusStore()
	d := NewDispatcher(store, newMemBatchComms(), fixedMatcher(nil), u, &recordingDisambiguator{}, time.Minute, false)

	if err := d.Dispatch(context.Background(), inboundSMS("c1")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(u.calls) != 0 || len(store.rows) != 0 {
		t.Fatalf("unmatched communication must not trigger processing")
	}
}

func TestSweepProcessesOneTranscriptPerBatch(t *testing.T) {
	store := newMemStatusStore()
	b := store.mustInsert("proj-1", time.Now().Add(-time.Minute))

	cs := newMemBatchComms()
	first := inboundSMS("c1")
	first.Timestamp = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	second := inboundSMS("c2")
	second.Timestamp = time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)
	second.Content = "second message"
	cs.byBatch[b.ID] = []comms.Communication{first, second}

	u := &recordingUpdater{}
	sw := NewSweeper(store, cs, u, 10)

	n, err := sw.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one batch processed, got %d", n)
	}
	if len(u.calls) != 1 {
		t.Fatalf("updater must run exactly once per batch, got %d", len(u.calls))
	}
	if store.rows[b.ID].Status != StateCompleted {
		t.Fatalf("expected completed, got %s", store.rows[b.ID].Status)
	}
	transcript := u.texts[0]
	if wantFirst, wantSecond := "hello", "second message"; transcript == "" ||
		!containsInOrder(transcript, wantFirst, wantSecond) {
		t.Fatalf("transcript should carry both messages in order: %q", transcript)
	}
}

func TestSweepRequeuesOnConcurrencyLimit(t *testing.T) {
	store := newMemStatusStore()
	b := store.mustInsert("proj-1", time.Now().Add(-time.Minute))
	cs := newMemBatchComms()
	cs.byBatch[b.ID] = []comms.Communication{inboundSMS("c1")}

	u := &recordingUpdater{err: decision.ErrConcurrencyLimit}
	sw := NewSweeper(store, cs, u, 10)

	n, err := sw.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 0 {
		t.Fatalf("requeued batch is not terminal, got count %d", n)
	}
	if store.rows[b.ID].Status != StateInProgress {
		t.Fatalf("expected requeue to in_progress, got %s", store.rows[b.ID].Status)
	}
}

func TestSweepMarksErrorOnUpdaterFailure(t *testing.T) {
	store := newMemStatusStore()
	b := store.mustInsert("proj-1", time.Now().Add(-time.Minute))
	cs := newMemBatchComms()
	cs.byBatch[b.ID] = []comms.Communication{inboundSMS("c1")}

	u := &recordingUpdater{err: errors.New("engine exploded")}
	sw := NewSweeper(store, cs, u, 10)

	if _, err := sw.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep keeps going past per-batch failures, got %v", err)
	}
	if store.rows[b.ID].Status != StateError {
		t.Fatalf("expected error state, got %s", store.rows[b.ID].Status)
	}
}

func TestSweepEmptyBatchCompletes(t *testing.T) {
	store := newMemStatusStore()
	b := store.mustInsert("proj-1", time.Now().Add(-time.Minute))
	u := &recordingUpdater{}
	sw := NewSweeper(store, newMemBatchComms(), u, 10)

	if _, err := sw.SweepOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if store.rows[b.ID].Status != StateCompleted {
		t.Fatalf("expected completed, got %s", store.rows[b.ID].Status)
	}
	if len(u.calls) != 0 {
		t.Fatalf("empty batch must not reach the updater")
	}
}

func TestCounterpartPhone(t *testing.T) {
	c := inboundSMS("c1")
	if got := counterpartPhone(c); got != "+15550001111" {
		t.Fatalf("inbound counterpart should be the sender, got %q", got)
	}

	c.Direction = comms.DirectionOutbound
	if got := counterpartPhone(c); got != "+15559990000" {
		t.Fatalf("outbound counterpart should be the receiver, got %q", got)
	}
}

func containsInOrder(s string, parts ...string) bool {
	idx := 0
	for _, p := range parts {
		j := indexFrom(s, p, idx)
		if j < 0 {
			return false
		}
		idx = j + len(p)
	}
	return true
}

func indexFrom(s, sub string, from int) int {
	for i := from; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
