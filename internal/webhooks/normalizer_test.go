package webhooks

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"comms-platform/internal/comms"
	"comms-platform/internal/providers"
)

type memRawStore struct {
	rows   map[string]*RawWebhook
	nextID int
}

func newMemRawStore() *memRawStore {
	return &memRawStore{rows: map[string]*RawWebhook{}}
}

func (s *memRawStore) Insert(ctx context.Context, w RawWebhook) (RawWebhook, error) {
	s.nextID++
	w.ID = "wh-" + strconv.Itoa(s.nextID)
	w.CreatedAt = time.Now()
	copied := w
	s.rows[w.ID] = &copied
	return w, nil
}

func (s *memRawStore) GetByID(ctx context.Context, id string) (RawWebhook, error) {
	row, ok := s.rows[id]
	if !ok {
		return RawWebhook{}, ErrNotFound
	}
	return *row, nil
}

func (s *memRawStore) MarkProcessed(ctx context.Context, id, processingError string) error {
	row, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if row.Processed {
		return ErrAlreadyProcessed
	}
	now := time.Now()
	row.Processed = true
	row.ProcessingError = processingError
	row.ProcessedAt = &now
	return nil
}

func (s *memRawStore) ResetForRedrive(ctx context.Context, id string) error {
	row, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if !row.Processed || row.ProcessingError == "" {
		return ErrInvalidArgument
	}
	row.Processed = false
	row.ProcessingError = ""
	row.ProcessedAt = nil
	return nil
}

type memCommStore struct {
	inserted []comms.Communication
	failWith error
}

func (s *memCommStore) Insert(ctx context.Context, c comms.Communication) (comms.Communication, error) {
	if s.failWith != nil {
		return comms.Communication{}, s.failWith
	}
	c.ID = "comm-" + strconv.Itoa(len(s.inserted)+1)
	s.inserted = append(s.inserted, c)
	return c, nil
}

type recordingDispatcher struct {
	calls []comms.Communication
	err   error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, c comms.Communication) error {
	d.calls = append(d.calls, c)
	return d.err
}

type fixedClassifier bool

func (f fixedClassifier) MultiProject(ctx context.Context, c comms.Communication) (bool, error) {
	return bool(f), nil
}

func staticResolver(companyID string) CompanyResolver {
	return func(ctx context.Context, service string, c comms.Communication) (string, error) {
		return companyID, nil
	}
}

const smsPayload = `{
	"direction": "incoming",
	"contact_number": "+15550001111",
	"justcall_number": "+15559990000",
	"sms_info": {"body": "quick update"}
}`

func newTestNormalizer(raw *memRawStore, cs *memCommStore, d *recordingDispatcher) *Normalizer {
	n := NewNormalizer(raw, cs, providers.Default(), d, staticResolver("comp-1"), fixedClassifier(false))
	n.DispatchAsync = false
	return n
}

func TestIngestHappyPath(t *testing.T) {
	raw := newMemRawStore()
	cs := &memCommStore{}
	d := &recordingDispatcher{}
	n := newTestNormalizer(raw, cs, d)

	w, c, err := n.Ingest(context.Background(), "justcall", []byte(smsPayload), "sig")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.CompanyID != "comp-1" {
		t.Fatalf("expected resolved company, got %q", c.CompanyID)
	}
	if c.RawWebhookID != w.ID {
		t.Fatalf("expected provenance link, got %q", c.RawWebhookID)
	}

	stored, _ := raw.GetByID(context.Background(), w.ID)
	if !stored.Processed || stored.ProcessingError != "" {
		t.Fatalf("expected clean processed webhook, got %+v", stored)
	}
	if len(d.calls) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(d.calls))
	}
}

func TestNormalizeIsExactlyOnce(t *testing.T) {
	raw := newMemRawStore()
	cs := &memCommStore{}
	n := newTestNormalizer(raw, cs, &recordingDispatcher{})

	w, _, err := n.Ingest(context.Background(), "justcall", []byte(smsPayload), "")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	if _, err := n.Normalize(context.Background(), w.ID); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if len(cs.inserted) != 1 {
		t.Fatalf("expected exactly one communication, got %d", len(cs.inserted))
	}
}

func TestNormalizeUnknownServiceMarksProcessed(t *testing.T) {
	raw := newMemRawStore()
	n := newTestNormalizer(raw, &memCommStore{}, &recordingDispatcher{})

	w, _, err := n.Ingest(context.Background(), "smokesignal", []byte(`{}`), "")
	if !errors.Is(err, ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}

	stored, _ := raw.GetByID(context.Background(), w.ID)
	if !stored.Processed || stored.ProcessingError == "" {
		t.Fatalf("expected processed-with-error, got %+v", stored)
	}
}

func TestNormalizeParseFailureRecordsDetail(t *testing.T) {
	raw := newMemRawStore()
	cs := &memCommStore{}
	n := newTestNormalizer(raw, cs, &recordingDispatcher{})

	w, _, err := n.Ingest(context.Background(), "justcall", []byte(`{"type":"contact.updated"}`), "")
	var pf *ParseFailure
	if !errors.As(err, &pf) {
		t.Fatalf("expected ParseFailure, got %v", err)
	}
	if pf.WebhookID != w.ID {
		t.Fatalf("failure should name the webhook, got %q", pf.WebhookID)
	}
	if len(cs.inserted) != 0 {
		t.Fatalf("no communication should persist on parse failure")
	}
}

func TestDispatchFailureStaysBehindDurabilityBoundary(t *testing.T) {
	raw := newMemRawStore()
	cs := &memCommStore{}
	d := &recordingDispatcher{err: errors.New("pipeline down")}
	n := newTestNormalizer(raw, cs, d)

	w, _, err := n.Ingest(context.Background(), "justcall", []byte(smsPayload), "")
	if err != nil {
		t.Fatalf("dispatch failure must not surface: %v", err)
	}
	stored, _ := raw.GetByID(context.Background(), w.ID)
	if !stored.Processed || stored.ProcessingError != "" {
		t.Fatalf("webhook should stay cleanly processed, got %+v", stored)
	}
	if len(cs.inserted) != 1 {
		t.Fatalf("communication must stay persisted")
	}
}

func TestRedriveReRunsFailedWebhook(t *testing.T) {
	raw := newMemRawStore()
	cs := &memCommStore{failWith: errors.New("db down")}
	n := newTestNormalizer(raw, cs, &recordingDispatcher{})

	w, _, err := n.Ingest(context.Background(), "justcall", []byte(smsPayload), "")
	if err == nil {
		t.Fatalf("expected persist failure")
	}

	cs.failWith = nil
	c, err := n.Redrive(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("redrive failed: %v", err)
	}
	if c.ID == "" {
		t.Fatalf("expected persisted communication")
	}

	// A cleanly processed webhook cannot be redriven again.
	if _, err := n.Redrive(context.Background(), w.ID); err == nil {
		t.Fatalf("expected redrive of clean webhook to fail")
	}
}
