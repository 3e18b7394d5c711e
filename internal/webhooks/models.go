package webhooks

import "time"

// RawWebhook is the durable copy of one inbound provider webhook.
//
// Invariants:
// - Rows are created on ingress before any parsing happens.
// - A row reaches processed=true exactly once, on either outcome:
//   success (processing_error empty) or failure (processing_error set).
// - raw_payload is never mutated; re-drives re-read it as received.

type RawWebhook struct {
	ID      string `json:"id" db:"id"`
	Service string `json:"service" db:"service"`

	CompanyID string `json:"company_id" db:"company_id"`

	RawPayload []byte `json:"raw_payload" db:"raw_payload"`

	// Signature is the provider's webhook signature header, stored for
	// offline verification and replay auditing.
	Signature string `json:"signature,omitempty" db:"signature"`

	Processed       bool   `json:"processed" db:"processed"`
	ProcessingError string `json:"processing_error,omitempty" db:"processing_error"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}
