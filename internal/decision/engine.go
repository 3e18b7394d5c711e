// Package decision wraps the external LLM decision engine: prompt templates
// in, text or structured tool calls out. Every invocation is persisted as an
// append-only PromptRun for audit.
package decision

import (
	"context"
	"errors"
)

// ModelConfig is the explicit {provider, model} pair resolved once at
// startup and threaded through every pipeline invocation.
type ModelConfig struct {
	Provider string
	Model    string
}

// Request is one decision-engine invocation.
type Request struct {
	// Template names the workflow prompt ("summary_update",
	// "action_detection_execution", "project_disambiguation").
	Template string

	System string
	User   string

	// Tools, when present, lets the engine answer with structured tool
	// calls instead of (or in addition to) text.
	Tools []ToolSpec

	MaxTokens   int
	Temperature float64
}

// ToolSpec describes a callable tool in the engine's function-calling format.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one structured action proposed by the engine.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Result is the engine's answer.
type Result struct {
	Text      string
	ToolCalls []ToolCall
}

// Engine is the provider-agnostic decision-engine contract.
type Engine interface {
	Complete(ctx context.Context, req Request) (Result, error)
}

// ErrConcurrencyLimit signals the per-company engine cap is saturated; the
// caller should requeue rather than fail terminally.
var ErrConcurrencyLimit = errors.New("decision: per-company concurrency limit reached")

// KnowledgeSearcher is the vector-search lookup capability. The embedding
// and ingestion pipeline live elsewhere; this service only consumes lookups.
type KnowledgeSearcher interface {
	Search(ctx context.Context, companyID, query string, limit int) ([]KnowledgeHit, error)
}

// KnowledgeHit is one vector-search result.
type KnowledgeHit struct {
	DocumentID string  `json:"document_id"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}
