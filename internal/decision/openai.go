package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIEngine implements Engine against any OpenAI-compatible
// chat-completions API (OpenAI, OpenRouter, Anthropic-compatible proxies).
type OpenAIEngine struct {
	apiKey     string
	apiBase    string
	model      ModelConfig
	httpClient *http.Client
}

func NewOpenAIEngine(apiKey, apiBase string, model ModelConfig, timeout time.Duration) *OpenAIEngine {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIEngine{
		apiKey:     apiKey,
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (e *OpenAIEngine) Model() ModelConfig { return e.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (e *OpenAIEngine) Complete(ctx context.Context, req Request) (Result, error) {
	body := map[string]any{
		"model": e.model.Model,
		"messages": []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if len(req.Tools) > 0 {
		tools := make([]chatTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, chatTool{
				Type: "function",
				Function: chatToolFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		body["tools"] = tools
		body["tool_choice"] = "auto"
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("engine API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return Result{}, fmt.Errorf("parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return Result{}, fmt.Errorf("engine returned no choices")
	}

	choice := apiResp.Choices[0]
	out := Result{Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			// Malformed arguments degrade to an empty map; downstream
			// validation rejects the incomplete action without a row.
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
