// Package llm turns extracted page content into structured JSON via an
// OpenAI-compatible chat completion endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// Client is a lightweight OpenAI-compatible API client. It uses net/http
// directly, no SDK needed.
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
}

// NewClient creates a client for the configured endpoint.
func NewClient(cfg config.LLMConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Configured reports whether an API key is set. Unconfigured clients make
// every extraction a no-op error, which callers treat as "skip".
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Extract sends the page content with the caller's prompt and schema and
// returns the decoded JSON object.
func (c *Client) Extract(ctx context.Context, content, prompt string, schema map[string]any) (any, error) {
	if !c.Configured() {
		return nil, models.NewScrapeError(models.ErrCodeLLM, "no LLM API key configured", nil)
	}

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: buildSystemPrompt(prompt, schema)},
			{Role: "user", Content: content},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeLLM, "LLM request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeLLM, "failed to read LLM response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeLLM, "failed to parse LLM response", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeLLM, "LLM returned no choices", nil)
	}

	var out any
	if err := json.Unmarshal([]byte(chatResp.Choices[0].Message.Content), &out); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeLLM, "LLM returned invalid JSON", err)
	}
	return out, nil
}

// buildSystemPrompt combines the caller's prompt with the JSON schema.
func buildSystemPrompt(prompt string, schema map[string]any) string {
	var sb strings.Builder
	sb.WriteString("You are a structured data extraction assistant. Extract information from the provided content and return it as JSON")
	if len(schema) > 0 {
		sb.WriteString(" matching the following schema.\n\nSchema:\n")
		if encoded, err := json.Marshal(schema); err == nil {
			sb.Write(encoded)
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString(".\n")
	}
	if prompt != "" {
		sb.WriteString("\nInstructions:\n")
		sb.WriteString(prompt)
		sb.WriteString("\n")
	}
	sb.WriteString(`
Rules:
- Return ONLY valid JSON, no markdown fences or explanation.
- If a field cannot be found in the content, use null.
- Extract exactly the fields specified in the schema.`)
	return sb.String()
}

// classifyError maps HTTP status codes to error codes.
func classifyError(statusCode int, body []byte) *models.ScrapeError {
	var errResp chatErrorResponse
	msg := "LLM API error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.NewScrapeError(models.ErrCodeUnauthorized, msg, nil)
	case http.StatusTooManyRequests:
		return models.NewScrapeError(models.ErrCodeRateLimited, msg, nil)
	default:
		return models.NewScrapeError(models.ErrCodeLLM, fmt.Sprintf("LLM API returned %d: %s", statusCode, msg), nil)
	}
}
