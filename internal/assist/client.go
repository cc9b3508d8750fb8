// Package assist wraps the generative-language collaborator. Every
// operation fails open: an unconfigured client, a transport failure,
// or a malformed reply degrades to the operation's pass-through
// default so task, event, and idea creation always succeeds.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mindflow-hq/mindflow/internal/core"
	"github.com/mindflow-hq/mindflow/internal/logging"
)

// Client handles generative-language API calls
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Config for the assist client
type Config struct {
	APIKey  string // API key; empty disables the client
	BaseURL string // API base URL
	Model   string // Model to use
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://generativelanguage.googleapis.com",
		Model:   "gemini-2.5-flash",
		Timeout: 30 * time.Second,
	}
}

// NewClient creates a new assist client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// IsConfigured reports whether an API key is present. Callers resolve
// this once and thread it into every site that wants the enhancement.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// Suggestion is the structured result of a scheduling suggestion.
// Absent Date/Time mean no such component was detected, not an error.
type Suggestion struct {
	Title string `json:"title"`
	Date  string `json:"date,omitempty"` // YYYY-MM-DD
	Time  string `json:"time,omitempty"` // HH:MM, 24-hour
}

// Status reports collaborator health for diagnostics only.
type Status struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	DebugInfo string `json:"debug_info,omitempty"`
}

// request/response shapes for the generateContent endpoint

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// generate sends one prompt and returns the first candidate's text.
func (c *Client) generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	if !c.IsConfigured() {
		return "", core.ErrAssistUnavailable
	}

	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}
	if jsonMode {
		req.GenerationConfig = &generationConfig{ResponseMimeType: "application/json"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response")
	}

	return genResp.Candidates[0].Content.Parts[0].Text, nil
}

// CheckStatus pings the collaborator and reports health. It is not
// part of any mutation path.
func (c *Client) CheckStatus(ctx context.Context) Status {
	if !c.IsConfigured() {
		return Status{OK: false, Message: "AI client not initialized (missing API key)"}
	}

	_, err := c.generate(ctx, "Ping", false)
	if err != nil {
		return Status{OK: false, Message: "Connection failed", DebugInfo: err.Error()}
	}
	return Status{OK: true, Message: "AI system operational"}
}

// GenerateSubtasks breaks a free-text task into short actionable
// sub-tasks. An empty result signals "no breakdown, treat as a single
// task" and is returned on any failure.
func (c *Client) GenerateSubtasks(ctx context.Context, task string) []string {
	if !c.IsConfigured() {
		return nil
	}

	prompt := fmt.Sprintf(`Break down the following task into 3-5 concise, actionable sub-tasks. Return ONLY the sub-tasks as a JSON array of strings. Task: %q`, task)
	text, err := c.generate(ctx, prompt, true)
	if err != nil {
		logging.Debug("assist: subtask generation failed: %v", err)
		return nil
	}

	var subtasks []string
	if err := json.Unmarshal([]byte(stripFences(text)), &subtasks); err != nil {
		logging.Debug("assist: subtask reply not a JSON string array: %v", err)
		return nil
	}
	return subtasks
}

// ExpandIdea returns a short creative expansion of an idea, or the
// empty string when no expansion is available.
func (c *Client) ExpandIdea(ctx context.Context, idea string) string {
	if !c.IsConfigured() {
		return ""
	}

	prompt := fmt.Sprintf("You are a creative partner. Briefly expand on this idea with a unique perspective or a concrete next step. Keep it under 50 words. Idea: %q", idea)
	text, err := c.generate(ctx, prompt, false)
	if err != nil {
		logging.Debug("assist: idea expansion failed: %v", err)
		return ""
	}
	return strings.TrimSpace(text)
}

// SuggestEvent extracts a clean title and an optional date/time from
// free text with natural-language scheduling. On any failure the input
// comes back unchanged as the title.
func (c *Client) SuggestEvent(ctx context.Context, input string) Suggestion {
	fallback := Suggestion{Title: input}
	if !c.IsConfigured() {
		return fallback
	}

	now := time.Now()
	prompt := fmt.Sprintf(`Current reference date: %s (%s).

Analyze the following text and extract:
1. Event title (clean up the text, remove the time/date references).
2. Date (YYYY-MM-DD). Calculate specific dates for relative terms like "tomorrow", "next friday", "in 3 days". If no date is mentioned, return null.
3. Time (HH:MM) in 24-hour format. If no time is mentioned, return null.

Text: %q

Return JSON: {"title": string, "date": string | null, "time": string | null}`,
		core.LocalDate(now), now.Weekday(), input)

	text, err := c.generate(ctx, prompt, true)
	if err != nil {
		logging.Debug("assist: event suggestion failed: %v", err)
		return fallback
	}

	var s Suggestion
	if err := json.Unmarshal([]byte(stripFences(text)), &s); err != nil {
		logging.Debug("assist: event suggestion reply malformed: %v", err)
		return fallback
	}
	if s.Title == "" {
		s.Title = input
	}
	return s
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
