// Package textgen calls a hosted language model through the OpenAI
// Responses API.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4.1-mini"
	DefaultTimeout = 60 * time.Second

	temperature = 0.2
	// Upstream error bodies are truncated to this many bytes in StatusError.
	maxErrorBody = 512
)

var (
	ErrNotConfigured = errors.New("text generation is not configured")
	// ErrUnauthorized wraps ErrNotConfigured: a rejected key is a
	// configuration problem, not a transient failure.
	ErrUnauthorized = fmt.Errorf("%w: credentials rejected", ErrNotConfigured)
	ErrEmptyOutput  = errors.New("text generation returned no output")
)

// StatusError is returned for any non-2xx upstream response other than
// 401/403.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("text generation request failed with status %d: %s", e.StatusCode, e.Body)
}

// Prompt is a single generation request. Payload is serialized as indented
// JSON and appended to Instruction.
type Prompt struct {
	System      string
	Instruction string
	Payload     any
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient never fails; a client without an API key returns
// ErrNotConfigured from Generate.
func NewClient(cfg Config) *Client {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Configured() bool { return c.apiKey != "" }

func (c *Client) Model() string { return c.model }

type inputContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type inputMessage struct {
	Role    string         `json:"role"`
	Content []inputContent `json:"content"`
}

type requestBody struct {
	Model       string         `json:"model"`
	Temperature float64        `json:"temperature"`
	Input       []inputMessage `json:"input"`
}

type responseContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseOutput struct {
	Content []responseContent `json:"content"`
}

type responseEnvelope struct {
	OutputText string           `json:"output_text"`
	Output     []responseOutput `json:"output"`
}

// UserText renders the user turn sent for p.
func UserText(p Prompt) (string, error) {
	payload, err := json.MarshalIndent(p.Payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return p.Instruction + "\n" + string(payload), nil
}

// Generate sends one request and returns the raw output text. It never
// retries.
func (c *Client) Generate(ctx context.Context, p Prompt) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	user, err := UserText(p)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(requestBody{
		Model:       c.model,
		Temperature: temperature,
		Input: []inputMessage{
			{Role: "system", Content: []inputContent{{Type: "input_text", Text: p.System}}},
			{Role: "user", Content: []inputContent{{Type: "input_text", Text: user}}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordRequest(ctx, c.model, 0, time.Since(start), err)
		return "", fmt.Errorf("text generation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		recordRequest(ctx, c.model, resp.StatusCode, time.Since(start), statusErr)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
		}
		return "", statusErr
	}

	var envelope responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		recordRequest(ctx, c.model, resp.StatusCode, time.Since(start), err)
		return "", fmt.Errorf("decode response: %w", err)
	}

	text := outputText(envelope)
	if strings.TrimSpace(text) == "" {
		recordRequest(ctx, c.model, resp.StatusCode, time.Since(start), ErrEmptyOutput)
		return "", ErrEmptyOutput
	}

	recordRequest(ctx, c.model, resp.StatusCode, time.Since(start), nil)
	return text, nil
}

// outputText prefers the top-level output_text convenience field and falls
// back to the first output_text content part.
func outputText(env responseEnvelope) string {
	if env.OutputText != "" {
		return env.OutputText
	}
	for _, out := range env.Output {
		for _, content := range out.Content {
			if content.Type == "output_text" && content.Text != "" {
				return content.Text
			}
		}
	}
	return ""
}
