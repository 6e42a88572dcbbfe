// Package ai is the single gateway to the text and image models. Everything
// above it works with plain prompts and plain text; transport, retries and
// token accounting live here.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/utils"
)

// Client is the text-model gateway.
type Client interface {
	// GenerateText runs a single completion. structured requests a JSON
	// response. tokens is the total usage for the call, 0 when the provider
	// did not report it.
	GenerateText(ctx context.Context, prompt string, structured bool) (text string, tokens int, err error)

	// StreamText runs a streaming completion, invoking onDelta for each text
	// chunk in order, and returns the accumulated text.
	StreamText(ctx context.Context, prompt string, onDelta func(delta string)) (full string, tokens int, err error)

	// GenerateImage returns a URL for a generated image. Callers treat
	// failure as soft.
	GenerateImage(ctx context.Context, prompt string) (url string, err error)
}

// CallLog describes one finished model call, for audit recording.
type CallLog struct {
	Kind     string
	Model    string
	Tokens   int
	Duration time.Duration
	Err      error
}

// Recorder receives a CallLog after every call. May be nil.
type Recorder func(ctx context.Context, entry CallLog)

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("model api http %d: %s", e.StatusCode, truncate(e.Body, 300))
}

func isRetryable(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusRequestTimeout ||
			he.StatusCode == http.StatusTooManyRequests ||
			he.StatusCode >= 500
	}
	// Network-level failures are worth one more try.
	return err != nil
}

type geminiClient struct {
	log        *logger.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxRetries int

	imageBaseURL string
	imageAPIKey  string
	imageModel   string

	record Recorder
}

// NewClient builds the gateway from the environment:
// GEMINI_API_KEY (required), GEMINI_MODEL, GEMINI_BASE_URL,
// GEMINI_TIMEOUT_SECONDS, GEMINI_MAX_RETRIES, and for images
// OPENAI_API_KEY, OPENAI_IMAGE_MODEL.
func NewClient(baseLog *logger.Logger, record Recorder) (Client, error) {
	log := baseLog.With("client", "GeminiClient")

	apiKey := utils.GetEnv("GEMINI_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	timeout := utils.GetEnvAsInt("GEMINI_TIMEOUT_SECONDS", 120, log)

	return &geminiClient{
		log:        log,
		httpClient: &http.Client{Timeout: time.Duration(timeout) * time.Second},
		baseURL:    strings.TrimRight(utils.GetEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com", log), "/"),
		apiKey:     apiKey,
		model:      utils.GetEnv("GEMINI_MODEL", "gemini-2.0-flash", log),
		maxRetries: utils.GetEnvAsInt("GEMINI_MAX_RETRIES", 3, log),

		imageBaseURL: strings.TrimRight(utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com", log), "/"),
		imageAPIKey:  utils.GetEnv("OPENAI_API_KEY", "", log),
		imageModel:   utils.GetEnv("OPENAI_IMAGE_MODEL", "dall-e-3", log),

		record: record,
	}, nil
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig *struct {
		ResponseMIMEType string `json:"response_mime_type,omitempty"`
	} `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func buildRequest(prompt string, structured bool) geminiRequest {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	if structured {
		req.GenerationConfig = &struct {
			ResponseMIMEType string `json:"response_mime_type,omitempty"`
		}{ResponseMIMEType: "application/json"}
	}
	return req
}

func (c *geminiClient) GenerateText(ctx context.Context, prompt string, structured bool) (string, int, error) {
	start := time.Now()
	text, tokens, err := c.generateOnceWithRetry(ctx, prompt, structured)
	c.recordCall(ctx, CallLog{Kind: "generate", Model: c.model, Tokens: tokens, Duration: time.Since(start), Err: err})
	return text, tokens, err
}

func (c *geminiClient) generateOnceWithRetry(ctx context.Context, prompt string, structured bool) (string, int, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt, lastErr); err != nil {
				return "", 0, err
			}
		}
		text, tokens, err := c.doGenerate(ctx, url, prompt, structured)
		if err == nil {
			return text, tokens, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
		c.log.Warn("generate attempt failed", "attempt", attempt+1, "error", err)
	}
	return "", 0, fmt.Errorf("generate text: %w", lastErr)
}

func (c *geminiClient) doGenerate(ctx context.Context, url, prompt string, structured bool) (string, int, error) {
	body, err := json.Marshal(buildRequest(prompt, structured))
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, withRetryAfter(&httpError{StatusCode: resp.StatusCode, Body: string(raw)}, resp)
	}

	var gr geminiResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", 0, fmt.Errorf("decode response: %w", err)
	}
	text := joinParts(gr)
	if strings.TrimSpace(text) == "" {
		return "", 0, fmt.Errorf("model returned empty response")
	}
	return text, gr.UsageMetadata.TotalTokenCount, nil
}

func (c *geminiClient) StreamText(ctx context.Context, prompt string, onDelta func(string)) (string, int, error) {
	start := time.Now()
	full, tokens, err := c.doStream(ctx, prompt, onDelta)
	c.recordCall(ctx, CallLog{Kind: "stream", Model: c.model, Tokens: tokens, Duration: time.Since(start), Err: err})
	return full, tokens, err
}

// doStream does not retry: deltas may already have been delivered, and a
// replay would duplicate them. Callers handle failure at their level.
func (c *geminiClient) doStream(ctx context.Context, prompt string, onDelta func(string)) (string, int, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, c.model, c.apiKey)

	body, err := json.Marshal(buildRequest(prompt, false))
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", 0, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var sb strings.Builder
	tokens := 0
	err = streamSSE(resp.Body, func(data string) error {
		var gr geminiResponse
		if err := json.Unmarshal([]byte(data), &gr); err != nil {
			// Skip non-JSON keepalive payloads.
			return nil
		}
		if gr.UsageMetadata.TotalTokenCount > 0 {
			tokens = gr.UsageMetadata.TotalTokenCount
		}
		if delta := joinParts(gr); delta != "" {
			sb.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
		return nil
	})
	if err != nil {
		return sb.String(), tokens, fmt.Errorf("stream text: %w", err)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", tokens, fmt.Errorf("model returned empty stream")
	}
	return sb.String(), tokens, nil
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

func (c *geminiClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	url, err := c.doGenerateImage(ctx, prompt)
	c.recordCall(ctx, CallLog{Kind: "image", Model: c.imageModel, Duration: time.Since(start), Err: err})
	return url, err
}

func (c *geminiClient) doGenerateImage(ctx context.Context, prompt string) (string, error) {
	if c.imageAPIKey == "" {
		return "", fmt.Errorf("image generation disabled: missing OPENAI_API_KEY")
	}
	body, err := json.Marshal(imageRequest{Model: c.imageModel, Prompt: prompt, N: 1, Size: "1024x1024"})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.imageBaseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.imageAPIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	var ir imageResponse
	if err := json.Unmarshal(raw, &ir); err != nil {
		return "", fmt.Errorf("decode image response: %w", err)
	}
	if len(ir.Data) == 0 || ir.Data[0].URL == "" {
		return "", fmt.Errorf("image response has no url")
	}
	return ir.Data[0].URL, nil
}

// backoff sleeps exponentially with ±20% jitter, honoring Retry-After when
// the server sent one, capped at 10s.
func (c *geminiClient) backoff(ctx context.Context, attempt int, lastErr error) error {
	d := time.Duration(1<<uint(attempt-1)) * time.Second
	if ra, ok := lastErr.(*retryAfterError); ok && ra.After > 0 {
		d = ra.After
	}
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	jitter := 0.8 + 0.4*rand.Float64()
	d = time.Duration(float64(d) * jitter)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

type retryAfterError struct {
	*httpError
	After time.Duration
}

func (e *retryAfterError) Unwrap() error { return e.httpError }

func withRetryAfter(he *httpError, resp *http.Response) error {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return &retryAfterError{httpError: he, After: time.Duration(secs) * time.Second}
		}
	}
	return he
}

func (c *geminiClient) recordCall(ctx context.Context, entry CallLog) {
	if c.record != nil {
		c.record(ctx, entry)
	}
}

func joinParts(gr geminiResponse) string {
	var sb strings.Builder
	for _, cand := range gr.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
