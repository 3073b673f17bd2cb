package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"GPTAssistant/internal/config"
	"GPTAssistant/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// FallbackText is revealed when the endpoint returns no completion choice.
const FallbackText = "No response received."

// Completion is the text extracted from a successful response
type Completion struct {
	Text       string
	Model      string
	StatusCode int
	Usage      Usage
}

// Client calls an OpenAI-compatible chat completion endpoint
type Client struct {
	mu         sync.RWMutex
	config     config.Config
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	limiter    *rate.Limiter

	duration metric.Float64Histogram
	usage    map[string]metric.Int64Counter
}

// NewClient creates a client from cfg. A nil httpClient gets one with
// cfg.RequestTimeout.
func NewClient(cfg config.Config, httpClient *http.Client, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	duration, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	usage := make(map[string]metric.Int64Counter, len(usageKinds))
	for _, kind := range usageKinds {
		counter, err := meter.Int64Counter(
			"llm.usage."+kind,
			metric.WithDescription("LLM usage metric: "+kind),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", kind, err)
		}
		usage[kind] = counter
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
		tracer:     tracer,
		limiter:    rate.NewLimiter(limit, 1),
		duration:   duration,
		usage:      usage,
	}, nil
}

// Model returns the model name sent upstream
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.Model
}

// SetModel changes the model used by subsequent requests. A request already
// in flight keeps the model it started with.
func (c *Client) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Model = model
}

func (c *Client) snapshot() config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Validate checks that a request can be built without contacting the endpoint.
func (c *Client) Validate() error {
	cfg := c.snapshot()
	return cfg.Validate()
}

// Complete sends the whole conversation in one request and returns the first
// choice's text. The credential is checked before anything is sent.
func (c *Client) Complete(ctx context.Context, turns []session.Turn) (Completion, error) {
	cfg := c.snapshot()
	if err := cfg.Validate(); err != nil {
		return Completion{}, err
	}

	ctx, span := c.tracer.Start(ctx, "completion_request",
		trace.WithAttributes(
			attribute.String("llm.model", cfg.Model),
			attribute.Int("llm.messages", len(turns)),
		),
	)
	defer span.End()

	comp, err := c.complete(ctx, cfg, turns)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Completion{}, err
	}

	span.SetAttributes(
		attribute.Int("http.status_code", comp.StatusCode),
		attribute.Int("llm.response_chars", len([]rune(comp.Text))),
	)
	return comp, nil
}

func (c *Client) complete(ctx context.Context, cfg config.Config, turns []session.Turn) (Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	reqBody := ChatRequest{
		Model:    cfg.Model,
		Messages: turns,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.APIKey))
	req.Header.Set("HTTP-Referer", cfg.Referer)
	req.Header.Set("X-Title", cfg.Title)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("completion request failed", "endpoint", cfg.Endpoint, "error", err)
		return Completion{}, &NetworkError{Host: hostOf(cfg.Endpoint), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to read response: %w", err)
	}

	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.Int("http.status_code", resp.StatusCode)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("completion endpoint returned error status",
			"status", resp.StatusCode,
			"body_bytes", len(body),
		)
		return Completion{}, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var apiResp ChatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return Completion{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	c.recordUsage(ctx, apiResp.Usage)

	comp := Completion{
		Text:       FallbackText,
		Model:      apiResp.Model,
		StatusCode: resp.StatusCode,
		Usage:      apiResp.Usage,
	}
	if len(apiResp.Choices) > 0 && apiResp.Choices[0].Message.Content != nil {
		comp.Text = *apiResp.Choices[0].Message.Content
	}

	c.logger.Info("completion received",
		"model", apiResp.Model,
		"status", resp.StatusCode,
		"chars", len([]rune(comp.Text)),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return comp, nil
}

var usageKinds = []string{"prompt_tokens", "completion_tokens", "total_tokens"}

// recordUsage records one counter per field of the response usage block
func (c *Client) recordUsage(ctx context.Context, usage Usage) {
	for kind, n := range map[string]int64{
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.TotalTokens,
	} {
		if n > 0 {
			c.usage[kind].Add(ctx, n)
		}
	}
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
