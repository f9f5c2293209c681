package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/medvoyage/content-service/internal/queue"
)

// ClientConfig configures the HTTP generator client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds one provider round trip. LLM completions are slow;
	// default is generous.
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing calls to respect provider rate
	// limits shared across workers of one process.
	RequestsPerSecond float64
	Burst             int
}

// DefaultClientConfig returns production defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:           120 * time.Second,
		RequestsPerSecond: 2,
		Burst:             1,
	}
}

// Client calls the generation gateway over HTTP. It deliberately carries no
// retry loop: a failed call surfaces as a job failure and the queue's
// backoff policy decides when to try again.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger
}

// NewClient creates a rate-limited generator client.
func NewClient(cfg ClientConfig, logger *zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultClientConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:     logger,
	}
}

func (c *Client) GenerateContent(ctx context.Context, p queue.ContentPayload) (*Result, error) {
	return c.post(ctx, "/v1/generate/content", p)
}

func (c *Client) GenerateImage(ctx context.Context, p queue.ImagePayload) (*Result, error) {
	return c.post(ctx, "/v1/generate/image", p)
}

func (c *Client) Translate(ctx context.Context, p queue.TranslationPayload) (*Result, error) {
	return c.post(ctx, "/v1/translate", p)
}

func (c *Client) OptimizeSEO(ctx context.Context, p queue.SEOPayload) (*Result, error) {
	return c.post(ctx, "/v1/optimize/seo", p)
}

// responseEnvelope is the gateway's wire format.
type responseEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Model string          `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error string `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("generator throttle: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("generator request marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("User-Agent", "MedVoyage-ContentService/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generator call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("generator read %s: %w", path, err)
	}
	elapsed := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(raw)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, fmt.Errorf("generator %s returned HTTP %d: %s", path, resp.StatusCode, snippet)
	}

	var envelope responseEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("generator parse %s: %w", path, err)
	}
	if envelope.Error != "" {
		return nil, fmt.Errorf("generator %s: %s", path, envelope.Error)
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("generator %s: empty data", path)
	}

	c.logger.Debug().
		Str("path", path).
		Dur("elapsed", elapsed).
		Int("prompt_tokens", envelope.Usage.PromptTokens).
		Int("completion_tokens", envelope.Usage.CompletionTokens).
		Msg("Generator call completed")

	return &Result{
		Data: envelope.Data,
		Usage: Usage{
			Model:            envelope.Model,
			PromptTokens:     envelope.Usage.PromptTokens,
			CompletionTokens: envelope.Usage.CompletionTokens,
			ElapsedMs:        elapsed.Milliseconds(),
		},
	}, nil
}
