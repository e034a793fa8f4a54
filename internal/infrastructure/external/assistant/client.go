// Package assistant implements the client for the chat assistant provider
// and the local store for the learner's provider key.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vibecoding/vibe-academy/internal/domain/shared"
	"github.com/vibecoding/vibe-academy/pkg/circuitbreaker"
	"github.com/vibecoding/vibe-academy/pkg/logger"
	"github.com/vibecoding/vibe-academy/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4o-mini"

	completionsPath  = "/v1/chat/completions"
	maxResponseBytes = 1 << 20
)

// ClientConfig contains configuration for the assistant client.
type ClientConfig struct {
	BaseURL   string
	Model     string
	MaxTokens int

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	RateLimiterConfig RateLimiterConfig

	// Overrides for tests.
	HTTPClient *http.Client
	Retrier    *retry.Retrier
	Breaker    *circuitbreaker.CircuitBreaker

	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:           DefaultBaseURL,
		Model:             DefaultModel,
		MaxTokens:         800,
		Timeout:           30 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to a chat-completions compatible provider. The API key is
// passed per call so the client itself holds no secret.
type Client struct {
	endpoint    string
	model       string
	maxTokens   int
	httpClient  *http.Client
	rateLimiter *RateLimiter
	retrier     *retry.Retrier
	breaker     *circuitbreaker.CircuitBreaker
	log         *logger.Logger
}

// NewClient creates an assistant client.
func NewClient(cfg ClientConfig) *Client {
	defaults := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RateLimiterConfig == (RateLimiterConfig{}) {
		cfg.RateLimiterConfig = defaults.RateLimiterConfig
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("assistant"))

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	retrier := cfg.Retrier
	if retrier == nil {
		retrier = retry.ExternalServiceRetrier(retry.IsRetryable, func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying assistant request",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		})
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = circuitbreaker.RemoteServiceBreaker("assistant", isProviderFailure,
			func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			})
	}

	return &Client{
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + completionsPath,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		httpClient:  httpClient,
		rateLimiter: NewRateLimiter(cfg.RateLimiterConfig),
		retrier:     retrier,
		breaker:     breaker,
		log:         log,
	}
}

// Complete sends the conversation and returns the assistant's reply.
func (c *Client) Complete(ctx context.Context, apiKey string, messages []MessageDTO) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", shared.ErrAssistantNoCredential
	}
	if len(messages) == 0 {
		return "", shared.NewDomainError("assistant", "Complete", shared.ErrEmptyValue, "conversation is empty")
	}

	body := ChatRequestDTO{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	}

	var reply string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return fmt.Errorf("%w: %w", shared.ErrAssistantUnavailable, err)
			}
			text, err := c.doSingleRequest(ctx, apiKey, body)
			if err != nil {
				return err
			}
			reply = text
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", shared.ErrAssistantUnavailable, err)
		}
		var re *retry.RetryableError
		if errors.As(err, &re) {
			return "", re.Err
		}
		return "", err
	}
	return reply, nil
}

// State exposes the breaker state for health reporting.
func (c *Client) State() circuitbreaker.State {
	return c.breaker.State()
}

func (c *Client) doSingleRequest(ctx context.Context, apiKey string, body ChatRequestDTO) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("assistant: marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("%w: %v", shared.ErrAssistantUnavailable, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", retry.Permanent(fmt.Errorf("%w: %w", shared.ErrAssistantUnavailable, ctx.Err()))
		}
		return "", retry.Retryable(fmt.Errorf("%w: %v", shared.ErrAssistantUnavailable, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", retry.Retryable(fmt.Errorf("%w: read body: %v", shared.ErrAssistantUnavailable, err))
	}

	c.log.Debug("assistant responded",
		logger.Int("status", resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", shared.WrapError("assistant", "Complete", shared.ErrUnauthorized,
			"api key was rejected by the provider", errors.New(providerMessage(raw)))
	case resp.StatusCode == http.StatusTooManyRequests:
		c.rateLimiter.RecordRateLimitHit(parseRetryAfter(resp.Header.Get("Retry-After")))
		return "", retry.Retryable(fmt.Errorf("%w: %w", shared.ErrAssistantUnavailable, shared.ErrRateLimited))
	case resp.StatusCode >= 500:
		return "", retry.Retryable(fmt.Errorf("%w: status %d: %s", shared.ErrAssistantUnavailable, resp.StatusCode, providerMessage(raw)))
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("%w: status %d: %s", shared.ErrAssistantUnavailable, resp.StatusCode, providerMessage(raw))
	}

	var decoded ChatResponseDTO
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", shared.ErrAssistantUnavailable, err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("%w: %s", shared.ErrAssistantUnavailable, decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty reply", shared.ErrAssistantUnavailable)
	}
	return decoded.Choices[0].Message.Content, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// isProviderFailure ignores rejected keys and caller cancellations.
func isProviderFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !shared.IsUnauthorized(err)
}

func providerMessage(raw []byte) string {
	var env ErrorEnvelopeDTO
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
