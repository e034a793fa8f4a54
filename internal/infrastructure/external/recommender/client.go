// Package recommender implements the HTTP client for the course
// recommendation service. The client never decides whether a result is good
// enough; that rule lives in the recommendation domain package.
package recommender

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

	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
	"github.com/vibecoding/vibe-academy/internal/domain/recommendation"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
	"github.com/vibecoding/vibe-academy/pkg/circuitbreaker"
	"github.com/vibecoding/vibe-academy/pkg/logger"
	"github.com/vibecoding/vibe-academy/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultPath is the endpoint of the recommendation function.
const DefaultPath = "/functions/v1/recommend-modules"

// maxResponseBytes caps the body read from the service.
const maxResponseBytes = 1 << 20

// ClientConfig contains configuration for the recommendation client.
type ClientConfig struct {
	// BaseURL is the service base URL.
	BaseURL string

	// Path is appended to BaseURL. Defaults to DefaultPath.
	Path string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client

	// Retrier and Breaker override the presets (tests).
	Retrier *retry.Retrier
	Breaker *circuitbreaker.CircuitBreaker

	Logger *logger.Logger
}

// DefaultClientConfig returns defaults for the given base URL.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Path:    DefaultPath,
		Timeout: 10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client calls the recommendation service. It implements recommendation.Remote.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	log        *logger.Logger
}

var _ recommendation.Remote = (*Client)(nil)

// NewClient creates a recommendation client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("recommender: base URL is required")
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("recommender"))

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	retrier := cfg.Retrier
	if retrier == nil {
		retrier = retry.ExternalServiceRetrier(retry.IsRetryable, func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying recommendation request",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		})
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = circuitbreaker.RemoteServiceBreaker("recommender", countsAsFailure,
			func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			})
	}

	return &Client{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + cfg.Path,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		retrier:    retrier,
		breaker:    breaker,
		log:        log,
	}, nil
}

// Recommend sends the onboarding signals to the service. Any failure is
// reported as ErrRecommenderUnavailable or ErrRecommenderResponse; an open
// circuit fails fast.
func (c *Client) Recommend(ctx context.Context, signals onboarding.Signals) (recommendation.RemoteResult, error) {
	body := requestFromSignals(signals)

	var resp RecommendResponseDTO
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doSingleRequest(ctx, body, &resp)
		})
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return recommendation.RemoteResult{}, fmt.Errorf("%w: %v", shared.ErrRecommenderUnavailable, err)
		}
		return recommendation.RemoteResult{}, unwrapRetryable(err)
	}

	c.log.Debug("recommendation received",
		logger.Int("modules", len(resp.Modules)),
		logger.String("method", resp.Method),
	)
	return resp.toDomain(), nil
}

// State exposes the breaker state for health reporting.
func (c *Client) State() circuitbreaker.State {
	return c.breaker.State()
}

// doSingleRequest performs one HTTP attempt. Transient failures are wrapped
// with retry.Retryable.
func (c *Client) doSingleRequest(ctx context.Context, body RecommendRequestDTO, result *RecommendResponseDTO) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("recommender: marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("%w: %v", shared.ErrRecommenderUnavailable, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(fmt.Errorf("%w: %w", shared.ErrRecommenderUnavailable, ctx.Err()))
		}
		return retry.Retryable(fmt.Errorf("%w: %v", shared.ErrRecommenderUnavailable, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return retry.Retryable(fmt.Errorf("%w: read body: %v", shared.ErrRecommenderUnavailable, err))
	}

	c.log.Debug("recommendation service responded",
		logger.Int("status", resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("%w: status %d: %s", shared.ErrRecommenderUnavailable, resp.StatusCode, apiErrorMessage(raw))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.Retryable(statusErr)
		}
		return statusErr
	}

	var decoded RecommendResponseDTO
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrRecommenderResponse, err)
	}
	if decoded.Error != "" {
		return fmt.Errorf("%w: %s", shared.ErrRecommenderResponse, decoded.Error)
	}
	if decoded.Modules == nil {
		return fmt.Errorf("%w: modules missing", shared.ErrRecommenderResponse)
	}

	*result = decoded
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// countsAsFailure keeps caller cancellations out of the breaker statistics.
func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func apiErrorMessage(raw []byte) string {
	var apiErr APIErrorDTO
	if err := json.Unmarshal(raw, &apiErr); err == nil {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.Error != "" {
			return apiErr.Error
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func unwrapRetryable(err error) error {
	var re *retry.RetryableError
	if errors.As(err, &re) {
		return re.Err
	}
	return err
}
