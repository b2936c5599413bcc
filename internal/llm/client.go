package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rcliao/monologue/internal/metrics"
)

// DefaultMinInterval is the minimum spacing between service attempts.
const DefaultMinInterval = time.Second

// Client wraps a Provider with request spacing and bounded retry. It is safe
// for concurrent use; spacing is shared across all callers.
type Client struct {
	provider    Provider
	retryConfig RetryConfig
	limiter     *rate.Limiter
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(c *Client) {
		c.retryConfig = cfg
	}
}

// WithMinInterval sets the minimum spacing between attempts. Zero disables
// spacing.
func WithMinInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.limiter = newLimiter(d)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records attempts into m.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

func newLimiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// NewClient creates a client over p.
func NewClient(p Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider:    p,
		retryConfig: DefaultRetryConfig(),
		limiter:     newLimiter(DefaultMinInterval),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider { return c.provider }

// Complete sends req, waiting for the spacing limiter before every attempt
// and retrying transient failures with exponential backoff. Token-limit and
// fatal errors return immediately.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Prompt == "" {
		return nil, NewFatalError(fmt.Errorf("prompt is required"))
	}

	requestID := uuid.New().String()
	log := c.logger.With(
		zap.String("request_id", requestID),
		zap.String("label", req.Label),
		zap.String("provider", c.provider.Name()),
	)

	attempts := 0
	op := func() (*Response, error) {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		start := time.Now()
		resp, err := c.provider.Generate(ctx, req)
		c.metrics.ObserveRequest(c.provider.Name(), outcome(err), time.Since(start))
		if err == nil {
			return resp, nil
		}

		log.Debug("generation attempt failed",
			zap.Int("attempt", attempts),
			zap.String("outcome", outcome(err)),
			zap.Error(err))

		if IsTransient(err) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		c.metrics.Retry()
		log.Warn("retrying generation request",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", c.retryConfig.MaxAttempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	policy := backoff.WithContext(c.retryConfig.policy(), ctx)
	resp, err := backoff.RetryNotifyWithData(op, policy, notify)
	if err != nil {
		return nil, fmt.Errorf("complete %s after %d attempt(s): %w", req.Label, attempts, err)
	}

	resp.RequestID = requestID
	resp.Attempts = attempts
	log.Debug("generation request complete",
		zap.Int("attempts", attempts),
		zap.String("finish_reason", resp.FinishReason),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return resp, nil
}
