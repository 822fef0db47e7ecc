package ai

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/zhouzirui/jelajah/backend/internal/logging"
	"github.com/zhouzirui/jelajah/backend/internal/metrics"
	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
	"github.com/zhouzirui/jelajah/backend/internal/service/retry"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxLength = 2000

	probeMessage = "ping"
)

// Client validates input and calls a Backend under the retry policy.
// It never touches the message store.
type Client struct {
	backend   Backend
	policy    retry.Policy
	clock     retry.Clock
	timeout   time.Duration
	maxLength int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option customises a Client.
type Option func(*Client)

// WithPolicy sets the retry policy.
func WithPolicy(policy retry.Policy) Option {
	return func(c *Client) { c.policy = policy }
}

// WithClock replaces the clock used between attempts.
func WithClock(clock retry.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithTimeout bounds each attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithMaxLength sets the maximum message length in runes.
func WithMaxLength(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxLength = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NewClient wraps backend.
func NewClient(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:   backend,
		policy:    retry.DefaultPolicy(),
		clock:     retry.RealClock,
		timeout:   defaultTimeout,
		maxLength: defaultMaxLength,
		logger:    zap.NewNop(),
		metrics:   metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BackendName reports which backend serves generation.
func (c *Client) BackendName() string {
	return c.backend.Name()
}

// Validate checks message before any backend call.
func (c *Client) Validate(message string) error {
	if strings.TrimSpace(message) == "" {
		return chat.NewValidationError("message", "message is required")
	}
	if n := utf8.RuneCountInString(message); n > c.maxLength {
		return chat.NewValidationError("message", "message exceeds the maximum length")
	}
	return nil
}

// Generate returns the backend's reply to message. Failures after validation
// are reported as *chat.GenerationError.
func (c *Client) Generate(ctx context.Context, history []chat.ContextMessage, message string) (string, error) {
	if err := c.Validate(message); err != nil {
		return "", err
	}
	return c.generate(ctx, c.policy, history, message)
}

// Probe makes a single attempt with a trivial message.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.generate(ctx, retry.NoRetry(), nil, probeMessage)
	return err
}

func (c *Client) generate(ctx context.Context, policy retry.Policy, history []chat.ContextMessage, message string) (string, error) {
	backend := c.backend.Name()
	logger := logging.FromContext(ctx, c.logger).With(zap.String("backend", backend))
	started := time.Now()

	var reply string
	attempts, err := retry.Do(ctx, policy, c.clock, IsTransient, func(ctx context.Context, attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		out, err := c.backend.Generate(attemptCtx, history, message)
		if err == nil && strings.TrimSpace(out) == "" {
			err = retry.Transient(ErrEmptyReply)
		}
		if err != nil {
			result := "permanent"
			if IsTransient(err) {
				result = "transient"
			}
			c.metrics.RecordAttempt(backend, result)
			logger.Warn("generation attempt failed",
				zap.Int("attempt", attempt),
				zap.String("class", result),
				zap.Error(err),
			)
			return err
		}

		c.metrics.RecordAttempt(backend, "success")
		reply = out
		return nil
	})
	c.metrics.ObserveGeneration(backend, time.Since(started))

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			logger.Info("generation cancelled by caller", zap.Int("attempts", attempts))
		}
		return "", &chat.GenerationError{Backend: backend, Attempts: attempts, Cause: err}
	}

	logger.Debug("generated reply",
		zap.Int("attempts", attempts),
		zap.Int("length", len(reply)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return reply, nil
}
