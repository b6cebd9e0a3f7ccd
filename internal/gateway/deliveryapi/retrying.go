package deliveryapi

import (
	"context"
	"errors"
	"time"

	"driver-agent/internal/apperr"
	"driver-agent/internal/domain"
	"driver-agent/internal/logx"
)

// RetryConfig describes RetryingGateway behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryingGateway retries transient failures of the read-only calls with
// exponential backoff. Accept is deliberately passed through with a single
// attempt: retrying a claim could turn one user action into several upstream
// submissions.
type RetryingGateway struct {
	next    Gateway
	logger  logx.Logger
	retries counter
	cfg     RetryConfig
}

// NewRetryingGateway wraps next with retry behavior; returns nil if next is nil.
func NewRetryingGateway(next Gateway, logger logx.Logger, retries counter, cfg RetryConfig) *RetryingGateway {
	if next == nil {
		return nil
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &RetryingGateway{next: next, logger: logger, retries: retries, cfg: cfg}
}

// ActiveNear fetches active broadcasts, retrying transient failures.
func (g *RetryingGateway) ActiveNear(ctx context.Context, loc domain.Location) ([]domain.Broadcast, error) {
	var (
		out     []domain.Broadcast
		lastErr error
	)
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		var err error
		out, err = g.next.ActiveNear(ctx, loc)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == g.cfg.MaxAttempts || !isRetryable(err) {
			break
		}
		g.waitBeforeRetry(ctx, "ActiveNear", attempt, err)
	}
	return nil, lastErr
}

// Accept performs exactly one upstream attempt.
func (g *RetryingGateway) Accept(ctx context.Context, deliveryID string) error {
	return g.next.Accept(ctx, deliveryID)
}

// BroadcastStatus fetches the broadcast status, retrying transient failures.
func (g *RetryingGateway) BroadcastStatus(ctx context.Context, deliveryID string) (*BroadcastStatus, error) {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		st, err := g.next.BroadcastStatus(ctx, deliveryID)
		if err == nil {
			return st, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == g.cfg.MaxAttempts || !isRetryable(err) {
			break
		}
		g.waitBeforeRetry(ctx, "BroadcastStatus", attempt, err)
	}
	return nil, lastErr
}

func (g *RetryingGateway) waitBeforeRetry(ctx context.Context, method string, attempt int, err error) {
	delay := backoff(g.cfg.BaseDelay, g.cfg.MaxDelay, attempt)
	if g.retries != nil {
		g.retries.Inc()
	}
	g.logger.Warn("delivery gateway retry",
		logx.String("method", method),
		logx.Int("attempt", attempt),
		logx.Duration("delay", delay),
		logx.Any("err", err),
	)
	sleepWithContext(ctx, delay)
}

// isRetryable reports whether the failure class is worth another attempt.
func isRetryable(err error) bool {
	return errors.Is(err, apperr.ErrUnavailable)
}

// backoff computes the retry delay.
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > max {
		return max
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var _ Gateway = (*RetryingGateway)(nil)
