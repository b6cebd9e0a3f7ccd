package deliveryapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"driver-agent/internal/apperr"
	"driver-agent/internal/domain"
	"driver-agent/internal/logx"
)

// BreakerGateway trips a circuit breaker when the backend keeps failing, so
// the agent fails fast instead of stacking 10s timeouts on every poll tick.
// Business rejections (conflict, invalid, unauthorized) do not count as
// breaker failures.
type BreakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerGateway wraps next with a circuit breaker; returns nil if next is nil.
func NewBreakerGateway(next Gateway, logger logx.Logger) *BreakerGateway {
	if next == nil {
		return nil
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "delivery-api",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, apperr.ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				logx.String("breaker", name),
				logx.String("from", from.String()),
				logx.String("to", to.String()),
			)
		},
	})
	return &BreakerGateway{next: next, cb: cb}
}

// ActiveNear fetches active broadcasts through the breaker.
func (g *BreakerGateway) ActiveNear(ctx context.Context, loc domain.Location) ([]domain.Broadcast, error) {
	v, err := g.cb.Execute(func() (any, error) {
		return g.next.ActiveNear(ctx, loc)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return v.([]domain.Broadcast), nil
}

// Accept claims the delivery through the breaker.
func (g *BreakerGateway) Accept(ctx context.Context, deliveryID string) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.next.Accept(ctx, deliveryID)
	})
	return mapBreakerErr(err)
}

// BroadcastStatus fetches the broadcast status through the breaker.
func (g *BreakerGateway) BroadcastStatus(ctx context.Context, deliveryID string) (*BroadcastStatus, error) {
	v, err := g.cb.Execute(func() (any, error) {
		return g.next.BroadcastStatus(ctx, deliveryID)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return v.(*BroadcastStatus), nil
}

func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	return err
}

var _ Gateway = (*BreakerGateway)(nil)
