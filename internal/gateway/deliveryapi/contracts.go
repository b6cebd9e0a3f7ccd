package deliveryapi

import (
	"context"

	"driver-agent/internal/domain"
)

// TokenSource supplies the bearer token attached to every upstream call.
type TokenSource interface {
	Token() string
}

// Gateway is the delivery backend surface consumed by the agent.
type Gateway interface {
	ActiveNear(ctx context.Context, loc domain.Location) ([]domain.Broadcast, error)
	Accept(ctx context.Context, deliveryID string) error
	BroadcastStatus(ctx context.Context, deliveryID string) (*BroadcastStatus, error)
}

type counter interface {
	Inc()
}
