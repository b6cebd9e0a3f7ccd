package accept

import (
	"context"
	"time"
)

// broadcastState is the subset of the broadcast container the flow needs.
type broadcastState interface {
	Visible(id string, now time.Time) bool
	MarkAccepted(id string)
}

// acceptGateway performs the upstream claim call.
type acceptGateway interface {
	Accept(ctx context.Context, deliveryID string) error
}

// clock provides current time.
type clock interface {
	Now() time.Time
}
