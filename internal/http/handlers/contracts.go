package handlers

import (
	"context"
	"time"

	"driver-agent/internal/domain"
	"driver-agent/internal/gateway/deliveryapi"
	"driver-agent/internal/notify"
)

// broadcastReader is the read side of the broadcast container.
type broadcastReader interface {
	List() []domain.Broadcast
	Get(id string) (domain.Broadcast, bool)
	Accepted(id string) bool
}

// acceptFlow claims a delivery.
type acceptFlow interface {
	Accept(ctx context.Context, deliveryID string) error
}

// driverState mutates and reads the driver position held by the coordinator.
type driverState interface {
	Location() domain.Location
	SetLocation(ctx context.Context, loc domain.Location) (int, error)
	Refresh(ctx context.Context) (int, error)
}

// statusGateway looks the broadcast status up at the upstream API.
type statusGateway interface {
	BroadcastStatus(ctx context.Context, deliveryID string) (*deliveryapi.BroadcastStatus, error)
}

// notificationReader returns the most recent user-facing notifications.
type notificationReader interface {
	Recent(n int) []notify.Notification
}

type clock interface {
	Now() time.Time
}
