package broadcast

import (
	"context"

	"driver-agent/internal/domain"
)

// SnapshotFetcher fetches the active broadcasts near a location from the
// delivery backend.
type SnapshotFetcher interface {
	ActiveNear(ctx context.Context, loc domain.Location) ([]domain.Broadcast, error)
}

type counter interface {
	Inc()
}
