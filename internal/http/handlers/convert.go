package handlers

import (
	"time"

	"driver-agent/internal/domain"
)

func broadcastToDTO(b domain.Broadcast, now time.Time) broadcastDTO {
	return broadcastDTO{
		DeliveryID:       b.ID,
		DeliveryCode:     b.Code,
		PickupLocation:   b.PickupLocation,
		DeliveryLocation: b.DeliveryLocation,
		CustomerName:     b.CustomerName,
		Fee:              b.Fee,
		DriverEarning:    b.DriverEarning,
		Priority:         string(b.Priority),
		RemainingSeconds: b.Remaining(now),
		BroadcastEndTime: b.EndTime,
	}
}
