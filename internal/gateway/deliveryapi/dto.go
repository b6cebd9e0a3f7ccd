package deliveryapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"driver-agent/internal/domain"
)

// wireTime accepts both representations the backend has used over time:
// RFC3339 strings and millisecond epoch numbers.
type wireTime struct {
	time.Time
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

type broadcastDTO struct {
	DeliveryID        string   `json:"deliveryId"`
	DeliveryCode      string   `json:"deliveryCode"`
	PickupLocation    string   `json:"pickupLocation"`
	DeliveryLocation  string   `json:"deliveryLocation"`
	CustomerName      string   `json:"customerName"`
	CustomerPhone     string   `json:"customerPhone"`
	Fee               float64  `json:"fee"`
	DriverEarning     float64  `json:"driverEarning"`
	Priority          string   `json:"priority"`
	BroadcastDuration int      `json:"broadcastDuration"`
	BroadcastEndTime  wireTime `json:"broadcastEndTime"`
	CreatedAt         wireTime `json:"createdAt"`
}

func (d broadcastDTO) toDomain() domain.Broadcast {
	return domain.Broadcast{
		ID:               d.DeliveryID,
		Code:             d.DeliveryCode,
		PickupLocation:   d.PickupLocation,
		DeliveryLocation: d.DeliveryLocation,
		CustomerName:     d.CustomerName,
		CustomerPhone:    d.CustomerPhone,
		Fee:              d.Fee,
		DriverEarning:    d.DriverEarning,
		Priority:         domain.Priority(d.Priority),
		Duration:         d.BroadcastDuration,
		EndTime:          d.BroadcastEndTime.Time,
		CreatedAt:        d.CreatedAt.Time,
	}
}

type activeBroadcastsResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Broadcasts []broadcastDTO `json:"broadcasts"`
	} `json:"data"`
	Message string `json:"message"`
}

type acceptResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type broadcastStatusResponse struct {
	Success bool `json:"success"`
	Data    struct {
		BroadcastStatus string `json:"broadcastStatus"`
		IsExpired       bool   `json:"isExpired"`
		AssignedTo      string `json:"assignedTo"`
		CanBeAccepted   bool   `json:"canBeAccepted"`
	} `json:"data"`
	Message string `json:"message"`
}

// BroadcastStatus is the upstream view of one broadcast's lifecycle.
type BroadcastStatus struct {
	Status        string
	IsExpired     bool
	AssignedTo    string
	CanBeAccepted bool
}
