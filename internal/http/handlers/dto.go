package handlers

import (
	"time"

	"driver-agent/internal/notify"
)

type broadcastDTO struct {
	DeliveryID       string    `json:"deliveryId"`
	DeliveryCode     string    `json:"deliveryCode,omitempty"`
	PickupLocation   string    `json:"pickupLocation"`
	DeliveryLocation string    `json:"deliveryLocation"`
	CustomerName     string    `json:"customerName"`
	Fee              float64   `json:"fee"`
	DriverEarning    float64   `json:"driverEarning"`
	Priority         string    `json:"priority"`
	RemainingSeconds int       `json:"remainingSeconds"`
	BroadcastEndTime time.Time `json:"broadcastEndTime"`
}

type listBroadcastsResponse struct {
	Count      int            `json:"count"`
	Added      int            `json:"added,omitempty"`
	Broadcasts []broadcastDTO `json:"broadcasts"`
}

type acceptResponse struct {
	DeliveryID string `json:"deliveryId"`
	Accepted   bool   `json:"accepted"`
}

type statusResponse struct {
	DeliveryID    string `json:"deliveryId"`
	Status        string `json:"status"`
	IsExpired     bool   `json:"isExpired"`
	AssignedTo    string `json:"assignedTo,omitempty"`
	CanBeAccepted bool   `json:"canBeAccepted"`
	AcceptedByMe  bool   `json:"acceptedByMe"`
}

type updateLocationRequest struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type updateLocationResponse struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Added int     `json:"added"`
}

type notificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}
