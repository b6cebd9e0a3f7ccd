package realtime

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"driver-agent/internal/domain"
)

// flexTime tolerates every timestamp shape the backends have emitted:
// RFC3339 strings, millisecond epochs, and null.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
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
			// unparseable timestamp degrades to "absent", defaults kick in
			t.Time = time.Time{}
			return nil
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// broadcastPayload is the lenient wire shape of a "new broadcast" event.
// Older emitters used "id"/"_id" instead of "deliveryId".
type broadcastPayload struct {
	DeliveryID        string   `json:"deliveryId"`
	AltID             string   `json:"id"`
	MongoID           string   `json:"_id"`
	DeliveryCode      string   `json:"deliveryCode"`
	PickupLocation    string   `json:"pickupLocation"`
	DeliveryLocation  string   `json:"deliveryLocation"`
	CustomerName      string   `json:"customerName"`
	CustomerPhone     string   `json:"customerPhone"`
	Fee               float64  `json:"fee"`
	DriverEarning     float64  `json:"driverEarning"`
	Priority          string   `json:"priority"`
	BroadcastDuration int      `json:"broadcastDuration"`
	BroadcastEndTime  flexTime `json:"broadcastEndTime"`
	CreatedAt         flexTime `json:"createdAt"`
}

func (p broadcastPayload) id() string {
	switch {
	case p.DeliveryID != "":
		return p.DeliveryID
	case p.AltID != "":
		return p.AltID
	default:
		return p.MongoID
	}
}

func (p broadcastPayload) toDomain() domain.Broadcast {
	return domain.Broadcast{
		ID:               p.id(),
		Code:             p.DeliveryCode,
		PickupLocation:   p.PickupLocation,
		DeliveryLocation: p.DeliveryLocation,
		CustomerName:     p.CustomerName,
		CustomerPhone:    p.CustomerPhone,
		Fee:              p.Fee,
		DriverEarning:    p.DriverEarning,
		Priority:         domain.Priority(p.Priority),
		Duration:         p.BroadcastDuration,
		EndTime:          p.BroadcastEndTime.Time,
		CreatedAt:        p.CreatedAt.Time,
	}
}

// removalPayload is the wire shape of every "remove" flavored event.
type removalPayload struct {
	DeliveryID string `json:"deliveryId"`
	AltID      string `json:"id"`
	Status     string `json:"status"`
}

func (p removalPayload) id() string {
	if p.DeliveryID != "" {
		return p.DeliveryID
	}
	return p.AltID
}

// decodeRemoval accepts both an object payload and a bare string id.
func decodeRemoval(payload []byte) (removalPayload, bool) {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '"' {
		var id string
		if err := json.Unmarshal(payload, &id); err != nil {
			return removalPayload{}, false
		}
		return removalPayload{DeliveryID: id}, id != ""
	}
	var p removalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return removalPayload{}, false
	}
	return p, p.id() != ""
}
