package domain

import "time"

// Broadcast - a delivery actively open for driver acceptance.
type Broadcast struct {
	ID               string
	Code             string
	PickupLocation   string
	DeliveryLocation string
	CustomerName     string
	CustomerPhone    string
	Fee              float64
	DriverEarning    float64
	Priority         Priority
	Duration         int // seconds of visibility
	EndTime          time.Time
	CreatedAt        time.Time
}

// Placeholder values for fields the backend may omit.
const (
	PlaceholderLocation = "(location unavailable)"
	PlaceholderCustomer = "(customer)"

	// DefaultDuration is the visibility window applied when the backend
	// sends no broadcast duration.
	DefaultDuration = 60
)

// Normalize fills absent or malformed fields with safe defaults so that a
// partial payload never produces an unrenderable broadcast. EndTime is the
// authoritative end-of-visibility instant; when missing it is derived from
// the duration starting at first observation.
func (b *Broadcast) Normalize(now time.Time) {
	if b.Duration <= 0 {
		b.Duration = DefaultDuration
	}
	if b.EndTime.IsZero() {
		b.EndTime = now.Add(time.Duration(b.Duration) * time.Second)
	}
	if b.PickupLocation == "" {
		b.PickupLocation = PlaceholderLocation
	}
	if b.DeliveryLocation == "" {
		b.DeliveryLocation = PlaceholderLocation
	}
	if b.CustomerName == "" {
		b.CustomerName = PlaceholderCustomer
	}
	if !b.Priority.Valid() {
		b.Priority = PriorityNormal
	}
	if b.Fee < 0 {
		b.Fee = 0
	}
	if b.DriverEarning < 0 {
		b.DriverEarning = 0
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
}

// Expired reports whether the visibility window has elapsed.
func (b *Broadcast) Expired(now time.Time) bool {
	return !b.EndTime.After(now)
}

// Remaining returns whole seconds left in the visibility window, never negative.
func (b *Broadcast) Remaining(now time.Time) int {
	d := b.EndTime.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}
