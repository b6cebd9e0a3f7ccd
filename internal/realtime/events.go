package realtime

import "sort"

// CanonicalEvent is the semantic meaning of a wire event name.
type CanonicalEvent string

// List of canonical events
const (
	EventUnknown       CanonicalEvent = ""
	EventNewBroadcast  CanonicalEvent = "new-broadcast"
	EventRemove        CanonicalEvent = "remove-broadcast"
	EventStatusChanged CanonicalEvent = "status-changed"
)

// eventTable maps every historical wire spelling to its canonical meaning.
// The synonym sprawl is contained here; the state machine only ever sees
// canonical events.
var eventTable = map[string]CanonicalEvent{
	"delivery-broadcast":      EventNewBroadcast,
	"new-delivery":            EventNewBroadcast,
	"delivery-notification":   EventNewBroadcast,
	"delivery-created":        EventNewBroadcast,
	"broadcast-delivery":      EventNewBroadcast,
	"test-delivery-broadcast": EventNewBroadcast,

	"delivery-accepted-by-other": EventRemove,
	"broadcast-expired":          EventRemove,
	"delivery-closed":            EventRemove,

	"delivery-status-changed": EventStatusChanged,
}

// removalStatuses are the delivery-status-changed statuses that end a broadcast.
var removalStatuses = map[string]struct{}{
	"assigned":  {},
	"completed": {},
}

// Canonical resolves a wire event name; unknown names map to EventUnknown.
func Canonical(name string) CanonicalEvent {
	return eventTable[name]
}

// KnownEvents returns every wire event name the adapter subscribes to,
// sorted for deterministic binding.
func KnownEvents() []string {
	out := make([]string, 0, len(eventTable))
	for name := range eventTable {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
