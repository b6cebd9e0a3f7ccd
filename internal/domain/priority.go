package domain

// Priority represents the display priority of a broadcast.
type Priority string

// List of possible broadcast priorities
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var allowedPriorities = [...]Priority{
	PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent,
}

// Valid checks if the Priority is valid
func (p Priority) Valid() bool {
	for _, v := range allowedPriorities {
		if p == v {
			return true
		}
	}
	return false
}
