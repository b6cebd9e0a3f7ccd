package notify

import (
	"sync"
	"time"

	"driver-agent/internal/logx"
)

// Level classifies a user-facing notification.
type Level string

// List of notification levels
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a single user-facing message (the toast abstraction).
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier is the single channel for user-visible messages. Everything the
// driver must see (accept conflicts, fetch failures, expiries) goes through
// it; console-only logging is not a substitute.
type Notifier interface {
	Info(msg string)
	Success(msg string)
	Warning(msg string)
	Error(msg string)
}

// Ring keeps the most recent notifications in memory for the dashboard feed
// and mirrors them to the structured log.
type Ring struct {
	logger logx.Logger
	cap    int
	now    func() time.Time

	mu    sync.Mutex
	items []Notification
}

// NewRing creates a notification ring with the given capacity.
func NewRing(logger logx.Logger, capacity int) *Ring {
	if capacity <= 0 {
		capacity = 50
	}
	return &Ring{
		logger: logger,
		cap:    capacity,
		now:    time.Now,
	}
}

func (r *Ring) push(level Level, msg string) {
	r.mu.Lock()
	r.items = append(r.items, Notification{Level: level, Message: msg, At: r.now()})
	if len(r.items) > r.cap {
		r.items = r.items[len(r.items)-r.cap:]
	}
	r.mu.Unlock()

	r.logger.Info("notification",
		logx.String("level", string(level)),
		logx.String("message", msg),
	)
}

// Info publishes an informational message.
func (r *Ring) Info(msg string) { r.push(LevelInfo, msg) }

// Success publishes a success message.
func (r *Ring) Success(msg string) { r.push(LevelSuccess, msg) }

// Warning publishes a warning message.
func (r *Ring) Warning(msg string) { r.push(LevelWarning, msg) }

// Error publishes an error message.
func (r *Ring) Error(msg string) { r.push(LevelError, msg) }

// Recent returns up to n most recent notifications, newest last.
func (r *Ring) Recent(n int) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > len(r.items) {
		n = len(r.items)
	}
	out := make([]Notification, n)
	copy(out, r.items[len(r.items)-n:])
	return out
}

var _ Notifier = (*Ring)(nil)

// Nop returns a Notifier that drops everything (tests).
func Nop() Notifier { return nop{} }

type nop struct{}

func (nop) Info(string)    {}
func (nop) Success(string) {}
func (nop) Warning(string) {}
func (nop) Error(string)   {}
