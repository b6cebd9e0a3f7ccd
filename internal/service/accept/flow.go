package accept

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"driver-agent/internal/apperr"
	"driver-agent/internal/logx"
	"driver-agent/internal/metrics"
	"driver-agent/internal/notify"
)

// ErrInFlight is returned when an accept for the same delivery has not
// completed yet (double click, duplicate render). No upstream call is made.
var ErrInFlight = errors.New("accept already in flight")

// Flow performs the "claim this delivery" action with at-most-one effective
// submission per delivery. The backend stays the single source of truth for
// who won: a losing driver converges through the removal event, never through
// local inference.
type Flow struct {
	gateway  acceptGateway
	state    broadcastState
	notifier notify.Notifier
	logger   logx.Logger
	attempts *prometheus.CounterVec
	clock    clock

	operationTimeout time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewFlow creates an acceptance flow.
func NewFlow(
	gateway acceptGateway,
	state broadcastState,
	notifier notify.Notifier,
	logger logx.Logger,
	attempts *prometheus.CounterVec,
	clk clock,
	timeout time.Duration,
) *Flow {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Flow{
		gateway:          gateway,
		state:            state,
		notifier:         notifier,
		logger:           logger,
		attempts:         attempts,
		clock:            clk,
		operationTimeout: timeout,
		inFlight:         make(map[string]struct{}),
	}
}

// Accept claims the delivery. Preconditions: the id must reference a
// currently visible, non-expired broadcast, and no accept for the same id may
// be in flight. A timeout or network error counts as failure, not success,
// and leaves the broadcast visible for retry.
func (f *Flow) Accept(ctx context.Context, deliveryID string) error {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return apperr.ErrInvalid
	}
	if !f.state.Visible(deliveryID, f.clock.Now()) {
		return apperr.ErrNotFound
	}

	if !f.markInFlight(deliveryID) {
		return ErrInFlight
	}
	defer f.clearInFlight(deliveryID)

	ctx, cancel := context.WithTimeout(ctx, f.operationTimeout)
	defer cancel()

	err := f.gateway.Accept(ctx, deliveryID)
	switch {
	case err == nil:
		f.state.MarkAccepted(deliveryID)
		f.count(metrics.OutcomeSuccess)
		f.notifier.Success("Delivery accepted")
		f.logger.Info("delivery accepted",
			logx.String("event", "delivery_accepted"),
			logx.String("delivery_id", deliveryID),
		)
		return nil

	case errors.Is(err, apperr.ErrConflict):
		// won by another driver; our copy disappears when the removal
		// event arrives, not here
		f.count(metrics.OutcomeConflict)
		f.notifier.Warning("Delivery is no longer available")
		f.logger.Info("delivery accept conflict",
			logx.String("delivery_id", deliveryID),
			logx.Any("err", err),
		)
		return err

	case errors.Is(err, apperr.ErrUnauthorized):
		f.count(metrics.OutcomeError)
		f.notifier.Error("Session expired, please sign in again")
		return err

	default:
		f.count(metrics.OutcomeError)
		f.notifier.Error("Could not accept delivery, please try again")
		f.logger.Warn("delivery accept failed",
			logx.String("delivery_id", deliveryID),
			logx.Any("err", err),
		)
		return err
	}
}

func (f *Flow) markInFlight(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.inFlight[id]; ok {
		return false
	}
	f.inFlight[id] = struct{}{}
	return true
}

func (f *Flow) clearInFlight(id string) {
	f.mu.Lock()
	delete(f.inFlight, id)
	f.mu.Unlock()
}

func (f *Flow) count(outcome string) {
	if f.attempts != nil {
		f.attempts.WithLabelValues(outcome).Inc()
	}
}
