package realtime

import (
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"

	"driver-agent/internal/domain"
	"driver-agent/internal/logx"
	"driver-agent/internal/metrics"
	"driver-agent/internal/notify"
)

// stateContainer is the subset of the broadcast container the adapter mutates.
type stateContainer interface {
	Add(b domain.Broadcast) bool
	Remove(id string) bool
}

// Adapter translates named wire events into broadcast state mutations. It is
// the only component aware of the event-name synonyms; whatever arrives, the
// container sees plain adds and removes. Handlers never propagate a panic or
// an error into the transport's listener chain.
type Adapter struct {
	state    stateContainer
	logger   logx.Logger
	notifier notify.Notifier
	removed  *prometheus.CounterVec
}

// NewAdapter creates a realtime event adapter.
func NewAdapter(state stateContainer, logger logx.Logger, notifier notify.Notifier, removed *prometheus.CounterVec) *Adapter {
	return &Adapter{state: state, logger: logger, notifier: notifier, removed: removed}
}

// Bind subscribes the adapter to every known event name on the transport and
// returns the disposers; the caller invokes them on teardown.
func (a *Adapter) Bind(t Transport) []Disposer {
	events := KnownEvents()
	disposers := make([]Disposer, 0, len(events))
	for _, ev := range events {
		disposers = append(disposers, t.On(ev, a.Dispatch))
	}
	return disposers
}

// Dispatch applies one raw event to the state. Malformed or partial payloads
// are logged and dropped; they never crash the listener chain.
func (a *Adapter) Dispatch(event string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("realtime handler panic",
				logx.String("received_event", event),
				logx.Any("panic", r),
			)
		}
	}()

	switch Canonical(event) {
	case EventNewBroadcast:
		a.onNewBroadcast(event, payload)
	case EventRemove:
		a.onRemove(event, payload)
	case EventStatusChanged:
		a.onStatusChanged(event, payload)
	default:
		a.logger.Debug("ignoring unknown realtime event", logx.String("received_event", event))
	}
}

func (a *Adapter) onNewBroadcast(event string, payload []byte) {
	var p broadcastPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		a.logger.Warn("malformed broadcast payload",
			logx.String("received_event", event),
			logx.Any("err", err),
		)
		return
	}
	b := p.toDomain()
	if b.ID == "" {
		a.logger.Warn("broadcast payload without delivery id", logx.String("received_event", event))
		return
	}

	if !a.state.Add(b) {
		// duplicate, already accepted, or tombstoned
		a.logger.Debug("duplicate broadcast ignored", logx.String("delivery_id", b.ID))
		return
	}
	a.logger.Info("broadcast received",
		logx.String("delivery_id", b.ID),
		logx.String("received_event", event),
		logx.Float64("fee", b.Fee),
	)
	a.notifier.Info("New delivery available: " + b.CustomerName)
}

func (a *Adapter) onRemove(event string, payload []byte) {
	p, ok := decodeRemoval(payload)
	if !ok {
		a.logger.Warn("malformed removal payload", logx.String("received_event", event))
		return
	}
	if !a.state.Remove(p.id()) {
		return
	}

	reason := metrics.ReasonClosed
	switch event {
	case "delivery-accepted-by-other":
		reason = metrics.ReasonAcceptedByOther
	case "broadcast-expired":
		reason = metrics.ReasonExpired
	}
	if a.removed != nil {
		a.removed.WithLabelValues(reason).Inc()
	}
	a.logger.Info("broadcast removed",
		logx.String("delivery_id", p.id()),
		logx.String("reason", reason),
	)
}

func (a *Adapter) onStatusChanged(event string, payload []byte) {
	p, ok := decodeRemoval(payload)
	if !ok {
		a.logger.Warn("malformed status payload", logx.String("received_event", event))
		return
	}
	if _, remove := removalStatuses[p.Status]; !remove {
		return
	}
	if a.state.Remove(p.id()) {
		if a.removed != nil {
			a.removed.WithLabelValues(metrics.ReasonClosed).Inc()
		}
		a.logger.Info("broadcast removed on status change",
			logx.String("delivery_id", p.id()),
			logx.String("status", p.Status),
		)
	}
}
