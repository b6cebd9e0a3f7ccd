package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"driver-agent/internal/apperr"
	"driver-agent/internal/broadcast"
	"driver-agent/internal/domain"
	"driver-agent/internal/logx"
	"driver-agent/internal/metrics"
	"driver-agent/internal/notify"
	"driver-agent/internal/realtime"
)

// stateContainer is the subset of the broadcast container the coordinator drives.
type stateContainer interface {
	List() []domain.Broadcast
	Remove(id string) bool
	SweepExpired(now time.Time) []domain.Broadcast
	FetchSnapshot(ctx context.Context, loc domain.Location, force bool) (int, error)
}

// eventBinder subscribes the realtime adapter to a transport.
type eventBinder interface {
	Bind(t realtime.Transport) []realtime.Disposer
}

type clock interface {
	Now() time.Time
}

// Config stores coordinator settings.
type Config struct {
	PollInterval    time.Duration
	SweepInterval   time.Duration
	InitialLocation domain.Location
	DriverID        string
}

// presencePayload is emitted on the realtime channel when the agent comes
// online, goes offline, or moves.
type presencePayload struct {
	DriverID string  `json:"driverId"`
	Lat      float64 `json:"lat,omitempty"`
	Lng      float64 `json:"lng,omitempty"`
}

// Coordinator owns the background life of the agent: the snapshot polling
// loop, the per-second countdown sweep, and the realtime subscription. The
// container holds the state; the coordinator decides when to poke it.
type Coordinator struct {
	state     stateContainer
	binder    eventBinder
	transport realtime.Transport // nil means polling only
	clock     clock
	logger    logx.Logger
	notifier  notify.Notifier
	removed   *prometheus.CounterVec
	cfg       Config

	mu         sync.Mutex
	loc        domain.Location
	countdowns map[string]*broadcast.Countdown
	pollFailed bool
}

// New creates a coordinator. transport may be nil.
func New(
	state stateContainer,
	binder eventBinder,
	transport realtime.Transport,
	clk clock,
	logger logx.Logger,
	notifier notify.Notifier,
	removed *prometheus.CounterVec,
	cfg Config,
) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 45 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	return &Coordinator{
		state:      state,
		binder:     binder,
		transport:  transport,
		clock:      clk,
		logger:     logger,
		notifier:   notifier,
		removed:    removed,
		cfg:        cfg,
		loc:        cfg.InitialLocation,
		countdowns: make(map[string]*broadcast.Countdown),
	}
}

// Run blocks until the context is canceled. The realtime channel is best
// effort: if the connect fails the agent degrades to polling and keeps going.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.transport != nil {
		if err := c.transport.Connect(ctx); err != nil {
			c.logger.Warn("realtime connect failed, polling only", logx.Any("err", err))
		} else {
			disposers := c.binder.Bind(c.transport)
			defer func() {
				for _, d := range disposers {
					d()
				}
			}()
			defer func() { _ = c.transport.Close() }()

			c.announce(ctx, "driver-online")
			defer c.announceOffline()
		}
	}

	c.poll(ctx, true)

	poll := time.NewTicker(c.cfg.PollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(c.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
			c.poll(ctx, false)
		case <-sweep.C:
			c.sweep(c.clock.Now())
		}
	}
}

// poll fetches a snapshot at the current location. The driver is notified on
// the first failure of a streak, not on every failed cycle.
func (c *Coordinator) poll(ctx context.Context, force bool) {
	_, err := c.state.FetchSnapshot(ctx, c.Location(), force)

	c.mu.Lock()
	wasFailing := c.pollFailed
	c.pollFailed = err != nil
	c.mu.Unlock()

	if err == nil {
		return
	}
	c.logger.Warn("snapshot fetch failed", logx.Any("err", err))
	if !wasFailing {
		c.notifier.Warning("Could not refresh deliveries")
	}
}

// sweep drives the countdowns and clears whatever ran out.
func (c *Coordinator) sweep(now time.Time) {
	live := c.state.List()

	c.mu.Lock()
	seen := make(map[string]struct{}, len(live))
	type tickItem struct {
		id string
		cd *broadcast.Countdown
	}
	items := make([]tickItem, 0, len(live))
	for _, b := range live {
		seen[b.ID] = struct{}{}
		cd, ok := c.countdowns[b.ID]
		if !ok {
			cd = broadcast.NewCountdown(b, now)
			c.countdowns[b.ID] = cd
		}
		items = append(items, tickItem{id: b.ID, cd: cd})
	}
	// countdowns whose broadcast was removed out-of-band are dropped
	for id := range c.countdowns {
		if _, ok := seen[id]; !ok {
			delete(c.countdowns, id)
		}
	}
	c.mu.Unlock()

	for _, it := range items {
		if _, expired := it.cd.Tick(now); !expired {
			continue
		}
		if c.state.Remove(it.id) {
			c.countRemoved()
			c.logger.Info("broadcast expired", logx.String("delivery_id", it.id))
			c.notifier.Info("Delivery offer expired")
		}
	}

	// safety net for entries the countdown map never saw
	for _, b := range c.state.SweepExpired(now) {
		c.countRemoved()
		c.logger.Info("broadcast expired", logx.String("delivery_id", b.ID))
	}
}

// Location returns the current driver location.
func (c *Coordinator) Location() domain.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loc
}

// SetLocation moves the driver, announces the move on the realtime channel,
// and forces a snapshot fetch around the new position. Returns the number of
// broadcasts the fetch added.
func (c *Coordinator) SetLocation(ctx context.Context, loc domain.Location) (int, error) {
	if !loc.Valid() {
		return 0, fmt.Errorf("%w: location (%f, %f) out of range", apperr.ErrInvalid, loc.Lat, loc.Lng)
	}

	c.mu.Lock()
	c.loc = loc
	c.mu.Unlock()

	if c.transport != nil {
		if err := c.transport.Emit(ctx, "driver-location", presencePayload{
			DriverID: c.cfg.DriverID,
			Lat:      loc.Lat,
			Lng:      loc.Lng,
		}); err != nil {
			c.logger.Debug("location emit failed", logx.Any("err", err))
		}
	}

	return c.state.FetchSnapshot(ctx, loc, true)
}

// Refresh forces a snapshot fetch at the current location.
func (c *Coordinator) Refresh(ctx context.Context) (int, error) {
	return c.state.FetchSnapshot(ctx, c.Location(), true)
}

func (c *Coordinator) announce(ctx context.Context, event string) {
	loc := c.Location()
	err := c.transport.Emit(ctx, event, presencePayload{
		DriverID: c.cfg.DriverID,
		Lat:      loc.Lat,
		Lng:      loc.Lng,
	})
	if err != nil {
		c.logger.Debug("presence emit failed",
			logx.String("presence_event", event),
			logx.Any("err", err),
		)
	}
}

// announceOffline runs during teardown, after the run context is dead.
func (c *Coordinator) announceOffline() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.announce(ctx, "driver-offline")
}

func (c *Coordinator) countRemoved() {
	if c.removed != nil {
		c.removed.WithLabelValues(metrics.ReasonExpired).Inc()
	}
}
