package broadcast

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"driver-agent/internal/domain"
	"driver-agent/internal/logx"
)

// Config stores Container settings.
type Config struct {
	DefaultDuration  time.Duration // applied when a payload has no duration
	MinFetchInterval time.Duration // snapshot throttle (force bypasses)
	TombstoneTTL     time.Duration // how long removed ids block stale re-adds
}

// Container holds the set of broadcasts currently visible to the driver and
// provides race-safe mutation primitives. All state changes go through its
// methods; removal is terminal for a given lifecycle (sticky tombstones stop
// stale re-adds arriving out of order).
type Container struct {
	fetcher  SnapshotFetcher
	clock    Clock
	logger   logx.Logger
	received counter
	cfg      Config

	mu         sync.Mutex
	live       map[string]domain.Broadcast
	accepted   map[string]struct{}
	tombstones map[string]tombstone
	lastFetch  time.Time

	group singleflight.Group
}

type tombstone struct {
	endTime time.Time // end of the lifecycle that was removed
	at      time.Time // when the tombstone was written, for GC
}

// NewContainer creates a broadcast state container.
func NewContainer(fetcher SnapshotFetcher, clock Clock, logger logx.Logger, received counter, cfg Config) *Container {
	if clock == nil {
		clock = RealClock{}
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = time.Duration(domain.DefaultDuration) * time.Second
	}
	if cfg.TombstoneTTL <= 0 {
		cfg.TombstoneTTL = 10 * time.Minute
	}
	return &Container{
		fetcher:    fetcher,
		clock:      clock,
		logger:     logger,
		received:   received,
		cfg:        cfg,
		live:       make(map[string]domain.Broadcast),
		accepted:   make(map[string]struct{}),
		tombstones: make(map[string]tombstone),
	}
}

// Add inserts a broadcast unless its id is already live, already accepted in
// this session, or blocked by a tombstone from an earlier removal. A re-add
// is allowed only when the payload carries a strictly later end time than the
// removed lifecycle (a fresh re-broadcast by the server). Missing optional
// fields are normalized to safe defaults. Returns true if the set changed.
func (c *Container) Add(b domain.Broadcast) bool {
	if b.ID == "" {
		return false
	}

	now := c.clock.Now()
	if b.Duration <= 0 {
		b.Duration = int(c.cfg.DefaultDuration / time.Second)
	}
	b.Normalize(now)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.accepted[b.ID]; ok {
		return false
	}
	if _, ok := c.live[b.ID]; ok {
		return false
	}
	if ts, ok := c.tombstones[b.ID]; ok && !b.EndTime.After(ts.endTime) {
		return false
	}
	if b.Expired(now) {
		return false
	}

	delete(c.tombstones, b.ID)
	c.live[b.ID] = b
	if c.received != nil {
		c.received.Inc()
	}
	return true
}

// Remove deletes the broadcast if present and writes a tombstone; a call for
// an absent id is a no-op. Returns true if the set changed.
func (c *Container) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(id)
}

func (c *Container) removeLocked(id string) bool {
	b, ok := c.live[id]
	if !ok {
		return false
	}
	delete(c.live, id)
	c.tombstones[id] = tombstone{endTime: b.EndTime, at: c.clock.Now()}
	return true
}

// MarkAccepted records the id as accepted for this session and removes the
// broadcast. Accepted ids are never re-added, regardless of later events.
func (c *Container) MarkAccepted(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted[id] = struct{}{}
	c.removeLocked(id)
}

// Accepted reports whether the id was accepted (or claim-attempted to
// success) in this session.
func (c *Container) Accepted(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.accepted[id]
	return ok
}

// Get returns the live broadcast for the id, if any.
func (c *Container) Get(id string) (domain.Broadcast, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.live[id]
	return b, ok
}

// Visible reports whether the id is live and not yet expired at the given time.
func (c *Container) Visible(id string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.live[id]
	return ok && !b.Expired(now)
}

// List returns the live broadcasts ordered by end time (soonest first).
func (c *Container) List() []domain.Broadcast {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Broadcast, 0, len(c.live))
	for _, b := range c.live {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EndTime.Equal(out[j].EndTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EndTime.Before(out[j].EndTime)
	})
	return out
}

// Len returns the number of live broadcasts.
func (c *Container) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// SweepExpired removes every broadcast whose end time has elapsed and returns
// the removed entries. Expired tombstones are garbage-collected here too.
// Safe to call every second; a second call at the same instant is a no-op.
func (c *Container) SweepExpired(now time.Time) []domain.Broadcast {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []domain.Broadcast
	for id, b := range c.live {
		if b.Expired(now) {
			expired = append(expired, b)
			delete(c.live, id)
			c.tombstones[id] = tombstone{endTime: b.EndTime, at: now}
		}
	}
	for id, ts := range c.tombstones {
		if now.Sub(ts.at) > c.cfg.TombstoneTTL {
			delete(c.tombstones, id)
		}
	}
	return expired
}

// FetchSnapshot fetches the active broadcasts near the location and merges
// them into the set. Merging is add-only: entries pushed over the realtime
// channel while the fetch was in flight are kept, and a failed fetch never
// clears live state. Calls are throttled to MinFetchInterval unless force is
// set, and concurrent calls for the same location share one upstream request.
// Returns the number of newly added broadcasts.
func (c *Container) FetchSnapshot(ctx context.Context, loc domain.Location, force bool) (int, error) {
	if c.fetcher == nil || loc.Zero() {
		return 0, nil
	}
	if !loc.Valid() {
		return 0, fmt.Errorf("fetch snapshot: invalid location (%f, %f)", loc.Lat, loc.Lng)
	}

	c.mu.Lock()
	if !force && !c.lastFetch.IsZero() && c.clock.Now().Sub(c.lastFetch) < c.cfg.MinFetchInterval {
		c.mu.Unlock()
		return 0, nil
	}
	c.mu.Unlock()

	key := fmt.Sprintf("%.4f,%.4f", loc.Lat, loc.Lng)
	v, err, _ := c.group.Do(key, func() (any, error) {
		items, err := c.fetcher.ActiveNear(ctx, loc)
		if err != nil {
			return 0, err
		}

		added := 0
		for _, b := range items {
			if c.Add(b) {
				added++
			}
		}

		c.mu.Lock()
		c.lastFetch = c.clock.Now()
		c.mu.Unlock()

		return added, nil
	})
	if err != nil {
		return 0, fmt.Errorf("fetch snapshot: %w", err)
	}

	added := v.(int)
	if added > 0 && c.logger != nil {
		c.logger.Info("snapshot merged",
			logx.Int("added", added),
			logx.Float64("lat", loc.Lat),
			logx.Float64("lng", loc.Lng),
		)
	}
	return added, nil
}
