package broadcast_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"driver-agent/internal/broadcast"
	"driver-agent/internal/domain"
	"driver-agent/internal/logx"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type stubFetcher struct {
	fn    func(ctx context.Context, loc domain.Location) ([]domain.Broadcast, error)
	calls atomic.Int64
}

func (s *stubFetcher) ActiveNear(ctx context.Context, loc domain.Location) ([]domain.Broadcast, error) {
	s.calls.Add(1)
	if s.fn == nil {
		return nil, nil
	}
	return s.fn(ctx, loc)
}

type countingCounter struct{ n atomic.Int64 }

func (c *countingCounter) Inc() { c.n.Add(1) }

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestContainer(f broadcast.SnapshotFetcher, clock broadcast.Clock) *broadcast.Container {
	return broadcast.NewContainer(f, clock, logx.Nop(), &countingCounter{}, broadcast.Config{
		MinFetchInterval: 30 * time.Second,
		TombstoneTTL:     10 * time.Minute,
	})
}

func TestContainer_Add_NoDuplicates(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	c := newTestContainer(nil, clock)

	b := domain.Broadcast{ID: "d1", EndTime: testStart.Add(time.Minute)}
	require.True(t, c.Add(b))
	require.False(t, c.Add(b))
	require.False(t, c.Add(b))
	require.Equal(t, 1, c.Len())
}

func TestContainer_Add_DefaultFilling(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	c := newTestContainer(nil, clock)

	require.True(t, c.Add(domain.Broadcast{ID: "x"}))

	got, ok := c.Get("x")
	require.True(t, ok)
	require.Equal(t, 60, got.Duration)
	require.Equal(t, testStart.Add(60*time.Second), got.EndTime)
	require.Equal(t, domain.PlaceholderLocation, got.PickupLocation)
	require.Equal(t, domain.PlaceholderLocation, got.DeliveryLocation)
	require.Equal(t, domain.PlaceholderCustomer, got.CustomerName)
	require.Equal(t, domain.PriorityNormal, got.Priority)
}

func TestContainer_Add_RejectsEmptyIDAndExpired(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	c := newTestContainer(nil, clock)

	require.False(t, c.Add(domain.Broadcast{}))
	require.False(t, c.Add(domain.Broadcast{ID: "old", EndTime: testStart.Add(-time.Second)}))
	require.Zero(t, c.Len())
}

func TestContainer_Remove_Idempotent(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	c := newTestContainer(nil, clock)

	require.False(t, c.Remove("absent"))

	c.Add(domain.Broadcast{ID: "d1", EndTime: testStart.Add(time.Minute)})
	require.True(t, c.Remove("d1"))
	require.False(t, c.Remove("d1"))
	require.Zero(t, c.Len())
}

func TestContainer_RemoveThenStaleAdd_StaysAbsent(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	c := newTestContainer(nil, clock)

	end := testStart.Add(time.Minute)
	c.Add(domain.Broadcast{ID: "d2", EndTime: end})
	c.Remove("d2")

	// stale add with the same (or earlier) lifecycle must lose to the removal
	require.False(t, c.Add(domain.Broadcast{ID: "d2", EndTime: end}))
	require.False(t, c.Add(domain.Broadcast{ID: "d2", EndTime: end.Add(-10 * time.Second)}))
	require.Zero(t, c.Len())
}

func TestContainer_FreshRebroadcastAfterRemove_IsAccepted(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	c := newTestContainer(nil, clock)

	end := testStart.Add(time.Minute)
	c.Add(domain.Broadcast{ID: "d2", EndTime: end})
	c.Remove("d2")

	require.True(t, c.Add(domain.Broadcast{ID: "d2", EndTime: end.Add(2 * time.Minute)}))
	require.Equal(t, 1, c.Len())
}

func TestContainer_AcceptedIDIsSticky(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	c := newTestContainer(nil, clock)

	c.Add(domain.Broadcast{ID: "d1", EndTime: testStart.Add(time.Minute)})
	c.MarkAccepted("d1")

	require.True(t, c.Accepted("d1"))
	require.Zero(t, c.Len())

	// even a fresh lifecycle is suppressed once we accepted the delivery
	require.False(t, c.Add(domain.Broadcast{ID: "d1", EndTime: testStart.Add(time.Hour)}))
}

func TestContainer_SweepExpired_Boundary(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	c := newTestContainer(nil, clock)

	c.Add(domain.Broadcast{ID: "gone", EndTime: testStart.Add(time.Second)})
	c.Add(domain.Broadcast{ID: "stays", EndTime: testStart.Add(3 * time.Second)})

	now := testStart.Add(time.Second) // endTime <= now removes
	expired := c.SweepExpired(now)
	require.Len(t, expired, 1)
	require.Equal(t, "gone", expired[0].ID)

	require.False(t, c.Visible("gone", now))
	require.True(t, c.Visible("stays", now))

	// second sweep at the same instant is a no-op
	require.Empty(t, c.SweepExpired(now))
}

func TestContainer_SweepExpired_GCsTombstones(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	c := newTestContainer(nil, clock)

	c.Add(domain.Broadcast{ID: "d1", EndTime: testStart.Add(time.Minute)})
	c.Remove("d1")

	clock.Advance(11 * time.Minute)
	c.SweepExpired(clock.Now())

	// tombstone expired, so the same lifecycle may come back
	require.True(t, c.Add(domain.Broadcast{ID: "d1", EndTime: clock.Now().Add(time.Minute)}))
}

func TestContainer_List_OrderedByEndTime(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	c := newTestContainer(nil, clock)

	c.Add(domain.Broadcast{ID: "late", EndTime: testStart.Add(3 * time.Minute)})
	c.Add(domain.Broadcast{ID: "soon", EndTime: testStart.Add(time.Minute)})
	c.Add(domain.Broadcast{ID: "mid", EndTime: testStart.Add(2 * time.Minute)})

	got := c.List()
	require.Len(t, got, 3)
	require.Equal(t, "soon", got[0].ID)
	require.Equal(t, "mid", got[1].ID)
	require.Equal(t, "late", got[2].ID)
}

func TestContainer_FetchSnapshot_MergesWithoutDiscarding(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	fetcher := &stubFetcher{
		fn: func(context.Context, domain.Location) ([]domain.Broadcast, error) {
			return []domain.Broadcast{
				{ID: "D1", Fee: 100, Duration: 60, EndTime: testStart.Add(time.Minute)},
			}, nil
		},
	}
	c := newTestContainer(fetcher, clock)

	// pushed over realtime before the snapshot lands
	c.Add(domain.Broadcast{ID: "rt-1", EndTime: testStart.Add(time.Minute)})

	added, err := c.FetchSnapshot(context.Background(), domain.Location{Lat: 41.3, Lng: 69.2}, false)
	require.NoError(t, err)
	require.Equal(t, 1, added)

	require.Equal(t, 2, c.Len())
	d1, ok := c.Get("D1")
	require.True(t, ok)
	require.Equal(t, float64(100), d1.Fee)
	require.Equal(t, 60, d1.Remaining(testStart))
}

func TestContainer_FetchSnapshot_NoLocationIsNoop(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{}
	c := newTestContainer(fetcher, newFakeClock(testStart))

	added, err := c.FetchSnapshot(context.Background(), domain.Location{}, true)
	require.NoError(t, err)
	require.Zero(t, added)
	require.Zero(t, fetcher.calls.Load())
}

func TestContainer_FetchSnapshot_InvalidLocation(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{}
	c := newTestContainer(fetcher, newFakeClock(testStart))

	_, err := c.FetchSnapshot(context.Background(), domain.Location{Lat: 99, Lng: 0}, true)
	require.Error(t, err)
	require.Zero(t, fetcher.calls.Load())
}

func TestContainer_FetchSnapshot_Throttled(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	fetcher := &stubFetcher{}
	c := newTestContainer(fetcher, clock)
	loc := domain.Location{Lat: 41.3, Lng: 69.2}

	_, err := c.FetchSnapshot(context.Background(), loc, false)
	require.NoError(t, err)
	require.EqualValues(t, 1, fetcher.calls.Load())

	// within the minimum interval: skipped
	clock.Advance(10 * time.Second)
	_, err = c.FetchSnapshot(context.Background(), loc, false)
	require.NoError(t, err)
	require.EqualValues(t, 1, fetcher.calls.Load())

	// force bypasses the throttle
	_, err = c.FetchSnapshot(context.Background(), loc, true)
	require.NoError(t, err)
	require.EqualValues(t, 2, fetcher.calls.Load())

	// past the interval: allowed again
	clock.Advance(31 * time.Second)
	_, err = c.FetchSnapshot(context.Background(), loc, false)
	require.NoError(t, err)
	require.EqualValues(t, 3, fetcher.calls.Load())
}

func TestContainer_FetchSnapshot_ErrorLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	fetcher := &stubFetcher{
		fn: func(context.Context, domain.Location) ([]domain.Broadcast, error) {
			return nil, errors.New("backend down")
		},
	}
	c := newTestContainer(fetcher, clock)
	c.Add(domain.Broadcast{ID: "keep", EndTime: testStart.Add(time.Minute)})

	_, err := c.FetchSnapshot(context.Background(), domain.Location{Lat: 41.3, Lng: 69.2}, true)
	require.Error(t, err)
	require.Equal(t, 1, c.Len())
	require.True(t, c.Visible("keep", testStart))

	// a failed fetch does not consume the throttle window
	_, err = c.FetchSnapshot(context.Background(), domain.Location{Lat: 41.3, Lng: 69.2}, false)
	require.Error(t, err)
	require.EqualValues(t, 2, fetcher.calls.Load())
}

func TestContainer_FetchSnapshot_DedupesConcurrentCalls(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testStart)
	release := make(chan struct{})
	fetcher := &stubFetcher{
		fn: func(context.Context, domain.Location) ([]domain.Broadcast, error) {
			<-release
			return []domain.Broadcast{{ID: "D1", EndTime: testStart.Add(time.Minute)}}, nil
		},
	}
	c := newTestContainer(fetcher, clock)
	loc := domain.Location{Lat: 41.3, Lng: 69.2}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.FetchSnapshot(context.Background(), loc, true)
			require.NoError(t, err)
		}()
	}

	// give the goroutines a moment to pile onto the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, fetcher.calls.Load())
	require.Equal(t, 1, c.Len())
}
