package deliveryapi_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"driver-agent/internal/apperr"
	"driver-agent/internal/domain"
	"driver-agent/internal/gateway/deliveryapi"
	"driver-agent/internal/logx"
)

func TestBreakerGateway_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	stub := &stubGateway{
		activeFn: func(context.Context, domain.Location) ([]domain.Broadcast, error) {
			return nil, fmt.Errorf("%w: status 503", apperr.ErrUnavailable)
		},
	}
	g := deliveryapi.NewBreakerGateway(stub, logx.Nop())

	loc := domain.Location{Lat: 1, Lng: 1}
	for i := 0; i < 5; i++ {
		_, err := g.ActiveNear(context.Background(), loc)
		require.ErrorIs(t, err, apperr.ErrUnavailable)
	}
	require.EqualValues(t, 5, stub.activeCalls.Load())

	// breaker is open now: upstream is not called anymore
	_, err := g.ActiveNear(context.Background(), loc)
	require.ErrorIs(t, err, apperr.ErrUnavailable)
	require.EqualValues(t, 5, stub.activeCalls.Load())
}

func TestBreakerGateway_ConflictDoesNotTrip(t *testing.T) {
	t.Parallel()

	stub := &stubGateway{
		acceptFn: func(context.Context, string) error {
			return fmt.Errorf("%w: already assigned", apperr.ErrConflict)
		},
	}
	g := deliveryapi.NewBreakerGateway(stub, logx.Nop())

	for i := 0; i < 10; i++ {
		err := g.Accept(context.Background(), "D1")
		require.ErrorIs(t, err, apperr.ErrConflict)
	}
	// every call reached upstream: business rejections are not failures
	require.EqualValues(t, 10, stub.acceptCalls.Load())
}

func TestBreakerGateway_PassesThroughSuccess(t *testing.T) {
	t.Parallel()

	stub := &stubGateway{
		statusFn: func(context.Context, string) (*deliveryapi.BroadcastStatus, error) {
			return &deliveryapi.BroadcastStatus{Status: "broadcasting", CanBeAccepted: true}, nil
		},
	}
	g := deliveryapi.NewBreakerGateway(stub, logx.Nop())

	st, err := g.BroadcastStatus(context.Background(), "D1")
	require.NoError(t, err)
	require.True(t, st.CanBeAccepted)
}

func TestNewBreakerGateway_NilNext(t *testing.T) {
	t.Parallel()
	require.Nil(t, deliveryapi.NewBreakerGateway(nil, logx.Nop()))
}
