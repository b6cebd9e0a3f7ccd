package deliveryapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"driver-agent/internal/apperr"
	"driver-agent/internal/domain"
	"driver-agent/internal/gateway/deliveryapi"
	"driver-agent/internal/logx"
)

type staticTokens string

func (s staticTokens) Token() string { return string(s) }

func newTestClient(t *testing.T, handler http.HandlerFunc) *deliveryapi.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return deliveryapi.NewClient(srv.URL+"/api", 2*time.Second, staticTokens("tok-1"), logx.Nop())
}

func TestClient_ActiveNear_Success(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotReqID string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-Id")
		require.Equal(t, "41.310000", r.URL.Query().Get("lat"))
		require.Equal(t, "69.240000", r.URL.Query().Get("lng"))

		w.Header().Set("Content-Type", "application/json")
		// broadcastEndTime comes as millisecond epoch, createdAt as RFC3339
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {"broadcasts": [
				{"deliveryId":"D1","deliveryCode":"DLV-1","fee":100,"driverEarning":70,
				 "priority":"high","broadcastDuration":60,
				 "broadcastEndTime":1748779260000,
				 "createdAt":"2025-06-01T12:00:00Z"},
				{"deliveryCode":"no-id-dropped"}
			]}
		}`))
	})

	got, err := client.ActiveNear(context.Background(), domain.Location{Lat: 41.31, Lng: 69.24})
	require.NoError(t, err)
	require.Equal(t, "/api/delivery/broadcast/active", gotPath)
	require.Equal(t, "Bearer tok-1", gotAuth)
	require.NotEmpty(t, gotReqID)

	require.Len(t, got, 1)
	require.Equal(t, "D1", got[0].ID)
	require.Equal(t, float64(100), got[0].Fee)
	require.Equal(t, domain.PriorityHigh, got[0].Priority)
	require.Equal(t, time.UnixMilli(1748779260000).UTC(), got[0].EndTime)
}

func TestClient_ActiveNear_SuccessFalse(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "message": "maintenance"}`))
	})

	_, err := client.ActiveNear(context.Background(), domain.Location{Lat: 1, Lng: 1})
	require.ErrorIs(t, err, apperr.ErrUnavailable)
}

func TestClient_Accept_Success(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/delivery/D1/accept", r.URL.Path)
		_, _ = w.Write([]byte(`{"success": true}`))
	})

	require.NoError(t, client.Accept(context.Background(), "D1"))
}

func TestClient_Accept_SuccessFalseIsConflict(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "message": "already assigned"}`))
	})

	err := client.Accept(context.Background(), "D1")
	require.ErrorIs(t, err, apperr.ErrConflict)
	require.Contains(t, err.Error(), "already assigned")
}

func TestClient_Accept_EmptyID(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	require.ErrorIs(t, client.Accept(context.Background(), "  "), apperr.ErrInvalid)
}

func TestClient_StatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, apperr.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, apperr.ErrUnauthorized},
		{"not found", http.StatusNotFound, apperr.ErrNotFound},
		{"conflict", http.StatusConflict, apperr.ErrConflict},
		{"bad request", http.StatusBadRequest, apperr.ErrInvalid},
		{"server error", http.StatusInternalServerError, apperr.ErrUnavailable},
		{"too many requests", http.StatusTooManyRequests, apperr.ErrUnavailable},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			err := client.Accept(context.Background(), "D1")
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestClient_Timeout_IsUnavailableNotSuccess(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		time.Sleep(500 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	client := deliveryapi.NewClient(srv.URL, 50*time.Millisecond, staticTokens(""), logx.Nop())
	err := client.Accept(context.Background(), "D1")
	require.Error(t, err)
	require.ErrorIs(t, err, apperr.ErrUnavailable)
	<-started
}

func TestClient_BroadcastStatus(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/delivery/D9/broadcast-status", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {"broadcastStatus":"assigned","isExpired":false,"assignedTo":"driver-7","canBeAccepted":false}
		}`))
	})

	st, err := client.BroadcastStatus(context.Background(), "D9")
	require.NoError(t, err)
	require.Equal(t, "assigned", st.Status)
	require.Equal(t, "driver-7", st.AssignedTo)
	require.False(t, st.CanBeAccepted)
}

func TestClient_NoTokenNoHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	t.Cleanup(srv.Close)

	client := deliveryapi.NewClient(srv.URL, time.Second, staticTokens(""), logx.Nop())
	require.NoError(t, client.Accept(context.Background(), "D1"))
}
