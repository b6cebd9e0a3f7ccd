package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"driver-agent/internal/logx"
)

type staticTokens struct{ token string }

func (s staticTokens) Token() string { return s.token }

// echoServer upgrades every request and hands the connection to the test.
type echoServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn

	mu         sync.Mutex
	lastAuth   string
	upgradeErr error
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	es := &echoServer{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	es.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		es.mu.Lock()
		es.lastAuth = r.Header.Get("Authorization")
		es.mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			es.mu.Lock()
			es.upgradeErr = err
			es.mu.Unlock()
			return
		}
		es.conns <- conn
	}))
	t.Cleanup(es.srv.Close)
	return es
}

func (es *echoServer) wsURL() string {
	return "ws" + strings.TrimPrefix(es.srv.URL, "http")
}

func (es *echoServer) auth() string {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.lastAuth
}

func (es *echoServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-es.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive a connection")
		return nil
	}
}

func newTestTransport(t *testing.T, es *echoServer, token string) *Transport {
	t.Helper()
	tr := New(Config{
		URL:            es.wsURL(),
		ReconnectDelay: 10 * time.Millisecond,
	}, staticTokens{token: token}, logx.Nop())
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTransport_ReceivesEvents(t *testing.T) {
	t.Parallel()

	es := newEchoServer(t)
	tr := newTestTransport(t, es, "tok-123")

	var got atomic.Value
	tr.On("delivery-broadcast", func(event string, payload []byte) {
		got.Store(string(payload))
	})

	require.NoError(t, tr.Connect(context.Background()))
	require.Equal(t, "Bearer tok-123", es.auth())

	server := es.accept(t)
	require.NoError(t, server.WriteJSON(envelope{Event: "delivery-broadcast", Data: []byte(`{"deliveryId":"D1"}`)}))

	require.Eventually(t, func() bool {
		v, ok := got.Load().(string)
		return ok && v == `{"deliveryId":"D1"}`
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTransport_DisposerStopsDelivery(t *testing.T) {
	t.Parallel()

	es := newEchoServer(t)
	tr := newTestTransport(t, es, "")

	var calls atomic.Int64
	var other atomic.Int64
	dispose := tr.On("ping", func(string, []byte) { calls.Add(1) })
	tr.On("marker", func(string, []byte) { other.Add(1) })

	require.NoError(t, tr.Connect(context.Background()))
	server := es.accept(t)

	dispose()
	dispose() // idempotent

	require.NoError(t, server.WriteJSON(envelope{Event: "ping", Data: []byte(`{}`)}))
	// marker frame proves the ping frame was already processed
	require.NoError(t, server.WriteJSON(envelope{Event: "marker", Data: []byte(`{}`)}))

	require.Eventually(t, func() bool { return other.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, calls.Load())
}

func TestTransport_Emit(t *testing.T) {
	t.Parallel()

	es := newEchoServer(t)
	tr := newTestTransport(t, es, "")

	require.NoError(t, tr.Connect(context.Background()))
	server := es.accept(t)

	type locationUpdate struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	require.NoError(t, tr.Emit(context.Background(), "driver-location", locationUpdate{Lat: 41.31, Lng: 69.24}))

	var env envelope
	require.NoError(t, server.ReadJSON(&env))
	require.Equal(t, "driver-location", env.Event)
	require.JSONEq(t, `{"lat":41.31,"lng":69.24}`, string(env.Data))
}

func TestTransport_EmitBeforeConnect(t *testing.T) {
	t.Parallel()

	es := newEchoServer(t)
	tr := newTestTransport(t, es, "")

	err := tr.Emit(context.Background(), "driver-online", nil)
	require.Error(t, err)
}

func TestTransport_ReconnectsAfterServerDrop(t *testing.T) {
	t.Parallel()

	es := newEchoServer(t)
	tr := newTestTransport(t, es, "")

	var received atomic.Int64
	tr.On("after-reconnect", func(string, []byte) { received.Add(1) })

	require.NoError(t, tr.Connect(context.Background()))
	first := es.accept(t)

	// сервер рвёт соединение, клиент должен пересоединиться сам
	require.NoError(t, first.Close())

	second := es.accept(t)
	require.NoError(t, second.WriteJSON(envelope{Event: "after-reconnect", Data: []byte(`{}`)}))

	require.Eventually(t, func() bool { return received.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestTransport_HandlerPanicDoesNotKillReadLoop(t *testing.T) {
	t.Parallel()

	es := newEchoServer(t)
	tr := newTestTransport(t, es, "")

	var survived atomic.Int64
	tr.On("boom", func(string, []byte) { panic("handler bug") })
	tr.On("next", func(string, []byte) { survived.Add(1) })

	require.NoError(t, tr.Connect(context.Background()))
	server := es.accept(t)

	require.NoError(t, server.WriteJSON(envelope{Event: "boom", Data: []byte(`{}`)}))
	require.NoError(t, server.WriteJSON(envelope{Event: "next", Data: []byte(`{}`)}))

	require.Eventually(t, func() bool { return survived.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestTransport_CloseIdempotent(t *testing.T) {
	t.Parallel()

	es := newEchoServer(t)
	tr := newTestTransport(t, es, "")

	require.NoError(t, tr.Connect(context.Background()))
	es.accept(t)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	err := tr.Connect(context.Background())
	require.Error(t, err)
}
