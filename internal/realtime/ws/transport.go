package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"driver-agent/internal/logx"
	"driver-agent/internal/realtime"
)

// tokenSource supplies the bearer token for the websocket handshake.
type tokenSource interface {
	Token() string
}

// Config stores websocket transport settings.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReconnectDelay   time.Duration
	MaxReconnectWait time.Duration
}

// envelope is the wire frame: a named event with an opaque payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Transport is a websocket-backed realtime channel. It owns one connection,
// redials with backoff when the read loop fails, and fans incoming events out
// to scoped subscriptions.
type Transport struct {
	cfg    Config
	tokens tokenSource
	logger logx.Logger
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]map[int]realtime.HandlerFunc
	nextID   int
	closed   bool
	cancel   context.CancelFunc

	wg sync.WaitGroup
}

// New creates a websocket transport; it does not connect yet.
func New(cfg Config, tokens tokenSource, logger logx.Logger) *Transport {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.MaxReconnectWait <= 0 {
		cfg.MaxReconnectWait = 30 * time.Second
	}
	return &Transport{
		cfg:      cfg,
		tokens:   tokens,
		logger:   logger,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		handlers: make(map[string]map[int]realtime.HandlerFunc),
	}
}

// Connect dials the server and starts the read loop. The loop keeps
// reconnecting until Close is called or the context is canceled.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("ws transport: already closed")
	}
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	conn, err := t.dial(ctx)
	if err != nil {
		return fmt.Errorf("ws transport: connect %s: %w", t.cfg.URL, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.conn = conn
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go t.readLoop(loopCtx)

	t.logger.Info("ws connected", logx.String("url", t.cfg.URL))
	return nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if tok := t.tokens.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func (t *Transport) readLoop(ctx context.Context) {
	defer t.wg.Done()

	delay := t.cfg.ReconnectDelay
	for {
		conn := t.currentConn()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err == nil {
			delay = t.cfg.ReconnectDelay
			t.handleFrame(data)
			continue
		}

		if ctx.Err() != nil || t.isClosed() {
			return
		}

		t.logger.Warn("ws read failed, reconnecting",
			logx.Any("err", err),
			logx.Duration("delay", delay),
		)
		if !sleepCtx(ctx, delay) {
			return
		}
		if delay *= 2; delay > t.cfg.MaxReconnectWait {
			delay = t.cfg.MaxReconnectWait
		}

		next, dialErr := t.dial(ctx)
		if dialErr != nil {
			t.logger.Warn("ws redial failed", logx.Any("err", dialErr))
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			_ = next.Close()
			return
		}
		t.conn = next
		t.mu.Unlock()
		t.logger.Info("ws reconnected", logx.String("url", t.cfg.URL))
	}
}

func (t *Transport) handleFrame(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		t.logger.Debug("ws frame dropped", logx.Any("err", err))
		return
	}

	t.mu.Lock()
	subs := make([]realtime.HandlerFunc, 0, len(t.handlers[env.Event]))
	for _, h := range t.handlers[env.Event] {
		subs = append(subs, h)
	}
	t.mu.Unlock()

	for _, h := range subs {
		t.safeCall(h, env.Event, env.Data)
	}
}

// safeCall shields the read loop from a panicking subscriber.
func (t *Transport) safeCall(h realtime.HandlerFunc, event string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("ws handler panic",
				logx.String("received_event", event),
				logx.Any("panic", r),
			)
		}
	}()
	h(event, data)
}

// On registers a handler for the event and returns its disposer.
func (t *Transport) On(event string, h realtime.HandlerFunc) realtime.Disposer {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handlers[event] == nil {
		t.handlers[event] = make(map[int]realtime.HandlerFunc)
	}
	t.nextID++
	id := t.nextID
	t.handlers[event][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.handlers[event], id)
			if len(t.handlers[event]) == 0 {
				delete(t.handlers, event)
			}
		})
	}
}

// Emit sends a named event to the server.
func (t *Transport) Emit(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ws transport: encode %s: %w", event, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return errors.New("ws transport: not connected")
	}

	deadline := time.Now().Add(t.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("ws transport: emit %s: %w", event, err)
	}
	if err := t.conn.WriteJSON(envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("ws transport: emit %s: %w", event, err)
	}
	return nil
}

// Close stops the read loop and closes the connection. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	t.wg.Wait()
	return err
}

func (t *Transport) currentConn() *websocket.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var _ realtime.Transport = (*Transport)(nil)
