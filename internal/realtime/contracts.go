package realtime

import "context"

// HandlerFunc processes a single raw event payload.
type HandlerFunc func(event string, payload []byte)

// Disposer detaches one subscription. Safe to call more than once.
type Disposer func()

// Transport is a pub/sub channel with named events. Implementations own the
// connection lifecycle; subscribers get scoped disposers instead of pairing
// on/off calls by hand.
type Transport interface {
	Connect(ctx context.Context) error
	On(event string, h HandlerFunc) Disposer
	Emit(ctx context.Context, event string, payload any) error
	Close() error
}
