// Package transport defines the Transport capability consumed by
// coreconn.Connection and provides concrete implementations over a real
// socket (WebSocketTransport) and a zstd-compressing decorator
// (CompressingTransport).
package transport

import "context"

// Transport is the bidirectional framed channel abstraction the connection
// controller consumes. It never sees sockets, TLS, or framing — only
// Connect/Disconnect/Send plus the three signal callbacks.
//
// Host, IsConnected and SetConnected mirror the source's plain mutable
// fields ("isConnected: mutable boolean; the controller both reads and
// writes it") since Go has no property-with-setter concept; SetConnected
// lets the controller record its own view of connectedness against the
// same Transport value the tests assert on.
type Transport interface {
	// Host identifies the remote endpoint, used in error messages.
	Host() string

	// IsConnected reports the transport's last known connectedness.
	IsConnected() bool

	// SetConnected lets the owning controller record connectedness after
	// driving Connect/Disconnect or observing a connected/disconnected
	// signal.
	SetConnected(bool)

	// Connect performs link setup within ctx's deadline, if any. A
	// Transport that is connect-less (already connected at construction)
	// may implement this as a no-op.
	Connect(ctx context.Context) error

	// Disconnect performs link teardown. Safe to call on an already
	// disconnected transport.
	Disconnect(ctx context.Context) error

	// Send enqueues one outbound request frame. An error return indicates
	// a send failure (KindTransportSend at the coreconn layer).
	Send(ctx context.Context, frame []byte) error

	// OnConnected registers fn to run whenever the transport signals a
	// successful connection. May be called at most once; last writer wins,
	// matching the controller's own single-subscriber usage.
	OnConnected(fn func())

	// OnDisconnected registers fn to run when the transport loses its
	// connection on its own — a read failure, a peer-initiated close.
	// An explicit Disconnect call must not also fire this signal; the
	// controller distinguishes teardown it initiated from teardown it
	// didn't.
	OnDisconnected(fn func())

	// OnMessage registers fn to run for every complete inbound frame.
	OnMessage(fn func(frame []byte))
}
