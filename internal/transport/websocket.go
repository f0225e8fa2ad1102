package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// WebSocketTransport implements Transport over a real WebSocket connection,
// grounded in the same framing discipline as the teacher's NetControlChannel
// (one Send call, one complete message; one Recv, one complete message) but
// carried over github.com/coder/websocket instead of a raw net.Conn, since
// WebSocket already frames messages and needs no newline delimiter.
type WebSocketTransport struct {
	url string

	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool

	onConnected    func()
	onDisconnected func()
	onMessage      func([]byte)

	stopRead chan struct{}
}

// NewWebSocketTransport creates a transport that dials url on Connect.
func NewWebSocketTransport(url string) *WebSocketTransport {
	return &WebSocketTransport{url: url}
}

func (t *WebSocketTransport) Host() string { return t.url }

func (t *WebSocketTransport) IsConnected() bool { return t.connected.Load() }

func (t *WebSocketTransport) SetConnected(v bool) { t.connected.Store(v) }

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial %s: %w", t.url, err)
	}
	t.mu.Lock()
	t.conn = conn
	stop := make(chan struct{})
	t.stopRead = stop
	t.mu.Unlock()
	t.connected.Store(true)

	if t.onConnected != nil {
		t.onConnected()
	}
	go t.readLoop(conn, stop)
	return nil
}

func (t *WebSocketTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	conn := t.conn
	stop := t.stopRead
	t.conn = nil
	t.stopRead = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	if stop != nil {
		close(stop)
	}
	err := conn.Close(websocket.StatusNormalClosure, "disconnect")
	t.connected.Store(false)
	if err != nil {
		return fmt.Errorf("websocket close %s: %w", t.url, err)
	}
	return nil
}

func (t *WebSocketTransport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("websocket send %s: not connected", t.url)
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("websocket send %s: %w", t.url, err)
	}
	return nil
}

func (t *WebSocketTransport) OnConnected(fn func())     { t.onConnected = fn }
func (t *WebSocketTransport) OnDisconnected(fn func())  { t.onDisconnected = fn }
func (t *WebSocketTransport) OnMessage(fn func([]byte)) { t.onMessage = fn }

func (t *WebSocketTransport) readLoop(conn *websocket.Conn, stop chan struct{}) {
	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		default:
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.connected.Store(false)
			select {
			case <-stop:
				// Expected: Disconnect closed the connection out from
				// under us. Not an abrupt termination.
			default:
				if t.onDisconnected != nil {
					t.onDisconnected()
				}
			}
			return
		}
		if t.onMessage != nil {
			t.onMessage(data)
		}
	}
}
