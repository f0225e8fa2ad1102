// Package coreconn implements the client-side RPC connection controller:
// lazy connection establishment, handshake hooks, orderly and abrupt
// teardown, and an in-flight request table with per-request timeouts,
// disconnect cancellation, and error-kind remapping.
package coreconn

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aegiscore/coreconn/internal/pending"
	"github.com/aegiscore/coreconn/internal/transport"
)

// future is the promise-with-external-resolver primitive (the source's
// Resolvable): a one-shot completion slot, set once, observable by
// multiple awaiters via Connection's mutex-guarded field plus this channel.
type future struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

func (f *future) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *future) isResolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Connection is the client-side RPC connection controller. It multiplexes
// request/response and server-initiated event traffic over a Transport,
// owning the Transport exclusively while a connection is active and owning
// a pending.Table of in-flight requests.
//
// Unlike the single-threaded cooperative scheduling model of the source
// (one execution context, no preemption between suspension points), Go
// callers run concurrently, so every piece of connection state this
// package mutates is guarded by mu. The sequencing the source gets for
// free from cooperative scheduling is reproduced here with the mutex plus
// the future primitive.
type Connection struct {
	transport         transport.Transport
	pending           *pending.Table
	hooks             Hooks
	log               *slog.Logger
	hasActiveSessions func() bool
	connectTimeout    time.Duration
	hookTimeout       time.Duration

	onConnectedFn    func()
	onDisconnectedFn func(error)
	onEventFn        func(Event)

	mu                     sync.Mutex
	connectFuture          *future
	disconnectFuture       *future
	isConnectionTerminated bool
	isSendingConnect       bool
	isSendingDisconnect    bool
	connectMessageID       string
	disconnectMessageID    string
	didAutoConnect         bool
	disconnectError        error
}

// NewConnection constructs a Connection over t. The Connection registers
// itself as t's message and disconnection observer immediately; t must not
// already be driven by another Connection.
func NewConnection(t transport.Transport, opts ...Option) *Connection {
	c := &Connection{
		transport:         t,
		pending:           pending.New(),
		log:               slog.Default(),
		hasActiveSessions: func() bool { return false },
		connectTimeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	t.OnMessage(c.onMessage)
	t.OnDisconnected(c.onConnectionTerminated)
	return c
}

// OnEvent registers the sole subscriber for server-initiated event frames.
func (c *Connection) OnEvent(fn func(Event)) { c.onEventFn = fn }

// OnConnected registers the sole subscriber for the controller-level
// "connected" signal.
func (c *Connection) OnConnected(fn func()) { c.onConnectedFn = fn }

// OnDisconnected registers the sole subscriber for the controller-level
// "disconnected" signal. err is non-nil when disconnection followed a
// fatal error, nil for orderly teardown or abrupt termination without a
// recorded cause.
func (c *Connection) OnDisconnected(fn func(err error)) { c.onDisconnectedFn = fn }

// IsConnected reports the underlying transport's connectedness.
func (c *Connection) IsConnected() bool { return c.transport.IsConnected() }

// Connect establishes the logical connection. Idempotent: concurrent and
// repeated calls after the first observe the same in-flight or resolved
// outcome.
func (c *Connection) Connect(ctx context.Context) error {
	return c.connect(ctx, false)
}

func (c *Connection) connect(ctx context.Context, isAutoConnect bool) error {
	c.mu.Lock()
	if c.connectFuture != nil {
		f := c.connectFuture
		c.mu.Unlock()
		return f.wait(ctx)
	}
	f := newFuture()
	c.connectFuture = f
	c.didAutoConnect = isAutoConnect
	// Starting a fresh generation: the previous generation's teardown
	// bookkeeping must not leak forward, or a later Disconnect on this
	// generation will see a stale resolved disconnectFuture and return
	// immediately without tearing anything down, and isDisconnecting()
	// will wrongly report true for the lifetime of the new generation.
	c.disconnectFuture = nil
	c.disconnectMessageID = ""
	c.disconnectError = nil
	c.isConnectionTerminated = false
	c.mu.Unlock()

	host := c.transport.Host()

	connectCtx := ctx
	if c.connectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
	}

	if err := c.transport.Connect(connectCtx); err != nil {
		wrapped := newError(KindPassThrough, host, "transport connect failed", err)
		f.resolve(wrapped)
		return wrapped
	}

	// Handshake-abort check: a disconnect raced us during transport
	// connect. Active sessions and an explicit (non-auto) connect both
	// being true means the caller deserves an explicit failure rather
	// than a silent success immediately followed by cancellation.
	c.mu.Lock()
	disconnecting := c.disconnectFuture != nil
	c.mu.Unlock()
	if disconnecting && !isAutoConnect && c.hasActiveSessions() {
		err := newError(KindDisconnected, host, "disconnect initiated during connect with active sessions", nil)
		f.resolve(err)
		return err
	}

	if !f.isResolved() && c.hooks.AfterConnect != nil {
		c.mu.Lock()
		c.isSendingConnect = true
		c.mu.Unlock()
		hookErr := c.runHook(ctx, c.hooks.AfterConnect)
		c.mu.Lock()
		c.isSendingConnect = false
		c.mu.Unlock()
		if hookErr != nil {
			wrapped := newError(KindHookFailure, host, "afterConnectFn failed", hookErr)
			f.resolve(wrapped)
			return wrapped
		}
	}

	f.resolve(nil)
	c.transport.SetConnected(true)
	if c.onConnectedFn != nil {
		c.onConnectedFn()
	}
	return nil
}

// Disconnect performs orderly teardown. Idempotent: concurrent and
// repeated calls observe the same teardown. fatalErr, if non-nil, is
// wrapped into the cancellation error given to pending requests cancelled
// by this call (SendRequest swallows that cancellation and returns no
// data) and is passed to the OnDisconnected subscriber.
func (c *Connection) Disconnect(ctx context.Context, fatalErr error) error {
	c.mu.Lock()
	if c.disconnectFuture != nil {
		f := c.disconnectFuture
		c.mu.Unlock()
		return f.wait(ctx)
	}
	f := newFuture()
	c.disconnectFuture = f
	c.disconnectError = fatalErr
	c.mu.Unlock()

	host := c.transport.Host()

	// Cancel before running the hook so beforeDisconnectFn observes an
	// empty queue of user requests and cannot inadvertently revive them.
	c.pending.Cancel(newError(KindDisconnected, host, "disconnect in progress", fatalErr))

	var hookErr error
	if c.hooks.BeforeDisconnect != nil {
		c.mu.Lock()
		c.isSendingDisconnect = true
		c.mu.Unlock()
		hookErr = c.runHook(ctx, c.hooks.BeforeDisconnect)
		c.mu.Lock()
		c.isSendingDisconnect = false
		c.mu.Unlock()
	}

	// The transport teardown and terminal signal still run even if the
	// hook failed — disconnect is always observably complete.
	transportErr := c.transport.Disconnect(ctx)
	c.transport.SetConnected(false)
	if c.onDisconnectedFn != nil {
		c.onDisconnectedFn(fatalErr)
	}

	c.mu.Lock()
	c.connectFuture = nil
	c.mu.Unlock()

	f.resolve(nil)

	if hookErr != nil {
		return newError(KindHookFailure, host, "beforeDisconnectFn failed", hookErr)
	}
	if transportErr != nil {
		return transportErr
	}
	return nil
}

func (c *Connection) runHook(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	hctx := ctx
	if c.hookTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, c.hookTimeout)
		defer cancel()
	}
	return fn(hctx)
}

// SendRequest enqueues an RPC call and waits for its matching response.
// If neither a connect nor a disconnect hook is currently running,
// SendRequest transparently drives Connect first (auto-connect); N
// concurrent SendRequest calls made before any explicit Connect coalesce
// onto the single resulting connect.
func (c *Connection) SendRequest(ctx context.Context, command string, args json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	isConnect := c.isSendingConnect
	isDisconnect := c.isSendingDisconnect
	c.mu.Unlock()

	if !isConnect && !isDisconnect {
		if err := c.connect(ctx, true); err != nil {
			return nil, err
		}
	}

	isInternal := isConnect || isDisconnect
	id, resultCh := c.pending.Create(timeout, isInternal)

	if isInternal {
		c.mu.Lock()
		if isConnect {
			c.connectMessageID = id
		} else {
			c.disconnectMessageID = id
		}
		c.mu.Unlock()
	}
	defer func() {
		if !isInternal {
			return
		}
		c.mu.Lock()
		if isConnect {
			c.connectMessageID = ""
		} else {
			c.disconnectMessageID = ""
		}
		c.mu.Unlock()
	}()

	frame := requestFrame{
		MessageID: id,
		Command:   command,
		Args:      args,
		SendTime:  time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		c.pending.Delete(id)
		return nil, newError(KindTransportSend, c.transport.Host(), "marshal request", err)
	}

	sendErrCh := make(chan error, 1)
	go func() {
		sendErrCh <- c.transport.Send(ctx, raw)
	}()

	// Response wins if both the response and the send outcome are ready;
	// check non-blockingly first before falling into the general select.
	select {
	case res := <-resultCh:
		return c.handleResult(res)
	default:
	}

	select {
	case res := <-resultCh:
		return c.handleResult(res)
	case sendErr := <-sendErrCh:
		if sendErr != nil {
			select {
			case res := <-resultCh:
				return c.handleResult(res)
			default:
			}
			c.pending.Delete(id)
			return nil, newError(KindTransportSend, c.transport.Host(), "transport send failed", sendErr)
		}
		// Send succeeded; the response (or its timeout/cancellation) is
		// still outstanding.
		select {
		case res := <-resultCh:
			return c.handleResult(res)
		case <-ctx.Done():
			c.pending.Delete(id)
			return nil, ctx.Err()
		}
	case <-ctx.Done():
		c.pending.Delete(id)
		return nil, ctx.Err()
	}
}

func (c *Connection) handleResult(res pending.Result) (json.RawMessage, error) {
	if res.Err == nil {
		return res.Data, nil
	}
	if res.Cancelled && c.isDisconnecting() {
		return json.RawMessage(nil), nil
	}
	var timeoutErr *pending.TimeoutError
	if errors.As(res.Err, &timeoutErr) {
		return nil, newError(KindTimeout, c.transport.Host(), "request timed out", res.Err)
	}
	if res.Cancelled {
		return nil, newError(KindCancelled, c.transport.Host(), "request cancelled", res.Err)
	}
	return nil, res.Err
}

func (c *Connection) isDisconnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectFuture != nil || c.isConnectionTerminated
}

// onMessage is the sole inbound dispatch point, wired to the Transport's
// message signal at construction.
func (c *Connection) onMessage(raw []byte) {
	resp, evt, ok := classifyFrame(json.RawMessage(raw))
	if !ok {
		c.log.Warn("coreconn: dropped unclassified frame", "frame", string(raw))
		return
	}
	if resp != nil {
		c.onResponse(resp)
		return
	}
	c.onEvent(evt)
}

func (c *Connection) onResponse(frame *responseFrame) {
	shape, isErr := asErrorShape(frame.Data)
	if !isErr {
		c.pending.Resolve(frame.ResponseID, frame.Data)
		return
	}

	disconnectAdjacent := c.isDisconnecting() || shape.Name == errSessionClosedOrMissing || shape.IsDisconnecting
	passThroughName := shape.Name == errNameBrowserLaunch || shape.Name == errNameDependenciesMissing

	var remapped error
	if disconnectAdjacent && !passThroughName {
		remapped = newError(KindDisconnected, c.transport.Host(), shape.Message, errors.New(shape.Name))
	} else {
		remapped = newError(KindPassThrough, "", shape.Message, errors.New(shape.Name))
	}
	c.pending.Reject(frame.ResponseID, remapped)
}

func (c *Connection) onEvent(frame *eventFrame) {
	if c.onEventFn == nil {
		return
	}
	c.onEventFn(Event{ListenerID: frame.ListenerID, EventType: frame.EventType, Raw: frame.Raw})
}

// onConnectionTerminated is the transport-level "disconnected" observer,
// wired at construction. Latched by isConnectionTerminated so it takes
// effect at most once per connection generation even though the
// underlying transport may deliver the signal more than once.
func (c *Connection) onConnectionTerminated() {
	c.mu.Lock()
	if c.isConnectionTerminated {
		c.mu.Unlock()
		return
	}
	c.isConnectionTerminated = true
	connectMsgID := c.connectMessageID
	disconnectMsgID := c.disconnectMessageID
	wasAutoConnect := c.didAutoConnect
	c.mu.Unlock()

	host := c.transport.Host()

	if c.onDisconnectedFn != nil {
		c.onDisconnectedFn(nil)
	}

	if connectMsgID != "" {
		if wasAutoConnect {
			c.pending.Resolve(connectMsgID, nil)
		} else {
			c.pending.Reject(connectMsgID, newError(KindDisconnected, host, "transport terminated during connect", nil))
		}
	}
	if disconnectMsgID != "" {
		c.pending.Resolve(disconnectMsgID, nil)
	}

	c.pending.Cancel(newError(KindDisconnected, host, "connection terminated", nil))

	if c.hooks.BeforeDisconnect != nil {
		c.mu.Lock()
		c.isSendingDisconnect = true
		c.mu.Unlock()
		_ = c.runHook(context.Background(), c.hooks.BeforeDisconnect)
		c.mu.Lock()
		c.isSendingDisconnect = false
		c.mu.Unlock()
	}
}
