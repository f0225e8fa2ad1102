package coreconn

import (
	"context"
	"log/slog"
	"time"
)

// Hooks brackets the connection lifecycle with user-supplied procedures,
// the Go rendering of the source's afterConnectFn/beforeDisconnectFn. Both
// are optional; either may call SendRequest on the Connection being
// constructed — those calls are automatically tagged as internal handshake
// requests (see §4.3 of the connection contract this package implements).
type Hooks struct {
	// AfterConnect runs once the transport's connect has succeeded, before
	// connect() resolves and before "connected" is emitted.
	AfterConnect func(ctx context.Context) error
	// BeforeDisconnect runs after pending user requests have been
	// cancelled but before the transport's disconnect is driven. It runs a
	// second time (and must be idempotent) if the transport terminates
	// abruptly after an orderly disconnect already ran it.
	BeforeDisconnect func(ctx context.Context) error
}

// Option configures a Connection at construction, mirroring the teacher's
// functional-options pattern (internal/lifecycle/manager.go's
// InstanceOption) rather than a config struct or subclassing.
type Option func(*Connection)

// WithHooks installs the handshake hooks.
func WithHooks(h Hooks) Option {
	return func(c *Connection) { c.hooks = h }
}

// WithLogger installs a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Connection) { c.log = l }
}

// WithHasActiveSessions installs the hasActiveSessions predicate consulted
// during the handshake-abort check in connect(). Defaults to a predicate
// that always returns false, per §9's "model as a predicate supplied at
// construction" design note.
func WithHasActiveSessions(fn func() bool) Option {
	return func(c *Connection) { c.hasActiveSessions = fn }
}

// WithConnectTimeout sets the timeout applied to every Transport.Connect
// call, on top of the caller's context (the earlier deadline wins). Zero
// disables it. Defaults to 30s, matching the source's default.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Connection) { c.connectTimeout = d }
}

// WithHookTimeout sets a deadline on the context passed to each
// AfterConnect/BeforeDisconnect invocation. A hook that returns an error
// when that context expires fails as a HookFailure; a hook that ignores its
// context is not stopped. Zero (the default) means no bound beyond the
// caller's own context.
func WithHookTimeout(d time.Duration) Option {
	return func(c *Connection) { c.hookTimeout = d }
}
