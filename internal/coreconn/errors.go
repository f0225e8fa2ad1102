package coreconn

import (
	"errors"
	"fmt"
)

// Kind classifies why a Connection operation failed, following the error
// taxonomy of the connection controller rather than any particular Go error
// type. Callers switch on Kind, never on error strings.
type Kind int

const (
	// KindPassThrough carries an inbound error payload verbatim — nothing
	// about it indicated a connection-level problem.
	KindPassThrough Kind = iota
	// KindDisconnected covers transport termination and disconnect-adjacent
	// inbound errors, remapped with host context.
	KindDisconnected
	// KindTimeout marks a pending entry whose deadline elapsed before a
	// response arrived.
	KindTimeout
	// KindCancelled marks a pending entry mass-failed by a disconnect.
	// sendRequest swallows this kind once a disconnect or transport
	// termination has been observed in the current connection generation.
	KindCancelled
	// KindTransportSend marks a failure of Transport.Send itself.
	KindTransportSend
	// KindHookFailure marks an error returned by afterConnectFn or
	// beforeDisconnectFn. A panic in a hook is not recovered.
	KindHookFailure
)

func (k Kind) String() string {
	switch k {
	case KindDisconnected:
		return "disconnected"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindTransportSend:
		return "transport_send"
	case KindHookFailure:
		return "hook_failure"
	case KindPassThrough:
		return "pass_through"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by Connection operations. It wraps the
// underlying cause so callers can still reach it with errors.As/errors.Is,
// while exposing a Kind for coarse-grained handling.
type Error struct {
	Kind Kind
	Host string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("coreconn: %s (host=%s): %s", e.Kind, e.Host, e.Msg)
	}
	return fmt.Sprintf("coreconn: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, host, msg string, err error) *Error {
	return &Error{Kind: kind, Host: host, Msg: msg, Err: err}
}

// KindOf reports the Kind of err if it (or something it wraps) is a
// *coreconn.Error, and ok=false otherwise.
func KindOf(err error) (kind Kind, ok bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return KindPassThrough, false
}

// errSessionClosedOrMissing is the sentinel error name recognized on inbound
// response payloads as disconnect-adjacent, per the wire error-shape
// contract (errorShape.Name == "SessionClosedOrMissingError").
const errSessionClosedOrMissing = "SessionClosedOrMissingError"

// Names of inbound errors that are meaningful to the caller regardless of
// connection state and must never be remapped to KindDisconnected.
const (
	errNameBrowserLaunch       = "BrowserLaunchError"
	errNameDependenciesMissing = "DependenciesMissingError"
)
