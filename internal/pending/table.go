// Package pending tracks in-flight RPC requests keyed by message id.
//
// A Table owns one entry per outstanding request: a one-shot result channel,
// an optional timeout timer, and an isInternal flag marking requests sent
// from within a connection handshake hook. Every entry completes at most
// once, whether by its own response, its timer, or a mass Cancel; an entry
// removed with Delete never completes.
package pending

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"
)

// Result is delivered to the caller awaiting a pending entry.
type Result struct {
	// Data is the response payload. Nil when Err is set.
	Data json.RawMessage
	// Err is set when the entry was rejected or timed out.
	Err error
	// Cancelled is true when Err came from a Table.Cancel mass-failure,
	// as opposed to an individual Reject (e.g. a remapped error response).
	// Callers use this to distinguish "my request was superseded by
	// teardown" from "my request failed on its own merits".
	Cancelled bool
}

type entry struct {
	id         string
	isInternal bool
	ch         chan Result
	timer      *time.Timer
	once       sync.Once
}

func (e *entry) complete(res Result) {
	e.once.Do(func() {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.ch <- res
		close(e.ch)
	})
}

// Table is the set of outstanding requests for one connection instance.
// The zero value is not usable; construct with New.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
	nextID  uint64
}

// New creates an empty pending table.
func New() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// TimeoutError is returned (wrapped by the caller's error-kind remapping) when
// an entry's deadline fires before a response arrives.
type TimeoutError struct {
	ID string
}

func (e *TimeoutError) Error() string {
	return "pending: request " + e.ID + " timed out"
}

// Create allocates a fresh id, unique within this Table, and an entry for it. If timeout
// is positive, the entry is rejected with a *TimeoutError and removed when
// the timer fires before resolution. isInternal tags the entry as belonging
// to a connection handshake hook rather than ordinary user traffic.
//
// The returned channel receives one Result and is then closed, unless the
// entry is removed with Delete, in which case it receives nothing.
func (t *Table) Create(timeout time.Duration, isInternal bool) (id string, result <-chan Result) {
	t.mu.Lock()
	t.nextID++
	id = strconv.FormatUint(t.nextID, 10)
	e := &entry{id: id, isInternal: isInternal, ch: make(chan Result, 1)}
	t.entries[id] = e
	t.mu.Unlock()

	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() {
			t.reject(id, &TimeoutError{ID: id}, false)
		})
	}
	return id, e.ch
}

// Resolve fulfils the entry for id with data and removes it. A no-op if no
// entry exists for id (a late response after cancellation is discarded).
// Returns whether an entry was found.
func (t *Table) Resolve(id string, data json.RawMessage) bool {
	e := t.remove(id)
	if e == nil {
		return false
	}
	e.complete(Result{Data: data})
	return true
}

// Reject fails the entry for id with err and removes it. A no-op if no entry
// exists for id.
func (t *Table) Reject(id string, err error) bool {
	return t.reject(id, err, false)
}

func (t *Table) reject(id string, err error, cancelled bool) bool {
	e := t.remove(id)
	if e == nil {
		return false
	}
	e.complete(Result{Err: err, Cancelled: cancelled})
	return true
}

// Delete forcibly removes the entry for id without resolving or rejecting
// it — the caller has abandoned the request (e.g. a send failure with
// teardown already underway). The entry's channel is never written to and
// is left for the garbage collector.
func (t *Table) Delete(id string) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if ok && e.timer != nil {
		e.timer.Stop()
	}
}

// Cancel fails every outstanding non-internal entry with err. Used on
// disconnect and on transport termination. Entries created for internal
// handshake requests (isInternal) are exempted and remain in the table,
// since a handshake hook's own request must survive the mass-cancel that
// precedes it. Entries resolved concurrently with Cancel (a resolve/timeout
// race) still complete exactly once — Cancel only touches what's still in
// the table at the instant it locks.
func (t *Table) Cancel(err error) {
	t.mu.Lock()
	var toCancel []*entry
	remaining := make(map[string]*entry, len(t.entries))
	for id, e := range t.entries {
		if e.isInternal {
			remaining[id] = e
			continue
		}
		toCancel = append(toCancel, e)
	}
	t.entries = remaining
	t.mu.Unlock()

	for _, e := range toCancel {
		e.complete(Result{Err: err, Cancelled: true})
	}
}

// Len reports the number of outstanding entries. Intended for tests and
// diagnostics only.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Table) remove(id string) *entry {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return e
}
