// Package dispatch routes values to per-identifier receivers. It backs the
// client's key observation registry: at most one live receiver per
// identifier, explicit unregistration, and fan-in dispatch from a single
// producer loop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultBuffer is the per-receiver channel capacity used when the caller
// does not supply one.
const DefaultBuffer = 128

// ErrAlreadyRegistered is returned by Register when the identifier already
// has a live receiver.
var ErrAlreadyRegistered = errors.New("dispatch: receiver already registered")

// ErrorKind classifies a dispatch failure.
type ErrorKind int

const (
	// KindNotFound means no receiver is registered for the identifier.
	KindNotFound ErrorKind = iota + 1
	// KindSendFailed means a receiver is registered but the value could not
	// be delivered: the consumer closed its end or stopped draining.
	KindSendFailed
)

// Error describes a failed Dispatch call.
type Error struct {
	// ID is the identifier the dispatch targeted.
	ID string
	// Kind classifies the failure.
	Kind ErrorKind
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("dispatch: no receiver registered for %q", e.ID)
	case KindSendFailed:
		return fmt.Sprintf("dispatch: send to receiver %q failed", e.ID)
	default:
		return fmt.Sprintf("dispatch: unknown failure for %q", e.ID)
	}
}

// Receiver is the consumer end of one registration.
type Receiver[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
}

// Recv blocks until a value arrives, the registration is closed, or ctx is
// done. A closed registration yields io.EOF after buffered values drain.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-r.done:
		return zero, io.EOF
	default:
	}
	select {
	case v, ok := <-r.ch:
		if !ok {
			return zero, io.EOF
		}
		return v, nil
	case <-r.done:
		return zero, io.EOF
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close drops the consumer end. It does not unregister the identifier from
// the dispatcher, so a closed-but-registered receiver stays distinguishable
// from one that was never registered. Subsequent Dispatch calls for the
// identifier fail with KindSendFailed.
func (r *Receiver[T]) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// Dispatcher owns the identifier-to-receiver map. All methods are safe for
// concurrent use; nothing blocks while the internal lock is held.
type Dispatcher[T any] struct {
	buffer int

	mu        sync.Mutex
	receivers map[string]*Receiver[T]
}

// New returns a dispatcher whose receivers buffer up to buffer values.
// A non-positive buffer selects DefaultBuffer.
func New[T any](buffer int) *Dispatcher[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Dispatcher[T]{
		buffer:    buffer,
		receivers: make(map[string]*Receiver[T]),
	}
}

// Register creates the receiver for id. It fails with ErrAlreadyRegistered
// when id already has one, whether or not its consumer is still draining.
func (d *Dispatcher[T]) Register(id string) (*Receiver[T], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.receivers[id]; ok {
		return nil, ErrAlreadyRegistered
	}
	r := &Receiver[T]{
		ch:   make(chan T, d.buffer),
		done: make(chan struct{}),
	}
	d.receivers[id] = r
	return r, nil
}

// Unregister removes id and closes the producer side of its receiver so any
// blocked or future Recv observes end-of-stream. It reports whether a
// registration was removed.
func (d *Dispatcher[T]) Unregister(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.receivers[id]
	if !ok {
		return false
	}
	delete(d.receivers, id)
	close(r.ch)
	return true
}

// UnregisterAll closes every registration's producer side and clears the map.
func (d *Dispatcher[T]) UnregisterAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, r := range d.receivers {
		delete(d.receivers, id)
		close(r.ch)
	}
}

// Len reports the number of live registrations.
func (d *Dispatcher[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.receivers)
}

// Dispatch delivers v to the receiver registered for id. Delivery is
// non-blocking: a receiver whose consumer closed its end, or whose buffer is
// full, fails with KindSendFailed and keeps its registration. Values
// delivered to one receiver arrive in Dispatch call order.
func (d *Dispatcher[T]) Dispatch(id string, v T) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.receivers[id]
	if !ok {
		return &Error{ID: id, Kind: KindNotFound}
	}
	select {
	case <-r.done:
		return &Error{ID: id, Kind: KindSendFailed}
	default:
	}
	select {
	case r.ch <- v:
		return nil
	default:
		return &Error{ID: id, Kind: KindSendFailed}
	}
}
