package client_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"pkt.systems/statestore/api"
	"pkt.systems/statestore/client"
	"pkt.systems/statestore/hlc"
	"pkt.systems/statestore/internal/keycodec"
	"pkt.systems/statestore/transport"
)

type fakeInvoker struct {
	mu            sync.Mutex
	calls         []transport.Request
	respond       func(transport.Request) (transport.Response, error)
	shutdownCalls int
	shutdownErr   error
}

func (f *fakeInvoker) Invoke(_ context.Context, req transport.Request) (transport.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return transport.Response{Payload: api.Response{Kind: api.KindOk}}, nil
	}
	return respond(req)
}

func (f *fakeInvoker) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdownCalls++
	return f.shutdownErr
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeInvoker) lastCall(t *testing.T) transport.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no transport invocations recorded")
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeInvoker) shutdownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdownCalls
}

type recvResult struct {
	delivery transport.Delivery
	err      error
}

type fakeSubscriber struct {
	events chan recvResult
	closed chan struct{}

	mu              sync.Mutex
	shutdownCalls   int
	shutdownErr     func(call int) error
	closeOnShutdown bool

	closeOnce sync.Once
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		events: make(chan recvResult, 32),
		closed: make(chan struct{}),
	}
}

func (f *fakeSubscriber) Recv(ctx context.Context) (transport.Delivery, error) {
	select {
	case ev := <-f.events:
		return ev.delivery, ev.err
	case <-f.closed:
		select {
		case ev := <-f.events:
			return ev.delivery, ev.err
		default:
			return transport.Delivery{}, io.EOF
		}
	case <-ctx.Done():
		return transport.Delivery{}, ctx.Err()
	}
}

func (f *fakeSubscriber) Shutdown(context.Context) error {
	f.mu.Lock()
	f.shutdownCalls++
	call := f.shutdownCalls
	errFn := f.shutdownErr
	closeAfter := f.closeOnShutdown
	f.mu.Unlock()
	if errFn != nil {
		if err := errFn(call); err != nil {
			return err
		}
	}
	if closeAfter {
		f.close()
	}
	return nil
}

func (f *fakeSubscriber) close() {
	f.closeOnce.Do(func() { close(f.closed) })
}

func (f *fakeSubscriber) push(d transport.Delivery) {
	f.events <- recvResult{delivery: d}
}

func (f *fakeSubscriber) pushErr(err error) {
	f.events <- recvResult{err: err}
}

func (f *fakeSubscriber) shutdownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdownCalls
}

type fakeMonitor struct {
	connectC    chan struct{}
	disconnectC chan struct{}
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{
		connectC:    make(chan struct{}),
		disconnectC: make(chan struct{}),
	}
}

func (m *fakeMonitor) Connected(ctx context.Context) error {
	select {
	case <-m.connectC:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *fakeMonitor) Disconnected(ctx context.Context) error {
	select {
	case <-m.disconnectC:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cycleDisconnect drives one connected-then-disconnected transition. Sends
// block until the routing loop's watcher consumes them, so the transition is
// observed before this returns.
func (m *fakeMonitor) cycleDisconnect(t *testing.T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	select {
	case m.connectC <- struct{}{}:
	case <-deadline:
		t.Fatal("connection watcher never waited for connect")
	}
	select {
	case m.disconnectC <- struct{}{}:
	case <-deadline:
		t.Fatal("connection watcher never waited for disconnect")
	}
}

type fakeAck struct {
	mu    sync.Mutex
	acked int
}

func (a *fakeAck) Ack(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked++
	return nil
}

func (a *fakeAck) ackCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acked
}

func newTestClient(t *testing.T, opts ...client.Option) (*client.Client, *fakeInvoker, *fakeSubscriber, *fakeMonitor) {
	t.Helper()
	inv := &fakeInvoker{}
	sub := newFakeSubscriber()
	mon := newFakeMonitor()
	cli, err := client.New(context.Background(), transport.Binding{Invoker: inv, Subscriber: sub}, mon, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(sub.close)
	return cli, inv, sub, mon
}

func deliveryFor(key []byte, op api.Operation, ts *hlc.Timestamp, ack transport.AckHandle) transport.Delivery {
	return transport.Delivery{
		Notification: transport.Notification{
			TopicTokens: map[string]string{transport.TokenKeyName: keycodec.Encode(key)},
			Payload:     op,
			Timestamp:   ts,
		},
		Ack: ack,
	}
}

func respondWith(resp api.Response, version *hlc.Timestamp) func(transport.Request) (transport.Response, error) {
	return func(transport.Request) (transport.Response, error) {
		return transport.Response{Payload: resp, Version: version}, nil
	}
}

func recvCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}
