package client_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"pkt.systems/statestore/api"
	"pkt.systems/statestore/client"
	"pkt.systems/statestore/hlc"
	"pkt.systems/statestore/transport"
)

func TestObserveDeliversNotificationsInOrder(t *testing.T) {
	t.Parallel()

	cli, _, sub, _ := newTestClient(t)
	key := []byte("orders/42")
	resp, err := cli.Observe(context.Background(), key, time.Second)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	obs := resp.Value

	values := []string{"first", "second", "third"}
	for i, v := range values {
		ts := &hlc.Timestamp{WallMS: int64(100 + i), NodeID: "svc"}
		sub.push(deliveryFor(key, api.Operation{Kind: api.OperationSet, Value: []byte(v)}, ts, nil))
	}
	sub.push(deliveryFor(key, api.Operation{Kind: api.OperationDel}, &hlc.Timestamp{WallMS: 200, NodeID: "svc"}, nil))

	for i, v := range values {
		n, _, err := obs.Recv(recvCtx(t))
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		if string(n.Key) != string(key) {
			t.Fatalf("recv %d: key %q", i, n.Key)
		}
		if n.Operation.Kind != api.OperationSet || string(n.Operation.Value) != v {
			t.Fatalf("recv %d: got %q %q, want set %q", i, n.Operation.Kind, n.Operation.Value, v)
		}
		if n.Version.WallMS != int64(100+i) {
			t.Fatalf("recv %d: version %v", i, n.Version)
		}
	}
	n, _, err := obs.Recv(recvCtx(t))
	if err != nil {
		t.Fatalf("recv del: %v", err)
	}
	if n.Operation.Kind != api.OperationDel {
		t.Fatalf("expected delete notification, got %q", n.Operation.Kind)
	}
}

func TestObserveRegistersBeforeServiceInvoke(t *testing.T) {
	t.Parallel()

	cli, inv, sub, _ := newTestClient(t)
	key := []byte("race-key")
	ts := &hlc.Timestamp{WallMS: 1, NodeID: "svc"}

	// The service may publish a change the instant the observe request
	// lands. Model that by emitting a notification before the observe
	// response is returned.
	inv.respond = func(req transport.Request) (transport.Response, error) {
		if req.Payload.Op == api.OpKeyNotify {
			sub.push(deliveryFor(key, api.Operation{Kind: api.OperationSet, Value: []byte("early")}, ts, nil))
		}
		return transport.Response{Payload: api.Response{Kind: api.KindOk}}, nil
	}

	resp, err := cli.Observe(context.Background(), key, time.Second)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	n, _, err := resp.Value.Recv(recvCtx(t))
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(n.Operation.Value) != "early" {
		t.Fatalf("expected the early notification, got %q", n.Operation.Value)
	}
}

func TestObserveDuplicateFailsWithoutTransportCall(t *testing.T) {
	t.Parallel()

	cli, inv, _, _ := newTestClient(t)
	key := []byte("k")
	if _, err := cli.Observe(context.Background(), key, time.Second); err != nil {
		t.Fatalf("observe: %v", err)
	}
	before := inv.callCount()
	_, err := cli.Observe(context.Background(), key, time.Second)
	if !errors.Is(err, client.ErrDuplicateObserve) {
		t.Fatalf("expected ErrDuplicateObserve, got %v", err)
	}
	if inv.callCount() != before {
		t.Fatal("duplicate observe must not reach the transport")
	}
}

func TestObserveRollsBackRegistrationOnInvokeFailure(t *testing.T) {
	t.Parallel()

	cli, inv, _, _ := newTestClient(t)
	key := []byte("k")

	inv.respond = func(transport.Request) (transport.Response, error) {
		return transport.Response{}, errors.New("request timed out")
	}
	_, err := cli.Observe(context.Background(), key, time.Second)
	var trErr *client.TransportError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}

	// A failed observe must not wedge the key.
	inv.respond = nil
	if _, err := cli.Observe(context.Background(), key, time.Second); err != nil {
		t.Fatalf("re-observe after failure: %v", err)
	}
}

func TestObserveRollsBackRegistrationOnServiceError(t *testing.T) {
	t.Parallel()

	cli, inv, _, _ := newTestClient(t)
	key := []byte("k")

	inv.respond = respondWith(api.Response{Kind: api.KindError, ErrorCode: "quota_exceeded"}, nil)
	_, err := cli.Observe(context.Background(), key, time.Second)
	var svcErr *client.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}

	inv.respond = nil
	if _, err := cli.Observe(context.Background(), key, time.Second); err != nil {
		t.Fatalf("re-observe after service error: %v", err)
	}
}

func TestUnobserveResponseMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		resp api.Response
		want bool
	}{
		{"was_observed", api.Response{Kind: api.KindOk}, true},
		{"was_not_observed", api.Response{Kind: api.KindNotFound}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cli, inv, _, _ := newTestClient(t)
			inv.respond = respondWith(tc.resp, nil)
			resp, err := cli.Unobserve(context.Background(), []byte("k"), time.Second)
			if err != nil {
				t.Fatalf("unobserve: %v", err)
			}
			if resp.Value != tc.want {
				t.Fatalf("expected %t, got %t", tc.want, resp.Value)
			}
		})
	}
}

func TestUnobserveEndsObservation(t *testing.T) {
	t.Parallel()

	cli, _, _, _ := newTestClient(t)
	key := []byte("k")
	resp, err := cli.Observe(context.Background(), key, time.Second)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	obs := resp.Value

	if _, err := cli.Unobserve(context.Background(), key, time.Second); err != nil {
		t.Fatalf("unobserve: %v", err)
	}
	if _, _, err := obs.Recv(recvCtx(t)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after unobserve, got %v", err)
	}

	// The key is free for a fresh observation.
	if _, err := cli.Observe(context.Background(), key, time.Second); err != nil {
		t.Fatalf("re-observe after unobserve: %v", err)
	}
}

func TestUnobserveSendsStopFlag(t *testing.T) {
	t.Parallel()

	cli, inv, _, _ := newTestClient(t)
	if _, err := cli.Unobserve(context.Background(), []byte("k"), time.Second); err != nil {
		t.Fatalf("unobserve: %v", err)
	}
	req := inv.lastCall(t)
	if req.Payload.Op != api.OpKeyNotify || !req.Payload.KeyNotifyOptions.Stop {
		t.Fatalf("expected keynotify stop request, got %+v", req.Payload)
	}
}

func TestObservationCloseKeepsRegistration(t *testing.T) {
	t.Parallel()

	cli, _, _, _ := newTestClient(t)
	key := []byte("k")
	resp, err := cli.Observe(context.Background(), key, time.Second)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	resp.Value.Close()

	// Closing only abandons the consumer end; the key is still observed.
	_, err = cli.Observe(context.Background(), key, time.Second)
	if !errors.Is(err, client.ErrDuplicateObserve) {
		t.Fatalf("expected ErrDuplicateObserve after Close, got %v", err)
	}
}
