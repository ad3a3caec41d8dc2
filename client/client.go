package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/statestore/api"
	"pkt.systems/statestore/hlc"
	"pkt.systems/statestore/internal/dispatch"
	"pkt.systems/statestore/internal/keycodec"
	"pkt.systems/statestore/transport"
)

// Response pairs an operation result with the service version stamp for the
// operation, when the service provided one.
type Response[T any] struct {
	// Value is the operation result.
	Value T
	// Version is the service version stamp, or nil when absent.
	Version *hlc.Timestamp
}

// Client lifecycle states. Transitions are one-way.
const (
	stateConstructing int32 = iota
	stateRunning
	stateShuttingDown
	stateShutdown
)

// Client issues state-store commands and routes inbound key change
// notifications to per-key observers. All methods are safe for concurrent
// use. Construct with New and release with Shutdown or Close; using a
// client after shutdown is a contract violation, not a guarded failure.
type Client struct {
	invoker    transport.Invoker
	subscriber transport.Subscriber
	monitor    transport.ConnectionMonitor
	registry   *dispatch.Dispatcher[observedDelivery]
	shutdown   *signal
	logger     pslog.Base

	autoAck           bool
	observationBuffer int

	state atomic.Int32

	closeOnce sync.Once
	closeErr  error
}

// New builds a client over the supplied transport binding and connection
// monitor, and starts the background notification routing loop. The monitor
// must observe the same connection the binding uses. ctx covers
// construction only; the routing loop runs until shutdown or permanent
// stream closure.
func New(ctx context.Context, binding transport.Binding, monitor transport.ConnectionMonitor, opts ...Option) (*Client, error) {
	if binding.Invoker == nil {
		return nil, &ArgumentError{Reason: "binding invoker is required"}
	}
	if binding.Subscriber == nil {
		return nil, &ArgumentError{Reason: "binding subscriber is required"}
	}
	if monitor == nil {
		return nil, &ArgumentError{Reason: "connection monitor is required"}
	}
	c := &Client{
		invoker:    binding.Invoker,
		subscriber: binding.Subscriber,
		monitor:    monitor,
		shutdown:   newSignal(),
		logger:     pslog.NoopLogger(),
		autoAck:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registry = dispatch.New[observedDelivery](c.observationBuffer)

	// The loop outlives ctx: it is cancelled by the shutdown signal followed
	// by stream closure, never by the constructor's context.
	loopCtx, cancel := context.WithCancel(context.Background())
	c.state.Store(stateRunning)
	go func() {
		defer cancel()
		c.runNotificationLoop(loopCtx)
	}()
	c.logDebugCtx(ctx, "client.constructed", "auto_ack", c.autoAck)
	return c, nil
}

// Shutdown stops the client. It fires the routing loop's shutdown signal and
// shuts the command invoker down; the returned error reflects only the
// invoker result. The loop's own unsubscribe retries are best-effort and do
// not block this call. Shutdown is idempotent.
func (c *Client) Shutdown(ctx context.Context) error {
	c.state.CompareAndSwap(stateRunning, stateShuttingDown)
	c.shutdown.notify()
	if err := c.invoker.Shutdown(ctx); err != nil {
		c.logErrorCtx(ctx, "client.shutdown.invoker_error", "error", err)
		return &TransportError{Err: err}
	}
	c.state.Store(stateShutdown)
	c.logInfoCtx(ctx, "client.shutdown")
	return nil
}

// Close implements io.Closer. It fires the same shutdown path as Shutdown
// with a background context and reports the first result on repeat calls.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Shutdown(context.Background())
	})
	return c.closeErr
}

// invoke runs one transport invocation and normalizes failures.
func (c *Client) invoke(ctx context.Context, req transport.Request) (transport.Response, error) {
	resp, err := c.invoker.Invoke(ctx, req)
	if err != nil {
		return transport.Response{}, &TransportError{Op: req.Payload.Op, Err: err}
	}
	if err := resp.Payload.Validate(); err != nil {
		return transport.Response{}, &UnexpectedPayloadError{Op: req.Payload.Op, Kind: resp.Payload.Kind}
	}
	return resp, nil
}

// convertResponse maps a service response through the operation-specific
// table. The mapper reports false for variants that are not valid for the
// operation.
func convertResponse[T any](op api.Op, resp transport.Response, mapper func(api.Response) (T, bool)) (*Response[T], error) {
	if resp.Payload.Kind == api.KindError {
		return nil, &ServiceError{Code: resp.Payload.ErrorCode, Detail: resp.Payload.Detail}
	}
	v, ok := mapper(resp.Payload)
	if !ok {
		return nil, &UnexpectedPayloadError{Op: op, Kind: resp.Payload.Kind}
	}
	return &Response[T]{Value: v, Version: resp.Version}, nil
}

func fencingMetadata(ft *hlc.Timestamp) map[string]string {
	if ft == nil {
		return nil
	}
	return map[string]string{api.FencingTokenMetadataKey: ft.String()}
}

// Set stores value under key. It returns true when the set was applied and
// false when the service declined it because of the supplied SetOptions
// condition.
func (c *Client) Set(ctx context.Context, key, value []byte, timeout time.Duration, opts SetOptions) (*Response[bool], error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := validateTimeout(timeout); err != nil {
		return nil, err
	}
	req := transport.Request{
		Payload: api.Request{
			Op:    api.OpSet,
			Key:   key,
			Value: value,
			SetOptions: api.SetRequestOptions{
				Condition: opts.Condition,
				ExpiresMS: opts.Expiry.Milliseconds(),
			},
		},
		Timeout:  timeout,
		Metadata: fencingMetadata(opts.FencingToken),
	}
	resp, err := c.invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	return convertResponse(api.OpSet, resp, func(p api.Response) (bool, bool) {
		switch p.Kind {
		case api.KindOk:
			return true, true
		case api.KindNotApplied:
			return false, true
		default:
			return false, false
		}
	})
}

// Get reads the value stored under key. A nil Value with a nil error means
// the key was not found.
func (c *Client) Get(ctx context.Context, key []byte, timeout time.Duration) (*Response[[]byte], error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := validateTimeout(timeout); err != nil {
		return nil, err
	}
	resp, err := c.invoke(ctx, transport.Request{
		Payload: api.Request{Op: api.OpGet, Key: key},
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return convertResponse(api.OpGet, resp, func(p api.Response) ([]byte, bool) {
		switch p.Kind {
		case api.KindValue:
			return p.Value, true
		case api.KindNotFound:
			return nil, true
		default:
			return nil, false
		}
	})
}

// Del removes key. It returns the number of keys deleted: 0 when the key
// was not found, otherwise 1.
func (c *Client) Del(ctx context.Context, key []byte, fencingToken *hlc.Timestamp, timeout time.Duration) (*Response[int64], error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := validateTimeout(timeout); err != nil {
		return nil, err
	}
	return c.delInternal(ctx, api.Request{Op: api.OpDel, Key: key}, fencingToken, timeout)
}

// VDel removes key only when its current value equals value. It returns the
// number of keys deleted: 0 when the key was not found, -1 when the value
// did not match, otherwise 1.
func (c *Client) VDel(ctx context.Context, key, value []byte, fencingToken *hlc.Timestamp, timeout time.Duration) (*Response[int64], error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := validateTimeout(timeout); err != nil {
		return nil, err
	}
	return c.delInternal(ctx, api.Request{Op: api.OpVDel, Key: key, Value: value}, fencingToken, timeout)
}

func (c *Client) delInternal(ctx context.Context, payload api.Request, fencingToken *hlc.Timestamp, timeout time.Duration) (*Response[int64], error) {
	resp, err := c.invoke(ctx, transport.Request{
		Payload:  payload,
		Timeout:  timeout,
		Metadata: fencingMetadata(fencingToken),
	})
	if err != nil {
		return nil, err
	}
	return convertResponse(payload.Op, resp, func(p api.Response) (int64, bool) {
		switch p.Kind {
		case api.KindNotFound:
			return 0, true
		case api.KindNotApplied:
			return -1, true
		case api.KindValuesDeleted:
			return p.ValuesDeleted, true
		default:
			return 0, false
		}
	})
}

func (c *Client) invokeObserve(ctx context.Context, key []byte, timeout time.Duration) (*Response[struct{}], error) {
	resp, err := c.invoke(ctx, transport.Request{
		Payload: api.Request{Op: api.OpKeyNotify, Key: key},
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return convertResponse(api.OpKeyNotify, resp, func(p api.Response) (struct{}, bool) {
		if p.Kind == api.KindOk {
			return struct{}{}, true
		}
		return struct{}{}, false
	})
}

// Observe starts observing changes to key and returns the observation
// handle notifications arrive on.
//
// The key is registered locally before the service is invoked so an early
// notification cannot race past a missing registration; a failed invoke
// removes the registration again before the error is returned. Observing a
// key this client already observes fails with ErrDuplicateObserve and
// performs no transport call.
//
// Server-side observation state does not survive a disconnect: after a
// reconnect every key must be observed again.
func (c *Client) Observe(ctx context.Context, key []byte, timeout time.Duration) (*Response[*KeyObservation], error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := validateTimeout(timeout); err != nil {
		return nil, err
	}
	token := keycodec.Encode(key)
	rx, err := c.registry.Register(token)
	if err != nil {
		if errors.Is(err, dispatch.ErrAlreadyRegistered) {
			return nil, ErrDuplicateObserve
		}
		return nil, err
	}
	resp, err := c.invokeObserve(ctx, key, timeout)
	if err != nil {
		if c.registry.Unregister(token) {
			c.logDebugCtx(ctx, "client.observe.rollback", "key_token", token)
		}
		return nil, err
	}
	c.logInfoCtx(ctx, "client.observe.begin", "key_token", token)
	return &Response[*KeyObservation]{
		Value:   &KeyObservation{Key: key, receiver: rx},
		Version: resp.Version,
	}, nil
}

// Unobserve stops observing key. It returns true when the service was
// observing the key and false when it was not; the local registration is
// removed in both cases.
func (c *Client) Unobserve(ctx context.Context, key []byte, timeout time.Duration) (*Response[bool], error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := validateTimeout(timeout); err != nil {
		return nil, err
	}
	resp, err := c.invoke(ctx, transport.Request{
		Payload: api.Request{
			Op:               api.OpKeyNotify,
			Key:              key,
			KeyNotifyOptions: api.KeyNotifyOptions{Stop: true},
		},
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	out, err := convertResponse(api.OpKeyNotify, resp, func(p api.Response) (bool, bool) {
		switch p.Kind {
		case api.KindOk:
			return true, true
		case api.KindNotFound:
			return false, true
		default:
			return false, false
		}
	})
	if err != nil {
		return nil, err
	}
	token := keycodec.Encode(key)
	if c.registry.Unregister(token) {
		c.logDebugCtx(ctx, "client.unobserve.unregistered", "key_token", token)
	} else {
		c.logDebugCtx(ctx, "client.unobserve.not_registered", "key_token", token)
	}
	return out, nil
}
