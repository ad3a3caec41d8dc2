package client

import (
	"context"
	"errors"
	"io"

	"pkt.systems/statestore/internal/dispatch"
	"pkt.systems/statestore/internal/keycodec"
	"pkt.systems/statestore/transport"
)

// maxShutdownAttempts bounds subscriber unsubscribe retries per loop run.
const maxShutdownAttempts = 3

// signal is an edge-triggered wakeup shared between Shutdown callers and the
// routing loop. Notifications coalesce: notifying an already-armed signal is
// a no-op.
type signal struct {
	ch chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{}, 1)}
}

func (s *signal) notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *signal) wait() <-chan struct{} {
	return s.ch
}

type recvEvent struct {
	delivery transport.Delivery
	err      error
}

// watchDisconnects emits one value per connected-to-disconnected transition
// and re-arms for the next cycle.
func (c *Client) watchDisconnects(ctx context.Context, disconnects chan<- struct{}) {
	for {
		if err := c.monitor.Connected(ctx); err != nil {
			return
		}
		if err := c.monitor.Disconnected(ctx); err != nil {
			return
		}
		select {
		case disconnects <- struct{}{}:
		case <-ctx.Done():
			return
		}
	}
}

// pumpDeliveries forwards subscriber receives into events and closes the
// channel on permanent stream end.
func (c *Client) pumpDeliveries(ctx context.Context, events chan<- recvEvent) {
	for {
		d, err := c.subscriber.Recv(ctx)
		if errors.Is(err, io.EOF) {
			close(events)
			return
		}
		if err != nil && ctx.Err() != nil {
			return
		}
		select {
		case events <- recvEvent{delivery: d, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// runNotificationLoop is the client's single background task. It waits for
// whichever comes first of: a shutdown request, a connection loss, or the
// next inbound notification, and only terminates when the notification
// stream ends permanently.
func (c *Client) runNotificationLoop(ctx context.Context) {
	disconnects := make(chan struct{}, 1)
	go c.watchDisconnects(ctx, disconnects)

	events := make(chan recvEvent)
	go c.pumpDeliveries(ctx, events)

	// Shared between the shutdown branch and the receive-error path,
	// reset only when the loop starts.
	shutdownAttempts := 0

	for {
		select {
		case <-c.shutdown.wait():
			if err := c.subscriber.Shutdown(ctx); err != nil {
				c.logErrorCtx(ctx, "client.notify.unsubscribe_error", "error", err, "attempts", shutdownAttempts)
				if shutdownAttempts < maxShutdownAttempts {
					shutdownAttempts++
					c.shutdown.notify()
				}
			} else {
				c.logInfoCtx(ctx, "client.notify.unsubscribed")
			}

		case <-disconnects:
			// The service drops server-side observation state on
			// disconnect; local state must mirror that unconditionally.
			c.logWarnCtx(ctx, "client.notify.disconnected_dropping_observations", "observations", c.registry.Len())
			c.registry.UnregisterAll()

		case ev, ok := <-events:
			if !ok {
				c.logInfoCtx(ctx, "client.notify.stream_closed")
				c.registry.UnregisterAll()
				return
			}
			if ev.err != nil {
				c.logErrorCtx(ctx, "client.notify.recv_error", "error", ev.err)
				if shutdownAttempts < maxShutdownAttempts {
					c.shutdown.notify()
				}
				continue
			}
			c.routeDelivery(ctx, ev.delivery)
		}
	}
}

// routeDelivery validates one inbound notification and dispatches it to the
// observer registered for its key. Failures are diagnostics only; they never
// fail a caller-visible operation.
func (c *Client) routeDelivery(ctx context.Context, d transport.Delivery) {
	token := d.Notification.TopicTokens[transport.TokenKeyName]
	if token == "" {
		c.logErrorCtx(ctx, "client.notify.missing_key_token")
		return
	}
	if d.Notification.Timestamp == nil {
		c.logErrorCtx(ctx, "client.notify.missing_version", "key_token", token)
		return
	}
	key, err := keycodec.Decode(token)
	if err != nil {
		c.logErrorCtx(ctx, "client.notify.malformed_key_token", "key_token", token, "error", err)
		return
	}

	ack := d.Ack
	if c.autoAck && ack != nil {
		if err := ack.Ack(ctx); err != nil {
			c.logWarnCtx(ctx, "client.notify.auto_ack_error", "key_token", token, "error", err)
		}
		ack = nil
	}

	notification := &KeyNotification{
		Key:       key,
		Operation: d.Notification.Payload,
		Version:   *d.Notification.Timestamp,
	}
	err = c.registry.Dispatch(token, observedDelivery{notification: notification, ack: ack})
	if err == nil {
		c.logDebugCtx(ctx, "client.notify.dispatched", "key_token", token, "op", notification.Operation.Kind)
		return
	}
	var derr *dispatch.Error
	if errors.As(err, &derr) && derr.Kind == dispatch.KindSendFailed {
		c.logWarnCtx(ctx, "client.notify.observer_gone", "key_token", token)
		return
	}
	c.logWarnCtx(ctx, "client.notify.not_observed", "key_token", token)
}
