package client

import (
	"context"

	"pkt.systems/statestore/api"
	"pkt.systems/statestore/hlc"
	"pkt.systems/statestore/internal/dispatch"
	"pkt.systems/statestore/transport"
)

// KeyNotification is one change event delivered to a key observer.
type KeyNotification struct {
	// Key is the raw key that changed.
	Key []byte
	// Operation describes the change.
	Operation api.Operation
	// Version is the service version stamp of the change.
	Version hlc.Timestamp
}

// observedDelivery is what the routing loop hands the observation registry
// per notification.
type observedDelivery struct {
	notification *KeyNotification
	ack          transport.AckHandle
}

// KeyObservation receives change notifications for one observed key. It is
// returned by Observe and remains valid until the observation ends: the key
// is unobserved, the client shuts down, the connection drops, or the
// notification stream closes.
type KeyObservation struct {
	// Key is the raw key under observation.
	Key []byte

	receiver *dispatch.Receiver[observedDelivery]
}

// Recv blocks until the next notification for the observed key. The ack
// handle is non-nil only when the client was built with WithAutoAck(false);
// ownership passes to the caller, who decides whether and when to
// acknowledge. Recv returns io.EOF once the observation has ended.
func (o *KeyObservation) Recv(ctx context.Context) (*KeyNotification, transport.AckHandle, error) {
	d, err := o.receiver.Recv(ctx)
	if err != nil {
		return nil, nil, err
	}
	return d.notification, d.ack, nil
}

// Close releases the consumer end of the observation without unobserving
// the key. The registration stays in place, so the service keeps publishing
// and the client keeps distinguishing "observed but abandoned" from "never
// observed"; call Unobserve to stop observation properly.
func (o *KeyObservation) Close() {
	o.receiver.Close()
}
