// Package transport declares the capabilities the state-store client
// consumes from its messaging substrate: correlated request/response
// invocation, a stream of decoded change notifications, and connection
// state monitoring. Bindings (for example transport/natstransport) own the
// wire protocol, topic matching, and payload serialization.
package transport

import (
	"context"
	"time"

	"pkt.systems/statestore/api"
	"pkt.systems/statestore/hlc"
)

// TokenKeyName is the topic token under which a notification carries the
// canonical encoded key of the changed key.
const TokenKeyName = "keyName"

// Request is one command invocation handed to an Invoker.
type Request struct {
	// Payload is the decoded command to serialize and send.
	Payload api.Request
	// Timeout bounds how long the invoker waits for the correlated response.
	Timeout time.Duration
	// Metadata carries opaque request properties such as fencing tokens.
	Metadata map[string]string
}

// Response is the correlated reply to one invocation.
type Response struct {
	// Payload is the decoded service response.
	Payload api.Response
	// Version is the service version stamp for the operation, when provided.
	Version *hlc.Timestamp
}

// Invoker performs correlated request/response invocations.
type Invoker interface {
	// Invoke sends one request and waits for its correlated response.
	Invoke(ctx context.Context, req Request) (Response, error)
	// Shutdown releases invoker resources. The invoker must not be used
	// afterwards.
	Shutdown(ctx context.Context) error
}

// Notification is one decoded inbound change event.
type Notification struct {
	// TopicTokens are the named segments extracted from the delivery topic.
	TopicTokens map[string]string
	// Payload is the decoded change operation.
	Payload api.Operation
	// Timestamp is the service version stamp of the change, when provided.
	Timestamp *hlc.Timestamp
}

// AckHandle acknowledges one delivery. Bindings hand one out per
// notification only when auto-acknowledgment is disabled.
type AckHandle interface {
	// Ack confirms the delivery to the substrate.
	Ack(ctx context.Context) error
}

// Delivery pairs a notification with its optional acknowledgment handle.
type Delivery struct {
	Notification Notification
	// Ack is nil when the binding auto-acknowledges deliveries.
	Ack AckHandle
}

// Subscriber yields the inbound notification stream.
type Subscriber interface {
	// Recv blocks until the next delivery. It returns io.EOF when the
	// stream has ended permanently; any other error is a per-receive
	// failure and the stream may still produce further deliveries.
	Recv(ctx context.Context) (Delivery, error)
	// Shutdown unsubscribes from the notification stream. After a
	// successful Shutdown the stream drains and ends with io.EOF.
	Shutdown(ctx context.Context) error
}

// ConnectionMonitor exposes level waits on the substrate connection state.
type ConnectionMonitor interface {
	// Connected returns once the connection is established, or with ctx's
	// error.
	Connected(ctx context.Context) error
	// Disconnected returns once the connection is lost, or with ctx's
	// error.
	Disconnected(ctx context.Context) error
}

// Binding bundles the two transport capabilities a client consumes. Both
// fields are required.
type Binding struct {
	Invoker    Invoker
	Subscriber Subscriber
}
