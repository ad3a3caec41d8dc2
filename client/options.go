package client

import (
	"time"

	"pkt.systems/pslog"
	"pkt.systems/statestore/api"
	"pkt.systems/statestore/hlc"
)

// Option customizes client construction.
type Option func(*Client)

// WithLogger installs a structured logger for client diagnostics.
// Passing nil falls back to pslog.NoopLogger().
func WithLogger(logger pslog.Base) Option {
	return func(c *Client) {
		if logger == nil {
			c.logger = pslog.NoopLogger()
			return
		}
		c.logger = logger
	}
}

// WithAutoAck controls notification acknowledgment. When enabled (the
// default) the client acknowledges each delivery as it is routed and
// observers receive no ack handle. When disabled, the ack handle is passed
// through to the observer, which decides whether and when to acknowledge.
func WithAutoAck(autoAck bool) Option {
	return func(c *Client) {
		c.autoAck = autoAck
	}
}

// WithObservationBuffer sets how many undelivered notifications each key
// observation may hold before further dispatches to it are dropped.
// Non-positive values select the default.
func WithObservationBuffer(n int) Option {
	return func(c *Client) {
		c.observationBuffer = n
	}
}

// SetOptions carries the optional parameters of Set.
type SetOptions struct {
	// FencingToken, when non-nil, is attached to the request so the service
	// rejects the write if a newer writer has been seen.
	FencingToken *hlc.Timestamp
	// Condition guards whether the set is applied.
	Condition api.SetCondition
	// Expiry removes the key after the given duration. Zero keeps the key
	// until it is deleted.
	Expiry time.Duration
}
