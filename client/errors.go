package client

import (
	"errors"
	"fmt"
	"math"
	"time"

	"pkt.systems/statestore/api"
)

// MaxTimeout is the largest per-command timeout the wire format can encode.
const MaxTimeout = time.Duration(math.MaxUint32) * time.Second

// ErrDuplicateObserve is returned by Observe when the key is already being
// observed by this client.
var ErrDuplicateObserve = errors.New("statestore: key is already being observed")

// ArgumentError reports input rejected before any transport activity.
type ArgumentError struct {
	// Reason names the offending argument.
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("statestore: invalid argument: %s", e.Reason)
}

// ServiceError reports an explicit error response from the state-store
// service.
type ServiceError struct {
	// Code is the service error code.
	Code string
	// Detail elaborates on Code when the service provides one.
	Detail string
}

func (e *ServiceError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("statestore: service error %s (%s)", e.Code, e.Detail)
	}
	return fmt.Sprintf("statestore: service error %s", e.Code)
}

// UnexpectedPayloadError reports a structurally valid response whose variant
// is not valid for the operation that was invoked. It indicates a
// client/service compatibility problem and is never retried.
type UnexpectedPayloadError struct {
	// Op is the operation that was invoked.
	Op api.Op
	// Kind is the response variant the service returned.
	Kind api.ResponseKind
}

func (e *UnexpectedPayloadError) Error() string {
	return fmt.Sprintf("statestore: unexpected %q response for %s request", e.Kind, e.Op)
}

// TransportError wraps a failure of the underlying invocation or
// subscription transport.
type TransportError struct {
	// Op is the operation being performed, when known.
	Op api.Op
	// Err is the binding's failure.
	Err error
}

func (e *TransportError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("statestore: transport failure during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("statestore: transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func validateKey(key []byte) error {
	if len(key) == 0 {
		return &ArgumentError{Reason: "key is empty"}
	}
	return nil
}

func validateTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return &ArgumentError{Reason: "timeout must be positive"}
	}
	if timeout > MaxTimeout {
		return &ArgumentError{Reason: "timeout exceeds maximum encodable duration"}
	}
	return nil
}
