// Package api defines the wire-level request, response, and notification
// payloads exchanged with a state-store service. Transport bindings are
// responsible for serializing these types; the client package only
// produces requests and consumes decoded responses.
package api

import "fmt"

// Op identifies a state-store command.
type Op string

const (
	// OpSet stores a value under a key.
	OpSet Op = "set"
	// OpGet reads the value stored under a key.
	OpGet Op = "get"
	// OpDel removes a key.
	OpDel Op = "del"
	// OpVDel removes a key only when its current value matches the supplied one.
	OpVDel Op = "vdel"
	// OpKeyNotify starts or stops change notifications for a key.
	OpKeyNotify Op = "keynotify"
)

// FencingTokenMetadataKey is the request metadata key carrying a serialized
// fencing token. The service uses it to reject stale writers on mutations.
const FencingTokenMetadataKey = "__ft"

// SetCondition constrains when a set request takes effect.
type SetCondition string

const (
	// ConditionUnconditional applies the set regardless of current state.
	ConditionUnconditional SetCondition = ""
	// ConditionOnlyIfAbsent applies the set only when the key does not exist.
	ConditionOnlyIfAbsent SetCondition = "only_if_absent"
	// ConditionOnlyIfEqualOrAbsent applies the set only when the key does not
	// exist or already holds the same value.
	ConditionOnlyIfEqualOrAbsent SetCondition = "only_if_equal_or_absent"
)

// SetRequestOptions carries the optional semantics of a set request.
type SetRequestOptions struct {
	// Condition guards whether the set is applied.
	Condition SetCondition `json:"condition,omitempty"`
	// ExpiresMS sets key expiry in milliseconds. Zero keeps the key until deleted.
	ExpiresMS int64 `json:"expires_ms,omitempty"`
}

// KeyNotifyOptions modifies a keynotify request.
type KeyNotifyOptions struct {
	// Stop cancels an existing observation instead of starting one.
	Stop bool `json:"stop,omitempty"`
}

// Request is the single command envelope sent to the service.
type Request struct {
	// Op selects the command.
	Op Op `json:"op"`
	// Key is the raw key bytes the command targets.
	Key []byte `json:"key"`
	// Value carries the payload for set and vdel requests.
	Value []byte `json:"value,omitempty"`
	// SetOptions applies to OpSet only.
	SetOptions SetRequestOptions `json:"set_options,omitempty"`
	// KeyNotifyOptions applies to OpKeyNotify only.
	KeyNotifyOptions KeyNotifyOptions `json:"keynotify_options,omitempty"`
}

// ResponseKind tags the variant carried by a Response.
type ResponseKind string

const (
	// KindOk reports plain success.
	KindOk ResponseKind = "ok"
	// KindNotApplied reports that a guarded mutation was not applied.
	KindNotApplied ResponseKind = "not_applied"
	// KindNotFound reports that the key does not exist.
	KindNotFound ResponseKind = "not_found"
	// KindValue carries the value of a key.
	KindValue ResponseKind = "value"
	// KindValuesDeleted carries the number of keys removed by a delete.
	KindValuesDeleted ResponseKind = "values_deleted"
	// KindError reports a service-side failure.
	KindError ResponseKind = "error"
)

// Response is the tagged union returned by the service for every command.
// Exactly one variant-specific field is meaningful, selected by Kind.
type Response struct {
	// Kind selects the variant.
	Kind ResponseKind `json:"kind"`
	// Value holds the key's value when Kind is KindValue.
	Value []byte `json:"value,omitempty"`
	// ValuesDeleted holds the delete count when Kind is KindValuesDeleted.
	ValuesDeleted int64 `json:"values_deleted,omitempty"`
	// ErrorCode identifies the service failure when Kind is KindError.
	ErrorCode string `json:"error_code,omitempty"`
	// Detail is a human-readable elaboration of ErrorCode.
	Detail string `json:"detail,omitempty"`
}

// Validate reports whether the response carries a known variant tag.
func (r Response) Validate() error {
	switch r.Kind {
	case KindOk, KindNotApplied, KindNotFound, KindValue, KindValuesDeleted, KindError:
		return nil
	default:
		return fmt.Errorf("api: unknown response kind %q", r.Kind)
	}
}

// OperationKind tags the change carried by a key notification.
type OperationKind string

const (
	// OperationSet reports that the key was written.
	OperationSet OperationKind = "set"
	// OperationDel reports that the key was removed.
	OperationDel OperationKind = "del"
)

// Operation is the decoded payload of one inbound key change notification.
type Operation struct {
	// Kind reports whether the key was set or deleted.
	Kind OperationKind `json:"kind"`
	// Value holds the new value when Kind is OperationSet.
	Value []byte `json:"value,omitempty"`
}
