// Package hlc implements a hybrid logical clock. Its timestamps are the
// fencing tokens attached to state-store mutations: totally ordered,
// serializable, and monotonic within one clock instance even when the wall
// clock stalls or steps backwards.
package hlc

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Timestamp is one hybrid logical clock reading. The zero value is the
// lowest possible timestamp.
type Timestamp struct {
	// WallMS is the wall-clock component in milliseconds since the Unix epoch.
	WallMS int64
	// Counter disambiguates timestamps issued within the same millisecond.
	Counter uint64
	// NodeID breaks ties between distinct clocks. It must not contain ':'.
	NodeID string
}

// Compare orders t against other. It returns -1, 0, or 1.
func (t Timestamp) Compare(other Timestamp) int {
	if t.WallMS != other.WallMS {
		if t.WallMS < other.WallMS {
			return -1
		}
		return 1
	}
	if t.Counter != other.Counter {
		if t.Counter < other.Counter {
			return -1
		}
		return 1
	}
	return strings.Compare(t.NodeID, other.NodeID)
}

// IsZero reports whether t is the zero timestamp.
func (t Timestamp) IsZero() bool {
	return t.WallMS == 0 && t.Counter == 0 && t.NodeID == ""
}

// Time returns the wall-clock component.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(t.WallMS).UTC()
}

// String serializes t as "<wall_ms>:<counter>:<node_id>".
func (t Timestamp) String() string {
	return fmt.Sprintf("%d:%d:%s", t.WallMS, t.Counter, t.NodeID)
}

// Parse decodes the representation produced by String.
func Parse(s string) (Timestamp, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Timestamp{}, fmt.Errorf("hlc: malformed timestamp %q", s)
	}
	wall, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || wall < 0 {
		return Timestamp{}, fmt.Errorf("hlc: malformed wall clock in %q", s)
	}
	counter, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Timestamp{}, fmt.Errorf("hlc: malformed counter in %q", s)
	}
	return Timestamp{WallMS: wall, Counter: counter, NodeID: parts[2]}, nil
}

// Clock issues monotonically increasing timestamps for one node.
// It is safe for concurrent use.
type Clock struct {
	nodeID string
	now    func() time.Time

	mu   sync.Mutex
	last Timestamp
}

// NewClock returns a clock stamping timestamps with nodeID.
func NewClock(nodeID string) (*Clock, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("hlc: node id is required")
	}
	if strings.ContainsRune(nodeID, ':') {
		return nil, fmt.Errorf("hlc: node id %q must not contain ':'", nodeID)
	}
	return &Clock{nodeID: nodeID, now: time.Now}, nil
}

// Now returns the next timestamp, strictly greater than any previously issued
// or merged timestamp.
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	wall := c.now().UnixMilli()
	next := Timestamp{WallMS: wall, NodeID: c.nodeID}
	if wall <= c.last.WallMS {
		next.WallMS = c.last.WallMS
		next.Counter = c.last.Counter + 1
	}
	c.last = next
	return next
}

// Update merges a remote timestamp so that subsequent Now calls order after
// it. Receiving a response version through Update keeps fencing tokens issued
// by this clock ahead of what the service has already seen.
func (c *Clock) Update(remote Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote.Compare(c.last) > 0 {
		c.last = Timestamp{WallMS: remote.WallMS, Counter: remote.Counter, NodeID: c.nodeID}
	}
}
