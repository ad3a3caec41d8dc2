package hlc_test

import (
	"testing"

	"pkt.systems/statestore/hlc"
)

func TestCompareTotalOrder(t *testing.T) {
	t.Parallel()

	a := hlc.Timestamp{WallMS: 10, Counter: 0, NodeID: "a"}
	b := hlc.Timestamp{WallMS: 10, Counter: 1, NodeID: "a"}
	c := hlc.Timestamp{WallMS: 11, Counter: 0, NodeID: "a"}
	d := hlc.Timestamp{WallMS: 10, Counter: 0, NodeID: "b"}

	if a.Compare(b) >= 0 {
		t.Fatal("counter must break wall-clock ties")
	}
	if b.Compare(c) >= 0 {
		t.Fatal("wall clock dominates counter")
	}
	if a.Compare(d) >= 0 {
		t.Fatal("node id must break full ties")
	}
	if a.Compare(a) != 0 {
		t.Fatal("timestamp must equal itself")
	}
}

func TestStringParseRoundTrip(t *testing.T) {
	t.Parallel()

	ts := hlc.Timestamp{WallMS: 1730000000123, Counter: 7, NodeID: "worker-1"}
	parsed, err := hlc.Parse(ts.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != ts {
		t.Fatalf("round trip mismatch: %+v != %+v", parsed, ts)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "123", "123:4", "x:0:node", "123:y:node", "-1:0:node"} {
		if _, err := hlc.Parse(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestClockIssuesIncreasingTimestamps(t *testing.T) {
	t.Parallel()

	clock, err := hlc.NewClock("node-1")
	if err != nil {
		t.Fatalf("new clock: %v", err)
	}
	prev := clock.Now()
	for i := 0; i < 1000; i++ {
		next := clock.Now()
		if next.Compare(prev) <= 0 {
			t.Fatalf("timestamp %d not increasing: %v then %v", i, prev, next)
		}
		prev = next
	}
}

func TestClockUpdateOrdersAfterRemote(t *testing.T) {
	t.Parallel()

	clock, err := hlc.NewClock("node-1")
	if err != nil {
		t.Fatalf("new clock: %v", err)
	}
	remote := hlc.Timestamp{WallMS: clock.Now().WallMS + 60_000, Counter: 4, NodeID: "svc"}
	clock.Update(remote)
	next := clock.Now()
	if next.Compare(remote) <= 0 {
		t.Fatalf("expected %v to order after merged %v", next, remote)
	}
}

func TestNewClockRejectsBadNodeID(t *testing.T) {
	t.Parallel()

	if _, err := hlc.NewClock(""); err == nil {
		t.Fatal("expected error for empty node id")
	}
	if _, err := hlc.NewClock("a:b"); err == nil {
		t.Fatal("expected error for node id containing ':'")
	}
}
