package httpproto

import (
	"testing"
	"time"

	"github.com/coroweb/httpcore/core/pump"
)

func TestHeadFinalizerDetectsBlankLine(t *testing.T) {
	f := HeadFinalizer(8192, false)
	if got := f([]byte("GET / HTTP/1.1\r\n"), 1); got != pump.TryAgain {
		t.Fatalf("got %v, want TryAgain before headers terminate", got)
	}
	if got := f([]byte("GET / HTTP/1.1\r\n\r\n"), 2); got != pump.Done {
		t.Fatalf("got %v, want Done once \\r\\n\\r\\n appears", got)
	}
}

func TestHeadFinalizerSlowLorisGuard(t *testing.T) {
	f := HeadFinalizer(370, false) // PacketBudget(370) == MinPackets == 5
	buf := []byte("GET / HTTP/1.1\r\n")
	for i := 1; i < pump.MinPackets; i++ {
		if got := f(buf, i); got != pump.TryAgain {
			t.Fatalf("packet %d: got %v, want TryAgain", i, got)
		}
	}
	if got := f(buf, pump.MinPackets); got != pump.ErrorTimeout {
		t.Fatalf("got %v, want ErrorTimeout once budget is exhausted", got)
	}
}

func TestBodyFinalizerCompletesAtWantLen(t *testing.T) {
	f := BodyFinalizer(10, time.Time{})
	if got := f(make([]byte, 5), 1); got != pump.TryAgain {
		t.Fatalf("got %v, want TryAgain", got)
	}
	if got := f(make([]byte, 10), 2); got != pump.Done {
		t.Fatalf("got %v, want Done", got)
	}
}

func TestBodyFinalizerPacketBudget(t *testing.T) {
	f := BodyFinalizer(10, time.Time{}) // PacketBudget(10) == MinPackets == 5
	if got := f(make([]byte, 5), pump.MinPackets-1); got != pump.TryAgain {
		t.Fatalf("got %v, want TryAgain under the packet budget", got)
	}
	if got := f(make([]byte, 5), pump.MinPackets); got != pump.ErrorTimeout {
		t.Fatalf("got %v, want ErrorTimeout once the packet budget is exhausted", got)
	}
}

func TestBodyFinalizerRespectsDeadline(t *testing.T) {
	restore := timeNow
	defer func() { timeNow = restore }()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return base }

	f := BodyFinalizer(10, base.Add(-time.Second))
	if got := f(make([]byte, 1), 1); got != pump.ErrorTimeout {
		t.Fatalf("got %v, want ErrorTimeout once past deadline", got)
	}
}
