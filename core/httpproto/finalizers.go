package httpproto

import (
	"bytes"
	"time"

	"github.com/coroweb/httpcore/core/pump"
)

// HeadFinalizer returns a pump.Finalizer that completes once buf holds a
// full request head: either a blank-line-terminated HTTP head ("\r\n\r\n")
// or, when allowProxy is set, a complete PROXY v2 binary header (detected
// by its 12-byte signature before the request line even starts). It also
// enforces a slow-loris guard: a connection that hasn't
// produced a terminator within pump.PacketBudget(maxHeadSize) packets is
// declared ErrorTimeout rather than allowed to keep trickling bytes in.
func HeadFinalizer(maxHeadSize int, allowProxy bool) pump.Finalizer {
	budget := pump.PacketBudget(maxHeadSize)
	return func(buf []byte, packetCount int) pump.FinalizeResult {
		if allowProxy && len(buf) >= ProxyV2SignatureLen && bytes.Equal(buf[:12], proxyV2Signature[:]) {
			if len(buf) >= 16 {
				addrLen := int(buf[14])<<8 | int(buf[15])
				if len(buf) >= ProxyV2SignatureLen+addrLen {
					if idx := bytes.Index(buf[ProxyV2SignatureLen+addrLen:], []byte("\r\n\r\n")); idx != -1 {
						return pump.Done
					}
				}
			}
		} else if bytes.Contains(buf, []byte("\r\n\r\n")) {
			return pump.Done
		}

		if packetCount >= budget {
			return pump.ErrorTimeout
		}
		return pump.TryAgain
	}
}

// BodyFinalizer returns a pump.Finalizer that completes once buf has
// accumulated wantLen bytes (the Content-Length the dispatcher validated
// before allocating the body buffer). Ingestion is bounded two ways:
// deadline caps wall-clock time, and pump.PacketBudget(wantLen) caps the
// number of reads, since a body trickled over small MTUs can stay under
// either guard alone far longer than it can stay under both.
func BodyFinalizer(wantLen int, deadline time.Time) pump.Finalizer {
	budget := pump.PacketBudget(wantLen)
	return func(buf []byte, packetCount int) pump.FinalizeResult {
		if len(buf) >= wantLen {
			return pump.Done
		}
		if !deadline.IsZero() && timeNow().After(deadline) {
			return pump.ErrorTimeout
		}
		if packetCount >= budget {
			return pump.ErrorTimeout
		}
		return pump.TryAgain
	}
}

// timeNow is a var so tests can fake the clock without touching the
// system clock package wholesale.
var timeNow = time.Now
