// Package pump implements a read-buffer pump: a read loop that feeds raw
// socket bytes to a pluggable finalizer until a request head or a request
// body is complete, yielding back to the owning Task's scheduler whenever
// the socket isn't ready.
package pump

import (
	"errors"
	"syscall"

	"github.com/coroweb/httpcore/core/task"
)

// FinalizeResult is a finalizer's verdict about the bytes accumulated so
// far.
type FinalizeResult int

const (
	TryAgain FinalizeResult = iota
	Done
	ErrorTimeout
)

// Finalizer inspects the buffer filled so far (buf[:n] is valid data) and
// the number of reads that have returned data, and decides whether the
// pump is done, needs more bytes, or has exceeded a timeout guard.
// Finalizers close over whatever request state they need to mutate (e.g.
// locating "\r\n\r\n", recording next_request).
type Finalizer func(buf []byte, packetCount int) FinalizeResult

// Result is the outer verdict the pump returns to its caller.
type Result int

const (
	OK Result = iota
	BadRequest
	TooLarge
	Timeout
	PeerClosed
)

// Buffer is the mutable read target: Data is the backing array, Len is
// how much of it is currently filled.
type Buffer struct {
	Data []byte
	Len  int
}

// Reset clears Len without discarding the backing array, preserving
// capacity across keep-alive connections and pipelined requests.
func (b *Buffer) Reset() {
	b.Len = 0
}

// MinPackets is the floor on the slow-loris packet-count guard: even a
// tiny request must tolerate at least this many reads before the guard
// fires. PacketBudget allows roughly twice the expected packet count at a
// 1480-byte MTU.
const MinPackets = 5

// PacketBudget computes error_when_n_packets for a request/body of the
// given total size.
func PacketBudget(total int) int {
	n := total / 740
	if n < MinPackets {
		return MinPackets
	}
	return n
}

// RawReader reads directly from a non-blocking file descriptor via
// syscall.Read, surfacing EAGAIN/EINTR for the pump to handle as yields
// rather than errors.
type RawReader struct {
	FD int
}

func (r RawReader) Read(p []byte) (int, error) {
	return syscall.Read(r.FD, p)
}

// Pump drives reader into buf, calling finalizer after every read (and
// once immediately if carryOverPresent, for the fast path of a pipelined
// request already sitting in the buffer), yielding on the Task until the
// finalizer reports Done, a hard error occurs, or the buffer fills without
// completion.
//
// reader.Read must behave like a non-blocking read(2): returning
// (0, nil) is treated as peer-closed, and (n, err) with err wrapping
// syscall.EAGAIN/EWOULDBLOCK means "try again once readable".
func Pump(t *task.Task, reader interface{ Read([]byte) (int, error) }, buf *Buffer, finalizer Finalizer, carryOverPresent bool) Result {
	packetCount := 0

	if carryOverPresent {
		switch finalizer(buf.Data[:buf.Len], packetCount) {
		case Done:
			return OK
		case ErrorTimeout:
			return Timeout
		}
	}

	for {
		if buf.Len >= len(buf.Data) {
			return TooLarge
		}

		n, err := reader.Read(buf.Data[buf.Len:])
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
				if t.Yield(task.WantRead) == task.Shutdown {
					return PeerClosed
				}
				continue
			}
			if errors.Is(err, syscall.EINTR) {
				if t.Yield(task.Yield) == task.Shutdown {
					return PeerClosed
				}
				continue
			}
			if n == 0 {
				return BadRequest
			}
		}

		if n == 0 {
			t.Yield(task.Abort)
			return PeerClosed
		}

		buf.Len += n
		packetCount++

		switch finalizer(buf.Data[:buf.Len], packetCount) {
		case Done:
			return OK
		case ErrorTimeout:
			return Timeout
		case TryAgain:
			if buf.Len >= len(buf.Data) {
				return TooLarge
			}
			if t.Yield(task.WantRead) == task.Shutdown {
				return PeerClosed
			}
		}
	}
}
