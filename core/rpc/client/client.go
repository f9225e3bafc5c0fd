// Package client dials the admin RPC listener. It multiplexes concurrent
// calls over one TCP connection by request id, matching response frames
// back to their waiting callers.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coroweb/httpcore/core/rpc/codec"
	"github.com/coroweb/httpcore/core/rpc/protocol"
)

var (
	ErrClientClosed = errors.New("rpc: client closed")
	ErrTimeout      = errors.New("rpc: request timeout")
)

const dialTimeout = 5 * time.Second

// Call is one in-flight (or completed) RPC invocation.
type Call struct {
	Service string
	Method  string
	Args    interface{}
	Reply   interface{}
	Error   error
	Done    chan *Call
}

func (call *Call) finish() {
	select {
	case call.Done <- call:
	default:
	}
}

// Client is one connection to an admin RPC server.
type Client struct {
	conn  net.Conn
	codec codec.Codec

	nextID atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]*Call
	closed  bool
}

// Option configures a Client.
type Option func(*Client)

// WithClientCodec replaces the default JSON codec; it must match the
// server's.
func WithClientCodec(c codec.Codec) Option {
	return func(cl *Client) { cl.codec = c }
}

// NewClient dials addr and starts the response demultiplexer.
func NewClient(addr string, opts ...Option) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}

	cl := &Client{
		conn:    conn,
		codec:   &codec.JSONCodec{},
		pending: make(map[uint32]*Call),
	}
	for _, opt := range opts {
		opt(cl)
	}

	go cl.demux()
	return cl, nil
}

// Call invokes service.method synchronously, decoding the response into
// reply. ctx bounds the wait, not the connection.
func (cl *Client) Call(ctx context.Context, service, method string, args, reply interface{}) error {
	call := &Call{
		Service: service,
		Method:  method,
		Args:    args,
		Reply:   reply,
		Done:    make(chan *Call, 1),
	}
	cl.Go(call)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case done := <-call.Done:
		return done.Error
	}
}

// Go starts call without waiting; completion is delivered on call.Done.
func (cl *Client) Go(call *Call) *Call {
	id := cl.nextID.Add(1)

	cl.mu.Lock()
	if cl.closed {
		cl.mu.Unlock()
		call.Error = ErrClientClosed
		call.finish()
		return call
	}
	cl.pending[id] = call
	cl.mu.Unlock()

	frame, err := cl.requestFrame(id, call)
	if err == nil {
		err = cl.send(frame)
	}
	if err != nil {
		cl.abandon(id)
		call.Error = err
		call.finish()
	}
	return call
}

// requestFrame builds the wire frame for call: routing metadata plus
// codec-encoded arguments.
func (cl *Client) requestFrame(id uint32, call *Call) (*protocol.Frame, error) {
	meta, err := json.Marshal(map[string]string{
		"service": call.Service,
		"method":  call.Method,
	})
	if err != nil {
		return nil, fmt.Errorf("rpc: encode metadata: %w", err)
	}
	payload, err := cl.codec.Encode(call.Args)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode args: %w", err)
	}

	frame := protocol.NewFrame(protocol.TypeRequest, id)
	frame.Metadata = meta
	frame.Payload = payload
	return frame, nil
}

func (cl *Client) send(frame *protocol.Frame) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.closed {
		return ErrClientClosed
	}
	_, err := cl.conn.Write(frame.Encode())
	return err
}

func (cl *Client) abandon(id uint32) {
	cl.mu.Lock()
	delete(cl.pending, id)
	cl.mu.Unlock()
}

// demux reads response frames off the connection and routes each to its
// waiting call until the connection dies.
func (cl *Client) demux() {
	for {
		frame, err := cl.readFrame()
		if err != nil {
			if err != io.EOF {
				cl.mu.Lock()
				closed := cl.closed
				cl.mu.Unlock()
				if !closed {
					log.Printf("rpc: client read: %v", err)
				}
			}
			cl.Close()
			return
		}
		cl.deliver(frame)
	}
}

// readFrame reads one complete frame: header (validated, size-bounded),
// then the rest.
func (cl *Client) readFrame() (*protocol.Frame, error) {
	header := make([]byte, protocol.HeaderSize)
	if _, err := io.ReadFull(cl.conn, header); err != nil {
		return nil, err
	}
	total, err := protocol.GetFrameSize(header)
	if err != nil {
		return nil, err
	}

	full := make([]byte, total)
	copy(full, header)
	if _, err := io.ReadFull(cl.conn, full[protocol.HeaderSize:]); err != nil {
		return nil, err
	}
	return protocol.Decode(full)
}

// deliver completes the pending call a frame answers. Unmatched frames
// (a response that raced Close, a stray pong) are dropped.
func (cl *Client) deliver(frame *protocol.Frame) {
	cl.mu.Lock()
	call, ok := cl.pending[frame.RequestID]
	if ok {
		delete(cl.pending, frame.RequestID)
	}
	cl.mu.Unlock()
	if !ok {
		return
	}

	switch frame.Type {
	case protocol.TypeResponse:
		if err := cl.codec.Decode(frame.Payload, call.Reply); err != nil {
			call.Error = fmt.Errorf("rpc: decode reply: %w", err)
		}
	case protocol.TypeError:
		call.Error = errors.New(string(frame.Payload))
	case protocol.TypePong:
		// Keepalive answer; nothing to decode.
	default:
		call.Error = fmt.Errorf("rpc: unexpected frame type %#x", frame.Type)
	}
	call.finish()
}

// Ping round-trips a keepalive frame.
func (cl *Client) Ping() error {
	call := &Call{Done: make(chan *Call, 1)}
	id := cl.nextID.Add(1)

	cl.mu.Lock()
	if cl.closed {
		cl.mu.Unlock()
		return ErrClientClosed
	}
	cl.pending[id] = call
	cl.mu.Unlock()

	if err := cl.send(protocol.NewFrame(protocol.TypePing, id)); err != nil {
		cl.abandon(id)
		return err
	}

	select {
	case done := <-call.Done:
		return done.Error
	case <-time.After(dialTimeout):
		cl.abandon(id)
		return ErrTimeout
	}
}

// Close tears the connection down and fails every pending call.
func (cl *Client) Close() error {
	cl.mu.Lock()
	if cl.closed {
		cl.mu.Unlock()
		return nil
	}
	cl.closed = true
	pending := cl.pending
	cl.pending = make(map[uint32]*Call)
	cl.mu.Unlock()

	for _, call := range pending {
		call.Error = ErrClientClosed
		call.finish()
	}
	return cl.conn.Close()
}
