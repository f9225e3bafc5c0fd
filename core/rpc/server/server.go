// Package server hosts the admin RPC listener: a plain TCP accept loop
// (this surface is operator-facing and low-volume, so it deliberately
// uses blocking net.Conn I/O rather than riding the serving reactor)
// that decodes protocol frames, resolves them through the registry, and
// answers with the configured codec.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coroweb/httpcore/core/rpc/codec"
	"github.com/coroweb/httpcore/core/rpc/protocol"
	"github.com/coroweb/httpcore/core/rpc/registry"
)

// idleTimeout is how long a connected admin client may sit silent before
// its next frame must arrive; operator tooling tends to poll, so this is
// generous.
const idleTimeout = 5 * time.Minute

// Server is the admin RPC endpoint.
type Server struct {
	registry *registry.ServiceRegistry
	codec    codec.Codec

	listener net.Listener
	mu       sync.Mutex
	conns    map[net.Conn]struct{}

	inflight atomic.Int64
	closing  atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithCodec replaces the default JSON codec.
func WithCodec(c codec.Codec) Option {
	return func(s *Server) { s.codec = c }
}

// NewServer creates a server with an empty registry and the JSON codec.
func NewServer(opts ...Option) *Server {
	s := &Server{
		registry: registry.NewRegistry(),
		codec:    &codec.JSONCodec{},
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register exposes service's registrable methods under serviceName.
func (s *Server) Register(serviceName string, service interface{}) error {
	return s.registry.Register(serviceName, service)
}

// ListenAndServe binds addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	s.listener = ln
	log.Printf("rpc: admin listener on %s", addr)
	return s.Serve(ln)
}

// Serve accepts connections on ln, one goroutine per admin client.
func (s *Server) Serve(ln net.Listener) error {
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			log.Printf("rpc: accept: %v", err)
			continue
		}
		s.track(conn)
		go s.serveConn(conn)
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// serveConn answers frames off one connection until the peer goes away,
// a frame fails to decode, or the idle timeout lapses.
func (s *Server) serveConn(conn net.Conn) {
	defer func() {
		conn.Close()
		s.untrack(conn)
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		frame, err := readFrame(conn)
		if err != nil {
			if err != io.EOF && !s.closing.Load() {
				log.Printf("rpc: read frame: %v", err)
			}
			return
		}

		switch frame.Type {
		case protocol.TypeRequest:
			s.answer(conn, frame)
		case protocol.TypePing:
			s.reply(conn, protocol.NewFrame(protocol.TypePong, frame.RequestID))
		default:
			log.Printf("rpc: dropping frame type %#x", frame.Type)
		}
	}
}

// readFrame reads one complete frame off conn: the fixed header first
// (which also validates magic/version and bounds the total size), then
// the remainder.
func readFrame(conn net.Conn) (*protocol.Frame, error) {
	header := make([]byte, protocol.HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}
	if _, err := protocol.DecodeHeader(header); err != nil {
		return nil, err
	}
	total, err := protocol.GetFrameSize(header)
	if err != nil {
		return nil, err
	}

	full := make([]byte, total)
	copy(full, header)
	if _, err := io.ReadFull(conn, full[protocol.HeaderSize:]); err != nil {
		return nil, err
	}
	return protocol.Decode(full)
}

// callTarget is the frame metadata shape: which registered method the
// payload is aimed at.
type callTarget struct {
	Service string
	Method  string
}

// answer resolves and invokes one request frame, writing back either a
// response or an error frame carrying the failure text.
func (s *Server) answer(conn net.Conn, frame *protocol.Frame) {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	var target callTarget
	if err := json.Unmarshal(frame.Metadata, &target); err != nil {
		s.replyError(conn, frame.RequestID, fmt.Errorf("bad metadata: %w", err))
		return
	}

	_, method, err := s.registry.GetMethod(target.Service, target.Method)
	if err != nil {
		s.replyError(conn, frame.RequestID, err)
		return
	}

	arg := reflect.New(method.ArgType).Interface()
	if err := s.codec.Decode(frame.Payload, arg); err != nil {
		s.replyError(conn, frame.RequestID, fmt.Errorf("decode args: %w", err))
		return
	}

	result, err := s.registry.Call(context.Background(), target.Service, target.Method, arg)
	if err != nil {
		s.replyError(conn, frame.RequestID, err)
		return
	}

	payload, err := s.codec.Encode(result)
	if err != nil {
		s.replyError(conn, frame.RequestID, fmt.Errorf("encode reply: %w", err))
		return
	}

	resp := protocol.NewFrame(protocol.TypeResponse, frame.RequestID)
	resp.Payload = payload
	s.reply(conn, resp)
}

func (s *Server) reply(conn net.Conn, frame *protocol.Frame) {
	if _, err := conn.Write(frame.Encode()); err != nil {
		log.Printf("rpc: write reply: %v", err)
	}
}

func (s *Server) replyError(conn net.Conn, requestID uint32, err error) {
	frame := protocol.NewFrame(protocol.TypeError, requestID)
	frame.Payload = []byte(err.Error())
	s.reply(conn, frame)
}

// Shutdown stops accepting, closes every client connection, and waits
// (bounded by ctx) for in-flight calls to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	for s.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

// Stats reports the listener's live counters.
func (s *Server) Stats() map[string]interface{} {
	s.mu.Lock()
	numConns := len(s.conns)
	s.mu.Unlock()

	return map[string]interface{}{
		"connections":     numConns,
		"active_requests": s.inflight.Load(),
		"services":        len(s.registry.ListServices()),
	}
}
