package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/coroweb/httpcore/core/rpc/client"
	"github.com/coroweb/httpcore/core/rpc/protocol"
	"github.com/coroweb/httpcore/core/rpc/server"
)

func TestFrameEncodeDecode(t *testing.T) {
	frame := protocol.NewFrame(protocol.TypeRequest, 12345)
	frame.Metadata = []byte("test metadata")
	frame.Payload = []byte("test payload")

	// Encode
	encoded := frame.Encode()

	// Decode
	decoded, err := protocol.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	// Verify
	if decoded.Type != protocol.TypeRequest {
		t.Errorf("Expected type %d, got %d", protocol.TypeRequest, decoded.Type)
	}
	if decoded.RequestID != 12345 {
		t.Errorf("Expected requestID 12345, got %d", decoded.RequestID)
	}
	if string(decoded.Metadata) != "test metadata" {
		t.Errorf("Expected metadata 'test metadata', got '%s'", decoded.Metadata)
	}
	if string(decoded.Payload) != "test payload" {
		t.Errorf("Expected payload 'test payload', got '%s'", decoded.Payload)
	}
}

func TestFrameFlags(t *testing.T) {
	frame := protocol.NewFrame(protocol.TypeRequest, 1)

	// Test flag setting
	frame.SetFlag(protocol.FlagCompressed)
	if !frame.HasFlag(protocol.FlagCompressed) {
		t.Error("Expected compressed flag to be set")
	}

	frame.SetFlag(protocol.FlagPriority)
	if !frame.HasFlag(protocol.FlagPriority) {
		t.Error("Expected priority flag to be set")
	}

	// Test flag persistence through encode/decode
	encoded := frame.Encode()
	decoded, _ := protocol.Decode(encoded)

	if !decoded.HasFlag(protocol.FlagCompressed) {
		t.Error("Compressed flag lost after encode/decode")
	}
	if !decoded.HasFlag(protocol.FlagPriority) {
		t.Error("Priority flag lost after encode/decode")
	}
}

// AdderService is the round-trip test service: the registry picks up Sum
// by reflection, the server decodes into SumArgs, and the client gets the
// reply back through the same frame codec.
type AdderService struct{}

type SumArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

type SumReply struct {
	Total int `json:"total"`
}

func (s *AdderService) Sum(ctx context.Context, args *SumArgs) (*SumReply, error) {
	return &SumReply{Total: args.A + args.B}, nil
}

func TestClientServerRoundTrip(t *testing.T) {
	srv := server.NewServer()
	if err := srv.Register("Adder", &AdderService{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve(ln)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	cli, err := client.NewClient(ln.Addr().String())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer cli.Close()

	var reply SumReply
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cli.Call(ctx, "Adder", "Sum", &SumArgs{A: 19, B: 23}, &reply); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if reply.Total != 42 {
		t.Fatalf("Sum = %d, want 42", reply.Total)
	}
}

func TestClientCallUnknownServiceFails(t *testing.T) {
	srv := server.NewServer()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve(ln)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	cli, err := client.NewClient(ln.Addr().String())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer cli.Close()

	var reply SumReply
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cli.Call(ctx, "Nope", "Sum", &SumArgs{}, &reply); err == nil {
		t.Fatalf("expected an error calling an unregistered service")
	}
}

func BenchmarkFrameEncode(b *testing.B) {
	frame := protocol.NewFrame(protocol.TypeRequest, 1)
	frame.Metadata = []byte("service:Calculator,method:Add")
	frame.Payload = make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = frame.Encode()
	}
}

func BenchmarkFrameDecode(b *testing.B) {
	frame := protocol.NewFrame(protocol.TypeRequest, 1)
	frame.Metadata = []byte("service:Calculator,method:Add")
	frame.Payload = make([]byte, 1024)
	encoded := frame.Encode()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = protocol.Decode(encoded)
	}
}
