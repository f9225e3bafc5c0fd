package httpproto

import (
	"encoding/binary"
	"testing"
)

func TestParseProxyV1TCP4(t *testing.T) {
	buf := []byte("PROXY TCP4 10.0.0.1 10.0.0.2 5000 80\r\nGET / HTTP/1.1\r\n\r\n")
	info, result, err := parseProxyPrefix(buf, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Present || !result.IsCommand {
		t.Fatalf("result = %+v", result)
	}
	if info.From.Addr != "10.0.0.1" || info.From.Port != 5000 {
		t.Fatalf("From = %+v", info.From)
	}
	if info.To.Addr != "10.0.0.2" || info.To.Port != 80 {
		t.Fatalf("To = %+v", info.To)
	}
}

func TestParseProxyPrefixDisallowed(t *testing.T) {
	buf := []byte("PROXY TCP4 10.0.0.1 10.0.0.2 5000 80\r\n")
	_, result, err := parseProxyPrefix(buf, false)
	if err != nil || result.Present {
		t.Fatalf("expected no-op when proxy not allowed, got result=%+v err=%v", result, err)
	}
}

func buildProxyV2(t *testing.T, cmd byte, fam byte, body []byte) []byte {
	t.Helper()
	buf := make([]byte, 16+len(body))
	copy(buf[:12], proxyV2Signature[:])
	buf[12] = 0x20 | cmd
	buf[13] = fam
	binary.BigEndian.PutUint16(buf[14:16], uint16(len(body)))
	copy(buf[16:], body)
	return buf
}

func TestParseProxyV2TCP4(t *testing.T) {
	body := make([]byte, 12)
	copy(body[0:4], []byte{192, 168, 1, 1})
	copy(body[4:8], []byte{192, 168, 1, 2})
	binary.BigEndian.PutUint16(body[8:10], 12345)
	binary.BigEndian.PutUint16(body[10:12], 443)

	buf := buildProxyV2(t, proxyV2CmdProxy&0x0F, proxyV2FamTCP4, body)
	info, result, err := parseProxyPrefix(buf, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Present || !result.IsCommand {
		t.Fatalf("result = %+v", result)
	}
	if info.From.Addr != "192.168.1.1" || info.From.Port != 12345 {
		t.Fatalf("From = %+v", info.From)
	}
	if info.To.Addr != "192.168.1.2" || info.To.Port != 443 {
		t.Fatalf("To = %+v", info.To)
	}
}

func TestParseProxyV2LocalCommandIsNotACommand(t *testing.T) {
	buf := buildProxyV2(t, proxyV2CmdLocal&0x0F, proxyV2FamTCP4, nil)
	info, result, err := parseProxyPrefix(buf, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Present {
		t.Fatalf("expected Present for a recognized LOCAL header")
	}
	if result.IsCommand {
		t.Fatalf("LOCAL command must not report IsCommand=true")
	}
	if info != (ProxyInfo{}) {
		t.Fatalf("LOCAL command must not populate ProxyInfo, got %+v", info)
	}
}

func TestParseProxyV2RejectsBadSignature(t *testing.T) {
	buf := make([]byte, 16)
	copy(buf, "\r\n\r\n") // looks like a v2 lead-in, but the rest of the signature is wrong
	_, _, err := parseProxyPrefix(buf, true)
	if err != ErrBadRequest {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}
}

func TestParseProxyV2RejectsOversizedAddressBlock(t *testing.T) {
	// One byte past the TCP6 maximum (2x16 address + 2x2 port = 36): the
	// whole header must be rejected, not parsed up to the bytes it wanted.
	buf := buildProxyV2(t, proxyV2CmdProxy&0x0F, proxyV2FamTCP6, make([]byte, ProxyV2MaxAddrLen+1))
	_, _, err := parseProxyPrefix(buf, true)
	if err != ErrBadRequest {
		t.Fatalf("err = %v, want ErrBadRequest for a %d-byte address block", err, ProxyV2MaxAddrLen+1)
	}

	// At exactly the bound a TCP6 header still parses.
	body := make([]byte, ProxyV2MaxAddrLen)
	buf = buildProxyV2(t, proxyV2CmdProxy&0x0F, proxyV2FamTCP6, body)
	_, result, err := parseProxyPrefix(buf, true)
	if err != nil || !result.Present {
		t.Fatalf("expected a 36-byte TCP6 address block to parse, got result=%+v err=%v", result, err)
	}
}

func TestParseProxyV2IncompleteHeader(t *testing.T) {
	buf := buildProxyV2(t, proxyV2CmdProxy&0x0F, proxyV2FamTCP4, make([]byte, 12))
	truncated := buf[:20]
	_, _, err := parseProxyPrefix(truncated, true)
	if err != ErrIncomplete {
		t.Fatalf("err = %v, want ErrIncomplete", err)
	}
}
