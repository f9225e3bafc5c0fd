package httpproto

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// ProxyParseResult reports how much of the buffer the PROXY prefix
// consumed, or that no prefix was present.
type ProxyParseResult struct {
	Consumed  int
	Present   bool
	IsCommand bool // true for PROXY, false for LOCAL (v2) or always true for v1
}

// parseProxyPrefix attempts an optional PROXY v1 (text) or v2 (binary)
// prefix, only attempted when the connection was created with
// ALLOW_PROXY_REQS. Anything else leaves the cursor unchanged.
func parseProxyPrefix(buf []byte, allowed bool) (ProxyInfo, ProxyParseResult, error) {
	if !allowed || len(buf) < 4 {
		return ProxyInfo{}, ProxyParseResult{}, nil
	}

	switch {
	case string(buf[:4]) == "PROX" && len(buf) >= 5 && buf[4] == 'Y':
		return parseProxyV1(buf)
	case buf[0] == '\r' && buf[1] == '\n' && buf[2] == '\r' && buf[3] == '\n':
		return parseProxyV2(buf)
	default:
		return ProxyInfo{}, ProxyParseResult{}, nil
	}
}

func parseProxyV1(buf []byte) (ProxyInfo, ProxyParseResult, error) {
	limit := len(buf)
	if limit > ProxyV1MaxLine {
		limit = ProxyV1MaxLine
	}
	nl := -1
	for i := 0; i < limit; i++ {
		if buf[i] == '\n' {
			nl = i
			break
		}
	}
	if nl == -1 {
		return ProxyInfo{}, ProxyParseResult{}, ErrBadRequest
	}
	line := buf[:nl]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	fields := strings.Fields(string(line))
	if len(fields) != 6 || fields[0] != "PROXY" {
		return ProxyInfo{}, ProxyParseResult{}, ErrBadRequest
	}
	switch fields[1] {
	case "TCP4", "TCP6":
	default:
		return ProxyInfo{}, ProxyParseResult{}, ErrBadRequest
	}

	srcPort, err1 := strconv.Atoi(fields[4])
	dstPort, err2 := strconv.Atoi(fields[5])
	if err1 != nil || err2 != nil {
		return ProxyInfo{}, ProxyParseResult{}, ErrBadRequest
	}

	info := ProxyInfo{
		From: Endpoint{Addr: fields[2], Port: srcPort},
		To:   Endpoint{Addr: fields[3], Port: dstPort},
	}
	return info, ProxyParseResult{Consumed: nl + 1, Present: true, IsCommand: true}, nil
}

const (
	proxyV2CmdLocal = 0x20
	proxyV2CmdProxy = 0x21
	proxyV2FamTCP4  = 0x11
	proxyV2FamTCP6  = 0x21
)

func parseProxyV2(buf []byte) (ProxyInfo, ProxyParseResult, error) {
	if len(buf) < ProxyV2SignatureLen {
		return ProxyInfo{}, ProxyParseResult{}, ErrIncomplete
	}
	for i, b := range proxyV2Signature {
		if buf[i] != b {
			return ProxyInfo{}, ProxyParseResult{}, ErrBadRequest
		}
	}

	verCmd := buf[12]
	famProto := buf[13]
	addrLen := int(binary.BigEndian.Uint16(buf[14:16]))

	if addrLen > ProxyV2MaxAddrLen {
		return ProxyInfo{}, ProxyParseResult{}, ErrBadRequest
	}
	total := ProxyV2SignatureLen + addrLen
	if total > len(buf) {
		return ProxyInfo{}, ProxyParseResult{}, ErrIncomplete
	}

	cmd := verCmd & 0x0F
	ver := verCmd & 0xF0
	if ver != 0x20 {
		return ProxyInfo{}, ProxyParseResult{}, ErrBadRequest
	}

	result := ProxyParseResult{Consumed: total, Present: true, IsCommand: cmd == (proxyV2CmdProxy & 0x0F)}

	switch {
	case cmd == (proxyV2CmdLocal & 0x0F):
		return ProxyInfo{}, result, nil
	case cmd == (proxyV2CmdProxy & 0x0F):
		fam := famProto & 0xF0
		proto := famProto & 0x0F
		_ = proto
		body := buf[ProxyV2SignatureLen:total]

		switch fam {
		case proxyV2FamTCP4 & 0xF0:
			if len(body) < 12 {
				return ProxyInfo{}, ProxyParseResult{}, ErrBadRequest
			}
			src := ipv4String(body[0:4])
			dst := ipv4String(body[4:8])
			srcPort := int(binary.BigEndian.Uint16(body[8:10]))
			dstPort := int(binary.BigEndian.Uint16(body[10:12]))
			return ProxyInfo{
				From: Endpoint{Addr: src, Port: srcPort},
				To:   Endpoint{Addr: dst, Port: dstPort},
			}, result, nil
		case proxyV2FamTCP6 & 0xF0:
			if len(body) < 36 {
				return ProxyInfo{}, ProxyParseResult{}, ErrBadRequest
			}
			src := ipv6String(body[0:16])
			dst := ipv6String(body[16:32])
			srcPort := int(binary.BigEndian.Uint16(body[32:34]))
			dstPort := int(binary.BigEndian.Uint16(body[34:36]))
			return ProxyInfo{
				From: Endpoint{Addr: src, Port: srcPort},
				To:   Endpoint{Addr: dst, Port: dstPort},
			}, result, nil
		default:
			return ProxyInfo{}, ProxyParseResult{}, ErrBadRequest
		}
	default:
		return ProxyInfo{}, ProxyParseResult{}, ErrBadRequest
	}
}

func ipv4String(b []byte) string {
	return strconv.Itoa(int(b[0])) + "." + strconv.Itoa(int(b[1])) + "." +
		strconv.Itoa(int(b[2])) + "." + strconv.Itoa(int(b[3]))
}

func ipv6String(b []byte) string {
	parts := make([]string, 8)
	for i := 0; i < 8; i++ {
		v := binary.BigEndian.Uint16(b[i*2 : i*2+2])
		parts[i] = strconv.FormatUint(uint64(v), 16)
	}
	return strings.Join(parts, ":")
}
