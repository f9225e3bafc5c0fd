package httpproto

// Protocol limits, kept as named constants rather than inlined magic
// numbers.
const (
	// MinRequestSize is the shortest a request line can legally be:
	// `"/ HTTP/1.0"` worth of bytes after the method.
	MinRequestSize = len("/ HTTP/1.0")

	// MaxHeaders bounds the captured-header array of the parser helper.
	// A request presenting more headers than this is rejected as a bad
	// request (header overflow).
	MaxHeaders = 64

	// ProxyV1MaxLine is the maximum length of a PROXY protocol v1 text
	// line, including its terminating CRLF.
	ProxyV1MaxLine = 108

	// ProxyV2SignatureLen is the length of the fixed PROXY v2 binary
	// header (signature + ver/cmd + fam/proto + length).
	ProxyV2SignatureLen = 16

	// ProxyV2MaxAddrLen bounds the address block following the PROXY v2
	// fixed header; TCP6 addresses are the largest (2x16 bytes + 2x2
	// port bytes). A header declaring more than this is rejected, never
	// partially parsed.
	ProxyV2MaxAddrLen = 36

	// MaxRewrites is the hard cap on handler-driven URL rewrites per
	// request; exhausting it is a 500.
	MaxRewrites = 4

	// SmallBodyThreshold is the boundary below which a POST body is
	// ingested into a task-deferred heap buffer rather than an unlinked,
	// mmap'd temp file.
	SmallBodyThreshold = 1 << 20 // 1 MiB
)

var proxyV2Signature = [12]byte{
	0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A,
}
