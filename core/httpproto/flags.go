package httpproto

// Method is a bitflag encoding of the recognized HTTP methods, held in
// Request.Method, separate from the request's Flags word.
type Method uint16

const (
	MethodGet Method = 1 << iota
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
	MethodOptions
	MethodPatch
	MethodUnknown Method = 0
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodHead:
		return "HEAD"
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	case MethodOptions:
		return "OPTIONS"
	case MethodPatch:
		return "PATCH"
	default:
		return ""
	}
}

// methodTable is checked in order; each entry's bytes including the
// trailing space are compared against the start of the buffer.
var methodTable = []struct {
	prefix string
	method Method
}{
	{"GET ", MethodGet},
	{"HEAD ", MethodHead},
	{"POST ", MethodPost},
	{"PUT ", MethodPut},
	{"DELETE ", MethodDelete},
	{"OPTIONS ", MethodOptions},
	{"PATCH ", MethodPatch},
}

// Flags is the request-scoped bitset of parse-derived and dispatch-derived
// conditions: proxied origin, protocol version, negotiated encodings, which
// lazy accessors have already run, and whether a rewrite happened.
type Flags uint32

const (
	FlagProxied Flags = 1 << iota
	FlagIsHTTP10
	FlagAcceptDeflate
	FlagAcceptGzip
	FlagAcceptBrotli
	FlagAllowProxyReqs
	FlagParsedRange
	FlagParsedIfModifiedSince
	FlagParsedCookies
	FlagParsedQueryString
	FlagParsedPostData
	FlagURLRewritten
	FlagResponseSentHeaders
)

func (f *Flags) set(bit Flags)     { *f |= bit }
func (f *Flags) clear(bit Flags)   { *f &^= bit }
func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// ConnFlags live on the Connection, not the per-request Flags.
type ConnFlags uint8

const (
	ConnKeepAlive ConnFlags = 1 << iota
	ConnIsUpgrade
	ConnIsWebSocket
	ConnSuspendedTimer
	ConnHasRemoveSleepDefer
)
