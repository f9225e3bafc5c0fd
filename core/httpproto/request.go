package httpproto

import "time"

// Endpoint is one side of a PROXY-protocol-carried peer address.
type Endpoint struct {
	Addr string
	Port int
}

// ProxyInfo holds the parsed PROXY protocol (v1 or v2) source and
// destination endpoints for a connection accepted behind a proxy.
type ProxyInfo struct {
	From Endpoint
	To   Endpoint
}

// KV is a lazily-parsed key/value pair (cookie, query, or form parameter).
type KV struct {
	Key   string
	Value string
}

// ParserState is the parser helper: the read buffer, the pipelined-
// follow-up pointer, captured raw header values, and the lazily
// materialized accessor state, all scoped to one connection's in-flight
// request.
//
// Header values are NOT written back into the buffer as NUL-terminated C
// strings; every string field below is a copy of its bytes taken from the
// read buffer at capture time. NextRequest and Body are []byte views that
// share the buffer's backing array (or the body buffer's).
type ParserState struct {
	ReadBuffer  []byte
	NextRequest []byte

	Headers []KV // all captured headers, in wire order, capped at MaxHeaders

	AcceptEncodingRaw string
	ConnectionRaw     string
	ContentTypeRaw    string
	ContentLengthRaw  string
	IfModifiedSince   string
	RangeRaw          string
	QueryString       string
	Body              []byte

	cookiesParsed bool
	cookies       []KV

	queryParsed bool
	query       []KV

	postParsed bool
	post       []KV

	rangeParsed   bool
	rangeFrom     int64
	rangeTo       int64
	rangeHasValue bool

	imsParsed bool
	imsTime   time.Time
	imsValid  bool

	acceptEncodingParsed bool

	URLsRewritten int

	ErrorWhenTime     time.Time
	ErrorWhenNPackets int
}

// Reset clears a ParserState for reuse across keep-alive / pipelined
// requests, keeping the Headers/KV slice backing arrays.
func (p *ParserState) Reset() {
	p.NextRequest = nil
	p.Headers = p.Headers[:0]
	p.AcceptEncodingRaw = ""
	p.ConnectionRaw = ""
	p.ContentTypeRaw = ""
	p.ContentLengthRaw = ""
	p.IfModifiedSince = ""
	p.RangeRaw = ""
	p.QueryString = ""
	p.Body = nil

	p.cookiesParsed = false
	p.cookies = p.cookies[:0]
	p.queryParsed = false
	p.query = p.query[:0]
	p.postParsed = false
	p.post = p.post[:0]
	p.rangeParsed = false
	p.imsParsed = false
	p.acceptEncodingParsed = false
	p.URLsRewritten = 0
}

// Header returns the raw value of a captured request header. The six
// headers the parser extracts during header capture are served from their
// dedicated fields when set; any other name (or one of the six whose field
// is empty) is looked up in Headers, matched case-insensitively.
func (p *ParserState) Header(canonical string) (string, bool) {
	var raw string
	switch canonical {
	case "Accept-Encoding":
		raw = p.AcceptEncodingRaw
	case "Connection":
		raw = p.ConnectionRaw
	case "Content-Type":
		raw = p.ContentTypeRaw
	case "Content-Length":
		raw = p.ContentLengthRaw
	case "If-Modified-Since":
		raw = p.IfModifiedSince
	case "Range":
		raw = p.RangeRaw
	}
	if raw != "" {
		return raw, true
	}
	for _, h := range p.Headers {
		if headerEqualFold(h.Key, canonical) {
			return h.Value, true
		}
	}
	return "", false
}

// Request is bound to a Connection for the duration of one HTTP
// transaction.
type Request struct {
	Method      Method
	URL         string
	OriginalURL string
	Proto       string
	Flags       Flags

	Proxy ProxyInfo

	Parser ParserState
}

// ApplyRewrite points the request at a handler-supplied replacement URL:
// the fragment is discarded, the query string is split back out (dropping
// any previously cached query parse so the accessors re-parse against the
// new string), the rewrite counter advances, and the path portion is
// returned. OriginalURL is left untouched.
func (r *Request) ApplyRewrite(url string) string {
	if idx := indexByte(url, '#'); idx != -1 {
		url = url[:idx]
	}
	if idx := indexByte(url, '?'); idx != -1 {
		r.Parser.QueryString = url[idx+1:]
		url = url[:idx]
	} else {
		r.Parser.QueryString = ""
	}
	r.Parser.queryParsed = false
	r.Parser.query = r.Parser.query[:0]

	r.URL = url
	r.Flags.set(FlagURLRewritten)
	r.Parser.URLsRewritten++
	return url
}

// Reset prepares a Request for reuse on the next pipelined/keep-alive
// transaction.
func (r *Request) Reset() {
	r.Method = MethodUnknown
	r.URL = ""
	r.OriginalURL = ""
	r.Proto = ""
	r.Flags = 0
	r.Proxy = ProxyInfo{}
	r.Parser.Reset()
}
