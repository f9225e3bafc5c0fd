package httpproto

import "bytes"

// Outcome carries the parse-derived decisions the dispatcher needs that
// don't belong on the per-transaction Request (they're Connection-scoped).
type Outcome struct {
	KeepAlive        bool
	UpgradeRequested bool
}

// ParseRequest runs the full parse pipeline over buf, which must already
// contain a complete request head (the caller establishes this via
// pump.Pump with the head finalizer before calling ParseRequest). allowProxy
// gates the PROXY-prefix parsing attempt.
func ParseRequest(req *Request, buf []byte, allowProxy bool) (Outcome, error) {
	cursor := 0

	proxyInfo, proxyResult, err := parseProxyPrefix(buf, allowProxy)
	if err != nil {
		return Outcome{}, ErrBadRequest
	}
	if proxyResult.Present {
		cursor += proxyResult.Consumed
		if proxyResult.IsCommand {
			req.Proxy = proxyInfo
			req.Flags.set(FlagProxied)
		}
	}

	for cursor < len(buf) && (buf[cursor] == ' ' || buf[cursor] == '\r' || buf[cursor] == '\n' || buf[cursor] == '\t') {
		cursor++
	}

	rest := buf[cursor:]
	if len(rest) < MinRequestSize {
		return Outcome{}, ErrBadRequest
	}

	method, methodLen, ok := matchMethod(rest)
	if !ok {
		// An unrecognized method abandons this request with 405 rather
		// than 400, and a pipelined follow-up already in the buffer is
		// still recorded so the connection can go on serving it.
		if idx := bytes.Index(rest, []byte("\r\n\r\n")); idx != -1 && idx+4 < len(rest) {
			req.Parser.NextRequest = rest[idx+4:]
		}
		return Outcome{}, ErrMethodNotAllowed
	}
	req.Method = method
	rest = rest[methodLen:]

	lineEnd := bytes.IndexByte(rest, '\r')
	if lineEnd == -1 {
		return Outcome{}, ErrBadRequest
	}
	line := rest[:lineEnd]

	spaceIdx := bytes.LastIndexByte(line, ' ')
	if spaceIdx == -1 {
		return Outcome{}, ErrBadRequest
	}
	rawURL := line[:spaceIdx]
	httpVer := line[spaceIdx+1:]

	if len(rawURL) == 0 || rawURL[0] != '/' {
		return Outcome{}, ErrBadRequest
	}

	isHTTP10, ok := matchHTTPVersion(httpVer)
	if !ok {
		return Outcome{}, ErrBadRequest
	}
	if isHTTP10 {
		req.Flags.set(FlagIsHTTP10)
	}

	urlBytes := rawURL
	if idx := bytes.IndexByte(urlBytes, '#'); idx != -1 {
		urlBytes = urlBytes[:idx]
	}
	var queryString []byte
	if idx := bytes.IndexByte(urlBytes, '?'); idx != -1 {
		queryString = urlBytes[idx+1:]
		urlBytes = urlBytes[:idx]
	}

	decodedLen, ok := decodeURLInPlace(urlBytes)
	if !ok {
		return Outcome{}, ErrBadRequest
	}
	decodedURL := string(urlBytes[:decodedLen])
	req.URL = decodedURL
	req.OriginalURL = decodedURL
	req.Parser.QueryString = string(queryString)

	// Advance past the request line's CRLF.
	cursor += methodLen + lineEnd + 2

	if err := parseHeaders(req, buf, cursor); err != nil {
		return Outcome{}, err
	}

	outcome := deriveConnectionOutcome(req)
	return outcome, nil
}

func matchMethod(buf []byte) (Method, int, bool) {
	for _, m := range methodTable {
		if len(buf) >= len(m.prefix) && string(buf[:len(m.prefix)]) == m.prefix {
			return m.method, len(m.prefix), true
		}
	}
	return MethodUnknown, 0, false
}

func matchHTTPVersion(buf []byte) (isHTTP10 bool, ok bool) {
	if len(buf) != 8 {
		return false, false
	}
	s := string(buf)
	switch s {
	case "HTTP/1.0":
		return true, true
	case "HTTP/1.1":
		return false, true
	default:
		return false, false
	}
}

// parseHeaders repeatedly locates the next header line until the blank
// line that terminates the block, capping capture at MaxHeaders and
// recording the pipelined follow-up if bytes follow the terminator.
func parseHeaders(req *Request, buf []byte, cursor int) error {
	count := 0
	for {
		if cursor > len(buf) {
			return ErrBadRequest
		}
		remaining := buf[cursor:]
		crIdx := bytes.IndexByte(remaining, '\r')
		if crIdx == -1 {
			return ErrBadRequest
		}
		if crIdx == 0 {
			// Blank line: end of headers. Must be followed by '\n'.
			if len(remaining) < 2 || remaining[1] != '\n' {
				return ErrBadRequest
			}
			cursor += 2
			if cursor < len(buf) {
				req.Parser.NextRequest = buf[cursor:]
			}
			return nil
		}

		line := remaining[:crIdx]
		if len(remaining) < crIdx+2 || remaining[crIdx+1] != '\n' {
			return ErrBadRequest
		}
		cursor += crIdx + 2

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 || colon+1 >= len(line) || line[colon+1] != ' ' {
			return ErrBadRequest
		}
		key := string(line[:colon])
		value := string(line[colon+2:])
		if !validHeaderName(key) || !validHeaderValue(value) {
			return ErrBadRequest
		}

		count++
		if count > MaxHeaders {
			return ErrHeaderOverflow
		}
		req.Parser.Headers = append(req.Parser.Headers, KV{Key: key, Value: value})
		applyWellKnownHeader(req, key, value)
	}
}

func applyWellKnownHeader(req *Request, key, value string) {
	switch {
	case headerEqualFold(key, "Accept-Encoding"):
		req.Parser.AcceptEncodingRaw = value
	case headerEqualFold(key, "Connection"):
		req.Parser.ConnectionRaw = value
	case headerEqualFold(key, "Content-Type"):
		req.Parser.ContentTypeRaw = value
	case headerEqualFold(key, "Content-Length"):
		req.Parser.ContentLengthRaw = value
	case headerEqualFold(key, "If-Modified-Since"):
		req.Parser.IfModifiedSince = value
	case headerEqualFold(key, "Range"):
		req.Parser.RangeRaw = value
	}
}

// deriveConnectionOutcome scans the Connection header's comma-separated
// tokens to decide keep-alive and upgrade behavior. HTTP/1.1 defaults to
// keep-alive unless "close" appears; HTTP/1.0 defaults to close unless
// "keep-alive" appears explicitly.
func deriveConnectionOutcome(req *Request) Outcome {
	conn := req.Parser.ConnectionRaw
	hasClose := conn != "" && commaTokenContains(conn, "close")
	hasKeepAlive := conn != "" && commaTokenContains(conn, "keep-alive")
	hasUpgrade := conn != "" && commaTokenContains(conn, "upgrade")

	var keepAlive bool
	if req.Flags.has(FlagIsHTTP10) {
		keepAlive = hasKeepAlive
	} else {
		keepAlive = !hasClose
	}

	return Outcome{KeepAlive: keepAlive, UpgradeRequested: hasUpgrade}
}
