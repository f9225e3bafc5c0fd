// Package dispatch implements the request dispatcher: it pumps a request
// head, parses it, resolves a route, enforces the route's flags, ingests a
// POST body when declared, runs the handler-driven rewrite loop, and
// performs the WebSocket upgrade handshake.
package dispatch

import "strconv"

// statusText covers the codes this dispatcher's default responses use.
func statusText(code int) string {
	switch code {
	case 101:
		return "Switching Protocols"
	case 200:
		return "OK"
	case 204:
		return "No Content"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 413:
		return "Payload Too Large"
	case 429:
		return "Too Many Requests"
	case 500:
		return "Internal Server Error"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}

// appendInt appends the base-10 rendering of i to b without going through
// strconv, keeping response building allocation-free.
func appendInt(b []byte, i int) []byte {
	if i == 0 {
		return append(b, '0')
	}
	if i < 0 {
		b = append(b, '-')
		i = -i
	}
	var digits [20]byte
	n := 0
	for i > 0 {
		digits[n] = byte('0' + i%10)
		i /= 10
		n++
	}
	for n > 0 {
		n--
		b = append(b, digits[n])
	}
	return b
}

// writeStatusOnly writes a response with no body: the status line, a
// Content-Length: 0, and (when keepAlive is false) Connection: close.
func writeStatusOnly(w Writer, code int, keepAlive bool) error {
	return writeStatusOnlyHeaders(w, code, keepAlive, nil)
}

// writeStatusOnlyHeaders is writeStatusOnly plus caller-supplied extra
// "Key: Value" header lines, for middleware-set headers on a body-less
// response (e.g. a CORS preflight's 204).
func writeStatusOnlyHeaders(w Writer, code int, keepAlive bool, extra []string) error {
	buf := make([]byte, 0, 96)
	buf = append(buf, "HTTP/1.1 "...)
	buf = appendInt(buf, code)
	buf = append(buf, ' ')
	buf = append(buf, statusText(code)...)
	buf = append(buf, "\r\nContent-Length: 0\r\n"...)
	for _, h := range extra {
		buf = append(buf, h...)
		buf = append(buf, "\r\n"...)
	}
	if !keepAlive {
		buf = append(buf, "Connection: close\r\n"...)
	}
	buf = append(buf, "\r\n"...)
	_, err := w.Write(buf)
	return err
}

// writeBody writes a response with a body, the common path for handlers
// and for default error responses that carry a short message. extra is an
// optional list of caller-supplied "Key: Value" header lines (middleware
// like CORS() or RequestID() queues these via Context.SetHeader).
func writeBody(w Writer, code int, contentType string, body []byte, keepAlive bool, extra []string) error {
	buf := make([]byte, 0, 128+len(body))
	buf = append(buf, "HTTP/1.1 "...)
	buf = appendInt(buf, code)
	buf = append(buf, ' ')
	buf = append(buf, statusText(code)...)
	buf = append(buf, "\r\nContent-Type: "...)
	buf = append(buf, contentType...)
	buf = append(buf, "\r\nContent-Length: "...)
	buf = appendInt(buf, len(body))
	buf = append(buf, "\r\n"...)
	for _, h := range extra {
		buf = append(buf, h...)
		buf = append(buf, "\r\n"...)
	}
	if !keepAlive {
		buf = append(buf, "Connection: close\r\n"...)
	}
	buf = append(buf, "\r\n"...)
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// Writer is anything a response can be written to: a net.Conn in
// production, a bytes.Buffer in tests.
type Writer interface {
	Write([]byte) (int, error)
}

// defaultErrorBody renders the small plain-text body the dispatcher's
// default responses use when a handler never ran.
func defaultErrorBody(code int) []byte {
	return []byte(strconv.Itoa(code) + " " + statusText(code))
}
