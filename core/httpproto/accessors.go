package httpproto

import (
	"sort"
	"time"

	"github.com/coroweb/httpcore/core/task"
)

// Each lazy accessor parses on first access, gated by a bool on the
// ParserState, and sets its FlagParsed* bit. The cookie, query and form
// accessors also schedule a deferred reset on the owning Task so the
// parsed structure is torn down at transaction end (the slice's backing
// array is simply dropped; nothing here needs explicit unmapping, unlike
// the source's buffer-mutating scheme). The Range, If-Modified-Since and
// Accept-Encoding accessors take no Task and schedule no reset: their
// cached result lives on the ParserState until ParserState.Reset or the
// Request itself is discarded.

// Cookies returns the request's parsed cookies, separator ';'.
func (r *Request) Cookies(t *task.Task) []KV {
	if r.Parser.cookiesParsed {
		return r.Parser.cookies
	}
	raw, _ := r.Parser.Header("Cookie")
	r.Parser.cookies = parseKV(raw, ';', identityDecode, identityDecode)
	r.Parser.cookiesParsed = true
	r.Flags.set(FlagParsedCookies)
	scheduleReset(t, &r.Parser.cookiesParsed, &r.Parser.cookies)
	return r.Parser.cookies
}

// QueryParams returns the request's parsed query-string parameters,
// separator '&'.
func (r *Request) QueryParams(t *task.Task) []KV {
	if r.Parser.queryParsed {
		return r.Parser.query
	}
	r.Parser.query = parseKV(r.Parser.QueryString, '&', urlDecodeString, urlDecodeString)
	r.Parser.queryParsed = true
	r.Flags.set(FlagParsedQueryString)
	scheduleReset(t, &r.Parser.queryParsed, &r.Parser.query)
	return r.Parser.query
}

// PostParams returns the request's parsed x-www-form-urlencoded body
// parameters, separator '&'. Callers must have already ingested the body
// before calling this; the dispatcher does so for any route declaring it
// accepts POST data.
func (r *Request) PostParams(t *task.Task) []KV {
	if r.Parser.postParsed {
		return r.Parser.post
	}
	r.Parser.post = parseKV(string(r.Parser.Body), '&', urlDecodeString, urlDecodeString)
	r.Parser.postParsed = true
	r.Flags.set(FlagParsedPostData)
	scheduleReset(t, &r.Parser.postParsed, &r.Parser.post)
	return r.Parser.post
}

// Lookup performs a binary search (the accessor arrays are kept sorted by
// key) and returns the first matching value.
func Lookup(kvs []KV, key string) (string, bool) {
	i := sort.Search(len(kvs), func(i int) bool { return kvs[i].Key >= key })
	if i < len(kvs) && kvs[i].Key == key {
		return kvs[i].Value, true
	}
	return "", false
}

func identityDecode(s string) (string, bool) { return s, true }

// parseKV splits raw on sep into tokens, each split on the first '=',
// applying decodeKey/decodeVal. Empty values are allowed. An empty key or
// a key that fails to decode aborts the whole parse silently and the
// accessor falls back to an empty result.
func parseKV(raw string, sep byte, decodeKey, decodeVal func(string) (string, bool)) []KV {
	if raw == "" {
		return nil
	}
	var out []KV
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i < len(raw) && raw[i] != sep {
			continue
		}
		tok := raw[start:i]
		start = i + 1
		if tok == "" {
			continue
		}
		if len(tok) > 0 && tok[0] == ' ' {
			tok = tok[1:]
		}
		if tok == "" {
			continue
		}

		eq := indexByte(tok, '=')
		var rawKey, rawVal string
		if eq == -1 {
			rawKey, rawVal = tok, ""
		} else {
			rawKey, rawVal = tok[:eq], tok[eq+1:]
		}

		key, ok := decodeKey(rawKey)
		if !ok || key == "" {
			return nil
		}
		val, ok := decodeVal(rawVal)
		if !ok {
			return nil
		}
		out = append(out, KV{Key: key, Value: val})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// scheduleReset registers a deferred action that clears the parsed flag
// and result when the owning Task runs its cleanup, so a reused Task
// (keep-alive, pipelined) never sees a stale parse from a prior request.
func scheduleReset(t *task.Task, parsed *bool, result *[]KV) {
	if t == nil {
		return
	}
	t.Defer(func(args ...any) {
		*parsed = false
		*result = nil
	})
}

// RangeValue parses the Range header: "bytes=FROM-TO",
// "bytes=-TO", or "bytes=FROM-". Values that don't fit an int64 or that
// are malformed produce the sentinel (-1, -1) and ok=false.
func (r *Request) RangeValue() (from, to int64, ok bool) {
	if r.Parser.rangeParsed {
		return r.Parser.rangeFrom, r.Parser.rangeTo, r.Parser.rangeHasValue
	}
	r.Parser.rangeParsed = true
	r.Flags.set(FlagParsedRange)

	raw := r.Parser.RangeRaw
	const prefix = "bytes="
	if len(raw) <= len(prefix) || raw[:len(prefix)] != prefix {
		r.Parser.rangeFrom, r.Parser.rangeTo = -1, -1
		return -1, -1, false
	}
	spec := raw[len(prefix):]
	dash := indexByte(spec, '-')
	if dash == -1 {
		r.Parser.rangeFrom, r.Parser.rangeTo = -1, -1
		return -1, -1, false
	}

	fromStr, toStr := spec[:dash], spec[dash+1:]
	var f, tt int64 = -1, -1
	var fOK, tOK = true, true
	if fromStr != "" {
		f, fOK = parseInt64(fromStr)
	}
	if toStr != "" {
		tt, tOK = parseInt64(toStr)
	}
	if !fOK || !tOK || (fromStr == "" && toStr == "") {
		r.Parser.rangeFrom, r.Parser.rangeTo = -1, -1
		return -1, -1, false
	}

	r.Parser.rangeFrom, r.Parser.rangeTo, r.Parser.rangeHasValue = f, tt, true
	return f, tt, true
}

func parseInt64(s string) (int64, bool) {
	var n int64
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		if n > (1<<63-1-int64(c-'0'))/10 {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}

// imfFixdateLayout is the exact 29-byte IMF-fixdate shape accepted for
// If-Modified-Since; anything else is silently ignored.
const imfFixdateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// IfModifiedSinceValue parses the If-Modified-Since header.
func (r *Request) IfModifiedSinceValue() (time.Time, bool) {
	if r.Parser.imsParsed {
		return r.Parser.imsTime, r.Parser.imsValid
	}
	r.Parser.imsParsed = true
	r.Flags.set(FlagParsedIfModifiedSince)

	raw := r.Parser.IfModifiedSince
	if len(raw) != len(imfFixdateLayout) {
		return time.Time{}, false
	}
	ts, err := time.Parse(imfFixdateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	r.Parser.imsTime, r.Parser.imsValid = ts, true
	return ts, true
}

// AcceptEncodingFlags parses the Accept-Encoding header, matching
// "deflate", "gzip", and (if brotli is supported by the build) "br", and
// sets the corresponding request flags. One leading space per token is
// tolerated.
func (r *Request) AcceptEncodingFlags(brotliSupported bool) Flags {
	if r.Parser.acceptEncodingParsed {
		return r.Flags & (FlagAcceptDeflate | FlagAcceptGzip | FlagAcceptBrotli)
	}
	r.Parser.acceptEncodingParsed = true

	raw := r.Parser.AcceptEncodingRaw
	if raw != "" {
		if commaTokenContains(raw, "deflate") {
			r.Flags.set(FlagAcceptDeflate)
		}
		if commaTokenContains(raw, "gzip") {
			r.Flags.set(FlagAcceptGzip)
		}
		if brotliSupported && commaTokenContains(raw, "br") {
			r.Flags.set(FlagAcceptBrotli)
		}
	}
	return r.Flags & (FlagAcceptDeflate | FlagAcceptGzip | FlagAcceptBrotli)
}
