package httpproto

import (
	"testing"
	"time"

	"github.com/coroweb/httpcore/core/task"
)

func TestCookiesParsedSortedAndIdempotent(t *testing.T) {
	var req Request
	req.Parser.Headers = []KV{{Key: "Cookie", Value: "b=2; a=1; c="}}

	tk := task.New(func(t *task.Task, data any) int { return 0 }, nil)
	first := req.Cookies(tk)
	if len(first) != 3 {
		t.Fatalf("len(cookies) = %d, want 3", len(first))
	}
	if first[0].Key != "a" || first[1].Key != "b" || first[2].Key != "c" {
		t.Fatalf("cookies not sorted: %+v", first)
	}
	if v, ok := Lookup(first, "c"); !ok || v != "" {
		t.Fatalf("Lookup(c) = %q, %v, want empty string, true", v, ok)
	}

	req.Parser.Headers[0].Value = "z=9"
	second := req.Cookies(tk)
	if len(second) != 3 || second[0].Key != "a" {
		t.Fatalf("second access should reuse cached parse, got %+v", second)
	}
}

func TestCookiesEmptyKeyAbortsWholeParse(t *testing.T) {
	var req Request
	req.Parser.Headers = []KV{{Key: "Cookie", Value: "a=1; =2"}}

	tk := task.New(func(t *task.Task, data any) int { return 0 }, nil)
	got := req.Cookies(tk)
	if got != nil {
		t.Fatalf("expected nil result on malformed cookie token, got %+v", got)
	}
}

func TestQueryParamsURLDecoded(t *testing.T) {
	var req Request
	req.Parser.QueryString = "name=go+lang&tag=a%2Bb"

	tk := task.New(func(t *task.Task, data any) int { return 0 }, nil)
	kvs := req.QueryParams(tk)
	v, ok := Lookup(kvs, "name")
	if !ok || v != "go lang" {
		t.Fatalf("name = %q, %v, want \"go lang\", true", v, ok)
	}
	v, ok = Lookup(kvs, "tag")
	if !ok || v != "a+b" {
		t.Fatalf("tag = %q, %v, want \"a+b\", true", v, ok)
	}
}

func TestPostParamsFromBody(t *testing.T) {
	var req Request
	req.Parser.Body = []byte("x=1&y=hello%20world")

	tk := task.New(func(t *task.Task, data any) int { return 0 }, nil)
	kvs := req.PostParams(tk)
	v, ok := Lookup(kvs, "y")
	if !ok || v != "hello world" {
		t.Fatalf("y = %q, %v", v, ok)
	}
}

func TestRangeValueFromTo(t *testing.T) {
	var req Request
	req.Parser.RangeRaw = "bytes=100-200"
	from, to, ok := req.RangeValue()
	if !ok || from != 100 || to != 200 {
		t.Fatalf("range = %d-%d, %v", from, to, ok)
	}
}

func TestRangeValueSuffix(t *testing.T) {
	var req Request
	req.Parser.RangeRaw = "bytes=-500"
	from, to, ok := req.RangeValue()
	if !ok || from != -1 || to != 500 {
		t.Fatalf("range = %d-%d, %v", from, to, ok)
	}
}

func TestRangeValueOpenEnded(t *testing.T) {
	var req Request
	req.Parser.RangeRaw = "bytes=1024-"
	from, to, ok := req.RangeValue()
	if !ok || from != 1024 || to != -1 {
		t.Fatalf("range = %d-%d, %v", from, to, ok)
	}
}

func TestRangeValueMalformed(t *testing.T) {
	var req Request
	req.Parser.RangeRaw = "bytes=abc-def"
	_, _, ok := req.RangeValue()
	if ok {
		t.Fatalf("expected malformed range to fail")
	}
}

func TestIfModifiedSinceExactShape(t *testing.T) {
	var req Request
	req.Parser.IfModifiedSince = "Sun, 06 Nov 1994 08:49:37 GMT"
	ts, ok := req.IfModifiedSinceValue()
	if !ok {
		t.Fatalf("expected valid IMF-fixdate to parse")
	}
	want := time.Date(1994, time.November, 6, 8, 49, 37, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("ts = %v, want %v", ts, want)
	}
}

func TestIfModifiedSinceWrongLength(t *testing.T) {
	var req Request
	req.Parser.IfModifiedSince = "Sun, 06 Nov 1994 08:49:37 GMT+2"
	_, ok := req.IfModifiedSinceValue()
	if ok {
		t.Fatalf("expected non-29-byte value to be rejected")
	}
}

func TestAcceptEncodingFlagsGzipAndDeflate(t *testing.T) {
	var req Request
	req.Parser.AcceptEncodingRaw = "gzip, deflate"
	flags := req.AcceptEncodingFlags(false)
	if !flags.has(FlagAcceptGzip) || !flags.has(FlagAcceptDeflate) {
		t.Fatalf("flags = %b, want gzip+deflate set", flags)
	}
	if flags.has(FlagAcceptBrotli) {
		t.Fatalf("did not expect brotli")
	}
}

func TestAcceptEncodingFlagsBrotliGatedByBuildSupport(t *testing.T) {
	var req Request
	req.Parser.AcceptEncodingRaw = "br"
	if req.AcceptEncodingFlags(false).has(FlagAcceptBrotli) {
		t.Fatalf("brotli should not be set when unsupported by the build")
	}

	req.Parser.acceptEncodingParsed = false
	if !req.AcceptEncodingFlags(true).has(FlagAcceptBrotli) {
		t.Fatalf("brotli should be set when supported and requested")
	}
}
