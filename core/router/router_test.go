package router

import "testing"

func TestFindExactMatch(t *testing.T) {
	r := New()
	called := false
	r.Handle("GET", "/health", func(ctx any) { called = true }, 0)

	route, ok := r.Find("GET", "/health")
	if !ok {
		t.Fatalf("expected a match")
	}
	route.Handler(nil)
	if !called {
		t.Fatalf("handler was not invoked")
	}
	if route.Tail != "" {
		t.Fatalf("tail = %q, want empty for an exact match", route.Tail)
	}
}

func TestFindLongestPrefixWins(t *testing.T) {
	r := New()
	r.Handle("GET", "/static/", func(ctx any) {}, 0)
	r.Handle("GET", "/static/assets/", func(ctx any) {}, ParseAcceptEncoding)

	route, ok := r.Find("GET", "/static/assets/app.js")
	if !ok {
		t.Fatalf("expected a match")
	}
	if route.Tail != "app.js" {
		t.Fatalf("tail = %q, want app.js", route.Tail)
	}
	if route.Flags&ParseAcceptEncoding == 0 {
		t.Fatalf("expected the more specific /static/assets/ route to win")
	}
}

func TestFindFallsBackToShorterPrefix(t *testing.T) {
	r := New()
	r.Handle("GET", "/static/", func(ctx any) {}, 0)
	r.Handle("GET", "/static/assets/", func(ctx any) {}, ParseAcceptEncoding)

	route, ok := r.Find("GET", "/static/other.txt")
	if !ok {
		t.Fatalf("expected a match against the shorter prefix")
	}
	if route.Tail != "other.txt" {
		t.Fatalf("tail = %q, want other.txt", route.Tail)
	}
	if route.Flags&ParseAcceptEncoding != 0 {
		t.Fatalf("did not expect the assets route's flags here")
	}
}

func TestFindNoMatch(t *testing.T) {
	r := New()
	r.Handle("GET", "/api/", func(ctx any) {}, 0)

	if _, ok := r.Find("GET", "/other"); ok {
		t.Fatalf("expected no match")
	}
}

func TestFindMethodSpecific(t *testing.T) {
	r := New()
	r.Handle("POST", "/submit", func(ctx any) {}, HasPostData)

	if _, ok := r.Find("GET", "/submit"); ok {
		t.Fatalf("GET should not match a POST-only route")
	}
	route, ok := r.Find("POST", "/submit")
	if !ok || route.Flags&HasPostData == 0 {
		t.Fatalf("expected POST /submit to match with HasPostData set")
	}
}

func TestHandleOverwritesSameRoute(t *testing.T) {
	r := New()
	r.Handle("GET", "/x", func(ctx any) {}, 0)
	r.Handle("GET", "/x", func(ctx any) {}, RequireAuth)

	route, ok := r.Find("GET", "/x")
	if !ok || route.Flags&RequireAuth == 0 {
		t.Fatalf("expected the second registration to win")
	}
}
