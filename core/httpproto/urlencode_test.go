package httpproto

import "testing"

func TestDecodeURLInPlace(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/plain", "/plain", true},
		{"/a+b", "/a b", true},
		{"/%41%20b", "/A b", true},
		{"/%2Fescaped", "//escaped", true},
		{"/trailing%", "", false},
		{"/bad%zz", "", false},
		{"/%00nul", "", false}, // decoded NUL is rejected outright
	}

	for _, tc := range cases {
		buf := []byte(tc.in)
		n, ok := decodeURLInPlace(buf)
		if ok != tc.ok {
			t.Errorf("decode(%q): ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && string(buf[:n]) != tc.want {
			t.Errorf("decode(%q) = %q, want %q", tc.in, buf[:n], tc.want)
		}
	}
}

func TestURLDecodeString(t *testing.T) {
	got, ok := urlDecodeString("go+lang%21")
	if !ok || got != "go lang!" {
		t.Fatalf("urlDecodeString = %q, %v", got, ok)
	}
	if _, ok := urlDecodeString("%"); ok {
		t.Fatalf("expected a bare %% to fail decoding")
	}
}
