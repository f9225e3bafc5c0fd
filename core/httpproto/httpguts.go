package httpproto

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// headerEqualFold compares a captured header name against a canonical
// name case-insensitively, per RFC 7230's field-name matching rule;
// httpguts.HeaderValuesContainsToken et al already assume this, and
// net/http's own ecosystem does the same.
func headerEqualFold(name, canonical string) bool {
	return strings.EqualFold(name, canonical)
}

// validHeaderName reports whether name is a syntactically valid HTTP
// header field-name (RFC 7230 token).
func validHeaderName(name string) bool {
	return httpguts.ValidHeaderFieldName(name)
}

// validHeaderValue reports whether value is free of characters RFC 7230
// forbids in a field-value.
func validHeaderValue(value string) bool {
	return httpguts.ValidHeaderFieldValue(value)
}

// commaTokenContains scans a comma-separated header value (tolerating
// optional whitespace around tokens) for a case-insensitive token match.
func commaTokenContains(header, token string) bool {
	return httpguts.HeaderValuesContainsToken([]string{header}, token)
}
