package httpproto

import "errors"

// Parse-time error classes surfaced to the dispatcher. Parser errors are
// never retried: each maps to a default response and abandons the
// in-flight request, though a pipelined follow-up already located in the
// buffer survives.
var (
	ErrBadRequest       = errors.New("httpproto: bad request")
	ErrMethodNotAllowed = errors.New("httpproto: method not recognized")
	ErrHeaderOverflow   = errors.New("httpproto: too many headers")
	ErrIncomplete       = errors.New("httpproto: incomplete request head")
)
