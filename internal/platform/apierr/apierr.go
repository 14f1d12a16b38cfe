// Package apierr carries an HTTP status and a stable machine-readable code
// alongside an error. The webhook surface maps these straight into the
// response envelope, so codes are part of the endpoint contract.
package apierr

import "fmt"

// Error is a status-carrying error. Code is the short identifier exposed to
// callers (for example "bad_signature"); Err holds the internal cause.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}
