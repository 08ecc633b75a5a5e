package errordata

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every error the service is willing to show a caller.
// Anything that does not carry a Kind is logged and replaced with a
// generic system error at the boundary.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindForbidden
	KindRateLimited
	KindExpired
	KindUnauthorized
	KindUpstream
)

type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int  // seconds, only meaningful for KindRateLimited
	RequireOtp bool // only meaningful for KindUnauthorized
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindExpired:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUpstream:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func RateLimited(message string, retryAfter int) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

// Expiredf covers both "no such code" and "code expired" with one
// message, so a caller cannot tell which it hit.
func Expiredf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindExpired, Message: fmt.Sprintf(format, args...)}
}

func Unauthorizedf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Reauth is an unauthorized error that tells the caller a fresh OTP
// round, not a token refresh, is the remedy.
func Reauth(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message, RequireOtp: true}
}

func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// AsError unwraps err into an *Error if one is anywhere in its chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
