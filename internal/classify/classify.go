// Package classify maps heterogeneous upstream failures onto a closed error
// taxonomy with localized user-facing messages. A *classify.Error is the only
// error shape that crosses the verification core's public boundary.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/osonish/smsverify/internal/gateway"
	"github.com/osonish/smsverify/internal/phone"
)

// Code identifies one entry of the closed error taxonomy.
type Code string

const (
	InvalidPhone         Code = "INVALID_PHONE"
	AlreadyPending       Code = "ALREADY_PENDING"
	ServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	AuthenticationFailed Code = "AUTHENTICATION_FAILED"
	QuotaExceeded        Code = "QUOTA_EXCEEDED"
	CodeExpired          Code = "CODE_EXPIRED"
	CodeInvalid          Code = "CODE_INVALID"
	TooManyAttempts      Code = "TOO_MANY_ATTEMPTS"
	UnknownError         Code = "UNKNOWN_ERROR"
)

// traits carries the fixed per-code flags. Retryable means the caller may
// offer an automatic "try again"; operator marks configuration/billing
// failures that need an operator, not the end user.
var traits = map[Code]struct {
	retryable bool
	operator  bool
}{
	InvalidPhone:         {},
	AlreadyPending:       {},
	ServiceUnavailable:   {retryable: true},
	AuthenticationFailed: {operator: true},
	QuotaExceeded:        {operator: true},
	CodeExpired:          {},
	CodeInvalid:          {},
	TooManyAttempts:      {},
	UnknownError:         {},
}

// Error is an immutable classified failure.
type Error struct {
	Code           Code
	Retryable      bool
	OperatorAction bool
	Remaining      int // attempts remaining; meaningful for CodeInvalid only
	cause          error
}

// New creates a classified error for the given taxonomy code.
func New(code Code) *Error {
	tr := traits[code]
	return &Error{Code: code, Retryable: tr.retryable, OperatorAction: tr.operator}
}

// Wrap creates a classified error that keeps the raw cause for logging.
// The cause is never rendered in user-facing messages.
func Wrap(code Code, cause error) *Error {
	e := New(code)
	e.cause = cause
	return e
}

// NewCodeInvalid creates a CodeInvalid error carrying the remaining attempt
// count.
func NewCodeInvalid(remaining int) *Error {
	e := New(CodeInvalid)
	e.Remaining = remaining
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

// Message returns the user-facing message for the given locale.
func (e *Error) Message(loc Locale) string {
	return messageFor(e.Code, loc)
}

// SuggestedAction returns the localized suggested action, or "" when the
// taxonomy has none for this code.
func (e *Error) SuggestedAction(loc Locale) string {
	return actionFor(e.Code, loc)
}

var serverErrRe = regexp.MustCompile(`\berror 5\d\d\b`)

// Classify maps any raw error onto the taxonomy. It is total: it never
// panics and returns at least UnknownError. Sentinels are matched first,
// then the raw text is pattern-matched the way the upstream providers
// phrase their failures.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case errors.Is(err, gateway.ErrAuthFailed):
		return Wrap(AuthenticationFailed, err)
	case errors.Is(err, phone.ErrInvalidPhone):
		return Wrap(InvalidPhone, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Wrap(ServiceUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(ServiceUnavailable, err)
	}

	return Wrap(classifyText(strings.ToLower(err.Error())), err)
}

func classifyText(msg string) Code {
	switch {
	case containsAny(msg, "network", "connection", "timeout", "no such host", "broken pipe"):
		return ServiceUnavailable
	case containsAny(msg, "invalid phone", "phone number", "invalid mobile", "invalid to"):
		return InvalidPhone
	case containsAny(msg, "rate limit", "too many requests", "error 429"):
		return QuotaExceeded
	case containsAny(msg, "insufficient", "balance", "funds", "quota"):
		return QuotaExceeded
	case containsAny(msg, "unauthorized", "credentials", "authentication", "error 401", "error 403"):
		return AuthenticationFailed
	case containsAny(msg, "service unavailable", "server error") || serverErrRe.MatchString(msg):
		return ServiceUnavailable
	default:
		return UnknownError
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
