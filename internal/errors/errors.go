package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess     Code = 0
	CodeInternal    Code = 1
	CodeUsage       Code = 2
	CodeAuth        Code = 10
	CodeRateLimited Code = 11
	CodeUnavailable Code = 12
	CodeUnsupported Code = 13
	CodeBlocked     Code = 16

	// Pipeline taxonomy.
	CodeInvalidIntent  Code = 20
	CodeAmbiguous      Code = 21
	CodeProvider       Code = 22
	CodeNoWallet       Code = 23
	CodeNothingPending Code = 24
	CodePartialFailure Code = 25
	CodeFailure        Code = 26
	CodeSigner         Code = 27
	CodeTimeout        Code = 28
)

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	// Field names the offending intent parameter for CodeInvalidIntent.
	Field string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// InvalidField reports an intent parameter that is missing or out of range.
func InvalidField(field, format string, args ...any) *Error {
	return &Error{
		Code:    CodeInvalidIntent,
		Field:   field,
		Message: fmt.Sprintf("invalid intent field %q: %s", field, fmt.Sprintf(format, args...)),
	}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	cErr, ok := As(err)
	return ok && cErr.Code == code
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// TypeName maps a code to the stable type string used in envelopes.
func TypeName(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "provider_unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeBlocked:
		return "kind_blocked"
	case CodeInvalidIntent:
		return "invalid_intent"
	case CodeAmbiguous:
		return "ambiguous_intent"
	case CodeProvider:
		return "provider_error"
	case CodeNoWallet:
		return "no_wallet"
	case CodeNothingPending:
		return "nothing_pending"
	case CodePartialFailure:
		return "partial_failure"
	case CodeFailure:
		return "execution_failure"
	case CodeSigner:
		return "signer_error"
	case CodeTimeout:
		return "timeout"
	default:
		return "internal_error"
	}
}
