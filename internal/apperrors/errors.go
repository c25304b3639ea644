package apperrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a machine-readable error code returned to API callers.
type Code string

const (
	CodeUserNotFound        Code = "USER_NOT_FOUND"
	CodeWalletNotFound      Code = "WALLET_NOT_FOUND"
	CodeSessionNotFound     Code = "TSS_SESSION_NOT_FOUND"
	CodeKeyShareNotFound    Code = "KEY_SHARE_NOT_FOUND"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeInvalidSession      Code = "INVALID_TSS_SESSION"
	CodeWalletAlreadyExists Code = "WALLET_ALREADY_EXISTS"
	CodeDuplicatePublicKey  Code = "DUPLICATE_PUBLIC_KEY"
	CodeNodeInsufficient    Code = "KEYSHARE_NODE_INSUFFICIENT"
	CodeUnknown             Code = "UNKNOWN_ERROR"
)

// Error carries a taxonomy code plus a human-readable message. Guard
// failures use the specific codes; infrastructure failures are wrapped as
// UNKNOWN_ERROR with the underlying cause retained for logs.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match two taxonomy errors by code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New returns a taxonomy error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap marks err as an infrastructure failure. The message should name the
// call that failed; these errors are safe for the caller to retry.
func Wrap(err error, format string, args ...interface{}) *Error {
	return &Error{Code: CodeUnknown, Message: fmt.Sprintf(format, args...), cause: err}
}

// CodeOf extracts the taxonomy code from any error, unwrapping as needed,
// defaulting to UNKNOWN_ERROR for plain errors that escaped wrapping.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Retryable reports whether the caller may retry with identical arguments.
func Retryable(err error) bool {
	return CodeOf(err) == CodeUnknown
}
