package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	// Authentication and account failures
	ErrorTypeInvalidCredentials   ErrorType = "invalid_credentials"
	ErrorTypeSecondFactorRequired ErrorType = "second_factor_required"
	ErrorTypeBackupCodeRejected   ErrorType = "backup_code_rejected"
	ErrorTypeChallengeRequired    ErrorType = "challenge_required"
	ErrorTypeRateLimit            ErrorType = "rate_limit"
	ErrorTypeSessionCorrupt       ErrorType = "session_corrupt"
	ErrorTypeGatewayUnavailable   ErrorType = "gateway_unavailable"

	// Transport level failures reported by the HTTP client
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"

	ErrorTypeUnknown ErrorType = "unknown"
)

// Error represents an error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error.
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Newf creates a typed error with a formatted message.
func Newf(errorType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errorType, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a type and message to an underlying error.
func Wrap(errorType ErrorType, err error, message string) *Error {
	return &Error{Type: errorType, Message: message, Err: err}
}

// WithCode returns a copy of the error carrying the given status code.
func (e *Error) WithCode(code int) *Error {
	c := *e
	c.Code = code
	return &c
}

// TypeOf returns the type of the first *Error in err's chain, or
// ErrorTypeUnknown when there is none.
func TypeOf(err error) ErrorType {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given error type.
func Is(err error, errorType ErrorType) bool {
	return err != nil && Classify(err) == errorType
}

// messageHints maps substrings seen in remote error bodies to error types.
// Order matters: the first hint found wins.
var messageHints = []struct {
	hint      string
	errorType ErrorType
}{
	{"two_factor_required", ErrorTypeSecondFactorRequired},
	{"two-factor", ErrorTypeSecondFactorRequired},
	{"security code", ErrorTypeBackupCodeRejected},
	{"invalid verification code", ErrorTypeBackupCodeRejected},
	{"backup code", ErrorTypeBackupCodeRejected},
	{"challenge_required", ErrorTypeChallengeRequired},
	{"checkpoint", ErrorTypeChallengeRequired},
	{"bad_password", ErrorTypeInvalidCredentials},
	{"invalid_user", ErrorTypeInvalidCredentials},
	{"invalid credentials", ErrorTypeInvalidCredentials},
	{"incorrect password", ErrorTypeInvalidCredentials},
	{"login_required", ErrorTypeInvalidCredentials},
	{"please wait a few minutes", ErrorTypeRateLimit},
	{"rate limit", ErrorTypeRateLimit},
	{"rate_limit", ErrorTypeRateLimit},
	{"too many requests", ErrorTypeRateLimit},
	{"feedback_required", ErrorTypeRateLimit},
}

// Classify maps any error onto the authentication/gateway taxonomy.
// Typed errors keep their type (transport kinds fold into
// ErrorTypeGatewayUnavailable); untyped errors are matched on their text.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var typed *Error
	if stderrors.As(err, &typed) {
		switch typed.Type {
		case ErrorTypeNetwork, ErrorTypeServerError:
			return ErrorTypeGatewayUnavailable
		case ErrorTypeUnknown, ErrorTypeParsing, ErrorTypeNotFound:
			if t := classifyMessage(typed.Error()); t != ErrorTypeUnknown {
				return t
			}
			return ErrorTypeUnknown
		default:
			return typed.Type
		}
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeGatewayUnavailable
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return ErrorTypeGatewayUnavailable
	}

	return classifyMessage(err.Error())
}

func classifyMessage(msg string) ErrorType {
	lower := strings.ToLower(msg)
	for _, h := range messageHints {
		if strings.Contains(lower, h.hint) {
			return h.errorType
		}
	}
	return ErrorTypeUnknown
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeGatewayUnavailable:
		return true
	default:
		return false
	}
}

// IsAuthFailure reports whether the error type means the current session or
// credential can no longer be used.
func IsAuthFailure(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeInvalidCredentials, ErrorTypeSecondFactorRequired,
		ErrorTypeBackupCodeRejected, ErrorTypeChallengeRequired:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 400, 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
