package core

import "errors"

// Error codes for protocol-level errors.
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeValidation   = "validation"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeStorage      = "storage"
	ErrCodeRateLimited  = "rate_limited"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrBadRequest           = errors.New("bad request")
	ErrUnauthorized         = errors.New("unauthorized")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
