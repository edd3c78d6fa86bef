package model

import "fmt"

// ErrorCode classifies request failures for the API surface.
type ErrorCode string

const (
	ErrCodeInvalidInput        ErrorCode = "invalid_input"
	ErrCodeUnsupported         ErrorCode = "unsupported"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
)

// RequestError is a structured, user-visible error. Field names the offending
// request parameter when the code is invalid_input.
type RequestError struct {
	Code    ErrorCode `json:"error"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message,omitempty"`
}

func (e *RequestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidInput builds an invalid_input error naming the bad field.
func NewInvalidInput(field, message string) *RequestError {
	return &RequestError{Code: ErrCodeInvalidInput, Field: field, Message: message}
}

// NewUnsupported builds an unsupported chain/pool-type error.
func NewUnsupported(message string) *RequestError {
	return &RequestError{Code: ErrCodeUnsupported, Message: message}
}

// NewUpstreamUnavailable builds an upstream_unavailable error.
func NewUpstreamUnavailable(message string) *RequestError {
	return &RequestError{Code: ErrCodeUpstreamUnavailable, Message: message}
}
