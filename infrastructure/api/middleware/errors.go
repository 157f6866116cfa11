package middleware

import (
	"errors"
	"fmt"
)

// Base API errors as sentinels.
var (
	// ErrAuthentication indicates authentication failure.
	ErrAuthentication = errors.New("authentication failed")

	// ErrServer indicates the server returned an error response.
	ErrServer = errors.New("server error")
)

// APIError carries an explicit HTTP status for a handler failure.
type APIError struct {
	code    int
	message string
	cause   error
}

// NewAPIError creates a new APIError.
func NewAPIError(code int, message string, cause error) *APIError {
	return &APIError{
		code:    code,
		message: message,
		cause:   cause,
	}
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("api error %d: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("api error %d: %s", e.code, e.message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.cause
}

// Code returns the HTTP status code.
func (e *APIError) Code() int {
	return e.code
}

// Message returns the error message.
func (e *APIError) Message() string {
	return e.message
}

// AuthenticationError represents a rejected API key.
type AuthenticationError struct {
	message string
}

// NewAuthenticationError creates a new AuthenticationError.
func NewAuthenticationError(message string) *AuthenticationError {
	return &AuthenticationError{message: message}
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.message)
}

// Unwrap returns ErrAuthentication.
func (e *AuthenticationError) Unwrap() error {
	return ErrAuthentication
}

// ServerError is an error with a fixed status code.
type ServerError struct {
	statusCode int
	message    string
}

// NewServerError creates a new ServerError.
func NewServerError(statusCode int, message string) *ServerError {
	return &ServerError{
		statusCode: statusCode,
		message:    message,
	}
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.statusCode, e.message)
}

// Unwrap returns ErrServer.
func (e *ServerError) Unwrap() error {
	return ErrServer
}

// StatusCode returns the HTTP status code.
func (e *ServerError) StatusCode() int {
	return e.statusCode
}

// Message returns the error message.
func (e *ServerError) Message() string {
	return e.message
}
