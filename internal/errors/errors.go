// Package errors provides structured error handling for netrecon operations.
// It defines error codes, error types, and utilities for turning raw network
// failures into coded errors that can be stored inside a scan report.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"syscall"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// Network and scanning errors.
	CodeResolution      ErrorCode = "RESOLUTION_FAILED"
	CodeHostUnreachable ErrorCode = "HOST_UNREACHABLE"
	CodeConnRefused     ErrorCode = "CONNECTION_REFUSED"
	CodeProtocol        ErrorCode = "PROTOCOL"
	CodeScanFailed      ErrorCode = "SCAN_FAILED"
	CodeTargetInvalid   ErrorCode = "TARGET_INVALID"
)

// ScanError represents an error that occurred during scanning operations.
type ScanError struct {
	Code    ErrorCode
	Message string
	Target  string
	Cause   error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Target != "" {
		msg = fmt.Sprintf("%s (target: %s)", msg, e.Target)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{Code: code, Message: message}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{Code: code, Message: message, Target: target}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Cause: err}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Target: target, Cause: err}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field: %s)", msg, e.Field)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{Code: code, Message: message, Field: field, Value: value}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{Code: code, Message: message, Cause: err}
}

// IsCode checks if an error, or any error it wraps, has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	var scanErr *ScanError
	if stderrors.As(err, &scanErr) {
		return scanErr.Code
	}
	var cfgErr *ConfigError
	if stderrors.As(err, &cfgErr) {
		return cfgErr.Code
	}
	return CodeUnknown
}

// IsRetryable determines if an error indicates a transient condition.
// netrecon never retries on its own; callers scanning repeatedly may.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeHostUnreachable, CodeConnRefused:
		return true
	default:
		return false
	}
}

// IsFatal determines if an error should stop a scan before any probe runs.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeValidation, CodeTargetInvalid, CodeConfiguration:
		return true
	default:
		return false
	}
}

// Classify maps a raw network error to an error code.
func Classify(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code := GetCode(err); code != CodeUnknown {
		return code
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return CodeCanceled
	case stderrors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case stderrors.Is(err, syscall.ECONNREFUSED):
		return CodeConnRefused
	case stderrors.Is(err, syscall.EHOSTUNREACH), stderrors.Is(err, syscall.ENETUNREACH):
		return CodeHostUnreachable
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return CodeTimeout
		}
		return CodeResolution
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}

	return CodeUnknown
}

// Wrap classifies err and wraps it as a ScanError for target. Errors that are
// already coded are returned unchanged.
func Wrap(message, target string, err error) *ScanError {
	var scanErr *ScanError
	if stderrors.As(err, &scanErr) {
		return scanErr
	}
	return WrapScanErrorWithTarget(Classify(err), message, target, err)
}

// Common error creation functions

// ErrInvalidTarget creates an error for invalid scan targets.
func ErrInvalidTarget(target string, cause error) *ScanError {
	return WrapScanErrorWithTarget(CodeTargetInvalid, "invalid target specification", target, cause)
}

// ErrEmptyTarget creates an error for a scan invoked without a target.
func ErrEmptyTarget() *ScanError {
	return NewScanError(CodeValidation, "target must not be empty")
}

// ErrResolution creates an error for a host that did not resolve.
func ErrResolution(target string, cause error) *ScanError {
	return WrapScanErrorWithTarget(CodeResolution, "address resolution failed", target, cause)
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "invalid configuration value", field, value)
}
