package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already a transport Error, the wrapper keeps its code and category.
// Context errors map to CANCELED; anything else becomes INTERNAL.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		wrapped := &Error{
			code:      te.code,
			category:  te.category,
			message:   message,
			cause:     err,
			metadata:  te.Metadata(),
			timestamp: te.timestamp,
			endpoint:  te.endpoint,
			attempts:  te.attempts,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsTransportError extracts a TransportError from an error chain.
// Returns nil if none is found.
func AsTransportError(err error) TransportError {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return nil
}

// Is checks if the outermost transport Error in the chain has the given code.
func Is(err error, code ErrorCode) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.code == code
	}
	return false
}

// IsCategory checks if the outermost transport Error has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable.
// Errors that are not transport Errors are not retryable.
func IsRetryable(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return false
}

// IsTransient checks if the error is transient.
func IsTransient(err error) bool {
	return IsCategory(err, CategoryTransient)
}

// IsPermanent checks if the error is permanent.
func IsPermanent(err error) bool {
	return IsCategory(err, CategoryPermanent)
}

// Code extracts the error code from an error, if available.
// Returns empty string if err is not a transport Error.
func Code(err error) ErrorCode {
	var te *Error
	if errors.As(err, &te) {
		return te.code
	}
	return ""
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}
