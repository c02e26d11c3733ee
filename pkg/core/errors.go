package core

import (
	"errors"
	"fmt"
)

// Error represents an engine error.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	Underlying error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrDevice covers microphone or playback device failures. Fatal:
	// a session cannot continue without its audio device.
	ErrDevice ErrorType = "device_error"

	// ErrTranscription covers speech-to-text collaborator failures.
	ErrTranscription ErrorType = "transcription_error"

	// ErrReply covers assistant-reply collaborator failures.
	ErrReply ErrorType = "reply_error"

	// ErrSynthesis covers text-to-speech collaborator failures.
	ErrSynthesis ErrorType = "synthesis_error"

	// ErrInvalidRequest covers malformed input at the transport edge.
	ErrInvalidRequest ErrorType = "invalid_request_error"

	// ErrInternal covers bugs and unexpected states.
	ErrInternal ErrorType = "internal_error"
)

// NewDeviceError creates a fatal device error.
func NewDeviceError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrDevice,
		Message:    message,
		Underlying: underlying,
	}
}

// NewTranscriptionError creates a recoverable transcription error.
func NewTranscriptionError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrTranscription,
		Message:    message,
		Underlying: underlying,
	}
}

// NewReplyError creates a recoverable reply error.
func NewReplyError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrReply,
		Message:    message,
		Underlying: underlying,
	}
}

// NewSynthesisError creates a recoverable synthesis error.
func NewSynthesisError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrSynthesis,
		Message:    message,
		Underlying: underlying,
	}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrInternal,
		Message:    message,
		Underlying: underlying,
	}
}

// IsFatal reports whether the error should terminate the session.
// Collaborator failures are recoverable; losing the device is not.
func (e *Error) IsFatal() bool {
	switch e.Type {
	case ErrDevice, ErrInternal:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// AsError extracts a *Error from an error chain, wrapping unknown
// errors as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return NewInternalError(err.Error(), err)
}
