package pipeline

import "net/http"

// ErrorKind tags a pipeline error with its taxonomy class so callers can
// switch on kind instead of error identity.
type ErrorKind string

const (
	// KindValidation covers bad request input rejected before any stream I/O.
	KindValidation ErrorKind = "validation"
	// KindSignature covers content rejected after byte-signature inspection.
	KindSignature ErrorKind = "signature"
	// KindFailure covers transformer or sink faults during streaming.
	KindFailure ErrorKind = "failure"
)

// Error is the tagged pipeline error. Message is safe to echo to callers;
// cause is operator-facing only.
type Error struct {
	Kind    ErrorKind
	Message string
	// Status is the suggested HTTP status for the error.
	Status int
	cause  error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Status: http.StatusBadRequest}
}

func signatureError(message string) *Error {
	return &Error{Kind: KindSignature, Message: message, Status: http.StatusUnsupportedMediaType}
}

func failure(message string, cause error) *Error {
	return &Error{Kind: KindFailure, Message: message, Status: http.StatusInternalServerError, cause: cause}
}
