package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories produced by the gateway
// client. Everything above the client branches on the kind only, never on the
// underlying error.
type ErrorKind string

const (
	KindNetwork           ErrorKind = "NETWORK_ERROR"
	KindDNS               ErrorKind = "DNS_ERROR"
	KindConnectionRefused ErrorKind = "CONNECTION_REFUSED"
	KindTimeout           ErrorKind = "TIMEOUT_ERROR"
	KindServer            ErrorKind = "SERVER_ERROR"
	KindAuth              ErrorKind = "AUTH_ERROR"
	KindPermission        ErrorKind = "PERMISSION_ERROR"
	KindValidation        ErrorKind = "VALIDATION_ERROR"
	KindPayment           ErrorKind = "PAYMENT_ERROR"
	KindConfig            ErrorKind = "CONFIG_ERROR"
	KindCancelled         ErrorKind = "CANCELLED"
	KindUnknown           ErrorKind = "UNKNOWN_ERROR"
)

// Connectivity reports whether the kind describes a transport-level failure,
// the category for which the UI shows connection help instead of a generic
// retry prompt.
func (k ErrorKind) Connectivity() bool {
	switch k {
	case KindNetwork, KindDNS, KindConnectionRefused, KindTimeout:
		return true
	}
	return false
}

// ClassifiedError is a gateway failure mapped into the taxonomy. The original
// error is retained for diagnostics via Unwrap.
type ClassifiedError struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	Data       json.RawMessage
	Err        error
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the original error
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// NewClassifiedError creates a classified error of the given kind
func NewClassifiedError(kind ErrorKind, message string, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Message: message, Err: err}
}

// AsClassified extracts a ClassifiedError from err, falling back to
// KindUnknown so callers can always branch on a kind.
func AsClassified(err error) *ClassifiedError {
	var cerr *ClassifiedError
	if errors.As(err, &cerr) {
		return cerr
	}
	msg := "unexpected error"
	if err != nil {
		msg = err.Error()
	}
	return &ClassifiedError{Kind: KindUnknown, Message: msg, Err: err}
}
