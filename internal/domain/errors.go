package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable.
// Nothing in the core retries on its own; this only informs the caller's decision.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// Kind classifies failures so the presentation layer can render a specific message.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotConnected
	KindNoSigningAgent
	KindNoIdentities
	KindUnknownIdentity
	KindSubmissionFailed
	KindRejected
	KindTimeout
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindNotConnected:
		return "NotConnected"
	case KindNoSigningAgent:
		return "NoSigningAgent"
	case KindNoIdentities:
		return "NoIdentities"
	case KindUnknownIdentity:
		return "UnknownIdentity"
	case KindSubmissionFailed:
		return "SubmissionFailed"
	case KindRejected:
		return "Rejected"
	case KindTimeout:
		return "Timeout"
	case KindDecode:
		return "Decode"
	default:
		return "Unknown"
	}
}

// Error is the typed failure returned by every core operation.
type Error struct {
	Kind   Kind
	Reason string // Human-readable detail
	Err    error  // Underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotConnected) works
// regardless of reason.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// IsRetriable reports whether an explicit caller retry can make sense.
func (e *Error) IsRetriable() bool {
	switch e.Kind {
	case KindSubmissionFailed, KindTimeout:
		return true
	default:
		return false
	}
}

// NewError builds a typed error wrapping cause.
func NewError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the failure kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

var (
	// ErrNotConnected is returned when an operation needs a ready connection (and, for
	// submissions, a selected identity) that is not there.
	ErrNotConnected = &Error{Kind: KindNotConnected, Reason: "not connected"}

	// ErrNoSigningAgent is returned when no signing agent is available in the environment.
	ErrNoSigningAgent = &Error{Kind: KindNoSigningAgent, Reason: "no signing agent found"}

	// ErrNoIdentities is returned when the agent is present but offers zero identities.
	ErrNoIdentities = &Error{Kind: KindNoIdentities, Reason: "no accounts found"}

	// ErrUnknownIdentity is returned when selecting an identity outside the discovered set.
	ErrUnknownIdentity = &Error{Kind: KindUnknownIdentity, Reason: "identity not discovered"}

	// ErrSubmissionFailed matches every signing/network failure before acceptance.
	ErrSubmissionFailed = &Error{Kind: KindSubmissionFailed}

	// ErrRejected matches ledger-side rejection after acceptance.
	ErrRejected = &Error{Kind: KindRejected}

	// ErrTimeout matches connect or submission timeouts.
	ErrTimeout = &Error{Kind: KindTimeout, Reason: "timed out"}

	// ErrDecode matches malformed ledger responses.
	ErrDecode = &Error{Kind: KindDecode}
)

// NetworkError represents a transport-level error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "dial", "read", "call")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ErrConnectionClosed is returned by the transport once the socket is gone.
var ErrConnectionClosed = errors.New("connection closed")
