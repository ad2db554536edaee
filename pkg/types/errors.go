package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures raised by the control plane
type ErrorKind string

const (
	KindConfig           ErrorKind = "ConfigError"
	KindStateConflict    ErrorKind = "StateConflict"
	KindSpawnFailure     ErrorKind = "SpawnFailure"
	KindNoEligibleWorker ErrorKind = "NoEligibleWorker"
	KindInternal         ErrorKind = "InternalError"
)

// Sentinels for errors.Is matching by kind
var (
	ErrConfig           = &Error{Kind: KindConfig}
	ErrStateConflict    = &Error{Kind: KindStateConflict}
	ErrSpawnFailure     = &Error{Kind: KindSpawnFailure}
	ErrNoEligibleWorker = &Error{Kind: KindNoEligibleWorker}
	ErrInternal         = &Error{Kind: KindInternal}
)

// Error is a typed control-plane failure
type Error struct {
	Kind    ErrorKind
	Op      string
	Worker  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a typed error
func NewError(kind ErrorKind, op, worker, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Worker:  worker,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError builds a typed error around cause
func WrapError(kind ErrorKind, op, worker string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Worker: worker, Err: cause}
}

// KindOf returns the kind of err, or KindInternal if it carries none
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// UnknownWorker is the ConfigError returned for names that are not registered
func UnknownWorker(op, name string) *Error {
	return NewError(KindConfig, op, name, "unknown server: %s", name)
}

// IsUnknownWorker reports whether err was raised for an unregistered name
func IsUnknownWorker(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindConfig && strings.HasPrefix(e.Message, "unknown server: ")
}
