// Package fault defines the error taxonomy shared by the profile engine,
// the device inventory and the API layer.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers that must decide between
// "bad input" and "system failed to apply".
type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	Conflict
	Reserved
	AlreadyActive
	AlreadyInactive
	BackendUnavailable
	Compensation
)

var kindNames = map[Kind]string{
	Internal:           "internal",
	Validation:         "validation",
	NotFound:           "not_found",
	Conflict:           "conflict",
	Reserved:           "reserved",
	AlreadyActive:      "already_active",
	AlreadyInactive:    "already_inactive",
	BackendUnavailable: "backend_unavailable",
	Compensation:       "compensation_failure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Noop reports whether the kind describes a request that was already satisfied.
func (k Kind) Noop() bool {
	return k == AlreadyActive || k == AlreadyInactive
}

// Error is a classified error carrying the failed operation and the profile or
// device identity it was applied to.
type Error struct {
	Kind     Kind
	Op       string
	Identity string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Identity != "" {
		b.WriteString(" ")
		b.WriteString(e.Identity)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error without a cause.
func New(kind Kind, op, identity, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Identity: identity, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op, identity string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Identity: identity, Err: err}
}

// Wrapf classifies err with an additional step description.
func Wrapf(kind Kind, op, identity string, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Identity: identity, Msg: fmt.Sprintf(format, args...), Err: err}
}

// CompensationFailure reports that a replace failed and restoring the
// previous profile failed as well. Both failures are kept.
type CompensationFailure struct {
	Identity   string
	Cause      error
	RestoreErr error
}

func (e *CompensationFailure) Error() string {
	return fmt.Sprintf("replace %s: %v; unable to restore original config: %v", e.Identity, e.Cause, e.RestoreErr)
}

func (e *CompensationFailure) Unwrap() []error { return []error{e.Cause, e.RestoreErr} }

// KindOf returns the classification of err, or Internal for unclassified errors.
// A CompensationFailure is always reported as Compensation even though it wraps
// classified causes.
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}
	var cf *CompensationFailure
	if errors.As(err, &cf) {
		return Compensation
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var k interface{ FaultKind() Kind }
	if errors.As(err, &k) {
		return k.FaultKind()
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
