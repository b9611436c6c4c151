// Package lifecycle implements the dual state machine at the core of the
// platform: one system-wide lifecycle and one lifecycle per managed
// application. Controllers validate transitions, persist provisional
// statuses, and dispatch execution to the external runner.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/IntrovertedFL/runtipi/pkg/telemetry"
)

// ErrorKind classifies a lifecycle error for callers that map outcomes to
// user-facing results or retry decisions.
type ErrorKind string

const (
	// KindInvalidTransition indicates the requested action is not legal
	// from the application's current status.
	KindInvalidTransition ErrorKind = "invalid_transition"

	// KindOperationInProgress indicates a system operation was requested
	// while a previous one has not settled.
	KindOperationInProgress ErrorKind = "operation_in_progress"

	// KindEnvironmentRestricted indicates the operation is denied by policy
	// in the current environment.
	KindEnvironmentRestricted ErrorKind = "environment_restricted"

	// KindVersionUnavailable indicates no target version could be resolved.
	KindVersionUnavailable ErrorKind = "version_unavailable"

	// KindAlreadyUpToDate indicates the current version equals the target.
	KindAlreadyUpToDate ErrorKind = "already_up_to_date"

	// KindDowngradeRejected indicates the target version is lower than the
	// current one.
	KindDowngradeRejected ErrorKind = "downgrade_rejected"

	// KindMajorVersionMismatch indicates the target crosses a major version
	// boundary, which automated updates refuse.
	KindMajorVersionMismatch ErrorKind = "major_version_mismatch"

	// KindNotFound indicates the referenced application has no record.
	KindNotFound ErrorKind = "not_found"

	// KindUpstreamUnavailable indicates the release endpoint could not be
	// reached or understood.
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
)

// Error represents a classified lifecycle error with transition context.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// App is the application ID involved, if applicable.
	App string `json:"app,omitempty"`

	// Action is the lifecycle action being attempted.
	Action string `json:"action,omitempty"`

	// Current is the status the record held when the action was rejected.
	Current string `json:"current,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.App != "" && e.Action != "" {
		return fmt.Sprintf("[%s] %s (app=%s, action=%s)%s",
			e.Kind, e.Message, e.App, e.Action, e.unwrapSuffix())
	}
	if e.Action != "" {
		return fmt.Sprintf("[%s] %s (action=%s)%s", e.Kind, e.Message, e.Action, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Kind, e.Message, e.unwrapSuffix())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is. Two lifecycle errors
// match when their kinds match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Retryable returns true if the same request may succeed later without any
// caller-side change: after settlement for transition conflicts, after the
// upstream recovers for lookup failures.
func (e *Error) Retryable() bool {
	return e.Kind == KindInvalidTransition || e.Kind == KindOperationInProgress ||
		e.Kind == KindUpstreamUnavailable
}

// NewInvalidTransition creates an error for an action rejected by the
// transition table.
func NewInvalidTransition(app string, action Action, current AppStatus) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("cannot %s from status %q", action, current),
		App:     app,
		Action:  string(action),
		Current: string(current),
	}
}

// NewOperationInProgress creates an error for a system action rejected
// because a prior operation has not settled.
func NewOperationInProgress(action string, current SystemStatus) *Error {
	return &Error{
		Kind:    KindOperationInProgress,
		Message: fmt.Sprintf("system is %s, refusing %s until it settles", current, action),
		Action:  action,
		Current: string(current),
	}
}

// NewEnvironmentRestricted creates an error for a policy denial.
func NewEnvironmentRestricted(action, reason string) *Error {
	return &Error{
		Kind:    KindEnvironmentRestricted,
		Message: reason,
		Action:  action,
	}
}

// NewVersionUnavailable creates an error for an unresolvable target version.
func NewVersionUnavailable(message string) *Error {
	return &Error{Kind: KindVersionUnavailable, Message: message, Action: "update"}
}

// NewAlreadyUpToDate creates an error for a no-op update request.
func NewAlreadyUpToDate(current string) *Error {
	return &Error{
		Kind:    KindAlreadyUpToDate,
		Message: fmt.Sprintf("already running latest version %s", current),
		Action:  "update",
		Current: current,
	}
}

// NewDowngradeRejected creates an error for a target version below current.
func NewDowngradeRejected(current, target string) *Error {
	return &Error{
		Kind:    KindDowngradeRejected,
		Message: fmt.Sprintf("target version %s is lower than current %s", target, current),
		Action:  "update",
		Current: current,
	}
}

// NewMajorVersionMismatch creates an error for an update crossing a major
// version boundary.
func NewMajorVersionMismatch(current, target string) *Error {
	return &Error{
		Kind:    KindMajorVersionMismatch,
		Message: fmt.Sprintf("target version %s crosses a major boundary from %s, update manually", target, current),
		Action:  "update",
		Current: current,
	}
}

// NewNotFound creates an error for an unknown application ID.
func NewNotFound(app string, err error) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: "app not found",
		App:     app,
		Err:     err,
	}
}

// NewUpstreamUnavailable creates an error for a failed release lookup.
func NewUpstreamUnavailable(err error) *Error {
	return &Error{
		Kind:    KindUpstreamUnavailable,
		Message: "release endpoint unavailable",
		Err:     err,
	}
}

// IsInvalidTransition returns true if the error is an invalid transition.
func IsInvalidTransition(err error) bool {
	return kindOf(err) == KindInvalidTransition
}

// IsOperationInProgress returns true if the error is a busy-system rejection.
func IsOperationInProgress(err error) bool {
	return kindOf(err) == KindOperationInProgress
}

// IsEnvironmentRestricted returns true if the error is a policy denial.
func IsEnvironmentRestricted(err error) bool {
	return kindOf(err) == KindEnvironmentRestricted
}

// IsNotFound returns true if the error refers to an unknown application.
func IsNotFound(err error) bool {
	return kindOf(err) == KindNotFound
}

// IsUpstreamUnavailable returns true if the error is a release lookup failure.
func IsUpstreamUnavailable(err error) bool {
	return kindOf(err) == KindUpstreamUnavailable
}

func kindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// recordErrorKind feeds the error-kind counter for classified rejections.
// Unclassified errors and nil pass through silently.
func recordErrorKind(ctx context.Context, err error) {
	telemetry.RecordErrorKind(ctx, string(kindOf(err)))
}
