// Package messaging implements the conversation directory, message store,
// presence and typing trackers and per-session view state.
package messaging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"campus-messaging/internal/media"
	"campus-messaging/internal/repositories"
)

// Kind classifies a messaging failure.
type Kind string

const (
	KindUnauthenticated      Kind = "unauthenticated"
	KindValidation           Kind = "validation"
	KindRemote               Kind = "remote"
	KindConflict             Kind = "conflict"
	KindConflictOrPermission Kind = "conflict_or_permission"
	KindNotFound             Kind = "not_found"
	KindPartialFailure       Kind = "partial_failure"
)

// Error is returned by every messaging operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrUnauthenticated is returned before any query when no user is signed in.
var ErrUnauthenticated = &Error{Kind: KindUnauthenticated, Msg: "not authenticated"}

// KindOf returns the kind of err, or KindRemote for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRemote
}

func validationError(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

func fileError(op string, err error) error {
	var verr *media.ValidationError
	if errors.As(err, &verr) {
		return &Error{Kind: KindValidation, Op: op, Msg: verr.Error(), Err: err}
	}
	return remoteError(op, err)
}

// remoteError wraps a backend failure, carrying the backend's own message.
func remoteError(op string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrConversationNotFound),
		errors.Is(err, repositories.ErrParticipantNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrProfileNotFound):
		return &Error{Kind: KindNotFound, Op: op, Err: err}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// A malformed id names no row.
		if pqErr.Code == "22P02" {
			return &Error{Kind: KindNotFound, Op: op, Msg: pqErr.Message, Err: err}
		}
		return &Error{Kind: KindRemote, Op: op, Msg: pqErr.Message, Err: err}
	}
	return &Error{Kind: KindRemote, Op: op, Err: err}
}

// constraintError maps unique violations to Conflict and access-rule or other
// integrity rejections to ConflictOrPermission. Anything else is Remote.
func constraintError(op string, err error, uniqueKind Kind) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return remoteError(op, err)
	}
	switch {
	case pqErr.Code == "23505":
		return &Error{Kind: uniqueKind, Op: op, Msg: pqErr.Message, Err: err}
	case pqErr.Code == "42501", strings.HasPrefix(string(pqErr.Code), "23"):
		return &Error{Kind: KindConflictOrPermission, Op: op, Msg: pqErr.Message, Err: err}
	}
	return remoteError(op, err)
}

// partialFailure reports a multi-step write that stopped after completed of
// total steps. The rows that persisted are not rolled back.
func partialFailure(op string, completed, total int, err error) error {
	return &Error{
		Kind: KindPartialFailure,
		Op:   op,
		Msg:  fmt.Sprintf("%v (completed %d of %d)", err, completed, total),
		Err:  err,
	}
}
