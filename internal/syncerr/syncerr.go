// Package syncerr defines the error taxonomy shared by the synchronization
// engines, the HTTP orchestrator, and the CLI. Errors carry a kind; kinds
// survive wrapping so callers branch with KindOf rather than string
// matching.
package syncerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for recovery decisions and API status mapping.
type Kind string

const (
	// KindUnauthorized indicates missing or insufficient credentials.
	KindUnauthorized Kind = "unauthorized"
	// KindNotFound indicates a missing database, branch, or remote.
	KindNotFound Kind = "not_found"
	// KindPushRequiresBranch indicates the push target is not a branch.
	KindPushRequiresBranch Kind = "push_requires_branch"
	// KindPushNonRemote indicates a push against a non-remote repository.
	KindPushNonRemote Kind = "push_attempted_on_non_remote"
	// KindPushNoRepositoryHead indicates no remote tracking head is
	// recorded; the caller must fetch first.
	KindPushNoRepositoryHead Kind = "push_has_no_repository_head"
	// KindRemoteNotEmpty indicates a push from an empty local branch to a
	// non-empty remote branch.
	KindRemoteNotEmpty Kind = "remote_not_empty_on_local_empty"
	// KindRemoteDiverged indicates the remote has commits the local branch
	// lacks; the caller should fetch, rebase, push.
	KindRemoteDiverged Kind = "remote_diverged"
	// KindNoCommonHistory indicates two non-empty branches share no
	// ancestor.
	KindNoCommonHistory Kind = "no_common_history"
	// KindNetwork indicates a transport failure; retryable by the caller.
	KindNetwork Kind = "network_error"
	// KindPackFailed indicates a received pack could not be admitted.
	KindPackFailed Kind = "remote_pack_failed"
	// KindPackUnexpected indicates an unclassified failure while handling a
	// remote pack.
	KindPackUnexpected Kind = "remote_pack_unexpected_failure"
	// KindChecksumMismatch indicates layer bytes did not hash to their id;
	// fatal for the transfer.
	KindChecksumMismatch Kind = "checksum_mismatch"
	// KindRemoteUnpack indicates the remote rejected a transmitted payload.
	KindRemoteUnpack Kind = "remote_unpack_failed"
	// KindDatabaseExists indicates a clone target is already taken.
	KindDatabaseExists Kind = "database_already_exists"
	// KindInternal indicates a violated post-condition or other defect.
	KindInternal Kind = "internal_error"
)

// Error is a kind-carrying error. Diverged errors carry the remote's unique
// commit path; pack failures carry a reason.
type Error struct {
	Kind    Kind
	Message string
	Path    []string
	Reason  string
	Err     error
}

// Error implements error.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Diverged constructs a remote-diverged error carrying the remote's unique
// commit path.
func Diverged(path []string) *Error {
	return &Error{
		Kind:    KindRemoteDiverged,
		Message: fmt.Sprintf("remote has %d commit(s) not present locally", len(path)),
		Path:    path,
	}
}

// PackFailed constructs a pack admission failure with a reason tag.
func PackFailed(reason string, err error) *Error {
	return &Error{
		Kind:    KindPackFailed,
		Message: fmt.Sprintf("remote pack failed: %s", reason),
		Reason:  reason,
		Err:     err,
	}
}

// Internal marks a violated post-condition. Used where failure is impossible
// by construction; the diagnostic context rides along.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind of an error, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// AsError extracts the *Error from a chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// HTTPStatus maps a kind to the status code the orchestrator answers with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindPushRequiresBranch, KindPushNonRemote, KindPushNoRepositoryHead, KindRemoteNotEmpty, KindDatabaseExists:
		return http.StatusBadRequest
	case KindRemoteDiverged, KindNoCommonHistory:
		return http.StatusConflict
	case KindNetwork, KindPackFailed, KindPackUnexpected, KindChecksumMismatch, KindRemoteUnpack:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
