// Package errs provides the structured error taxonomy shared by the ledger,
// orchestrator and HTTP layers.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies an error category.
type Kind string

const (
	// KindUnauthorized indicates the actor's role or ownership does not
	// permit the operation.
	KindUnauthorized Kind = "unauthorized"
	// KindNotFound indicates a referenced entity does not exist.
	KindNotFound Kind = "not_found"
	// KindInvalidInput indicates malformed caller input.
	KindInvalidInput Kind = "invalid_input"
	// KindInvalidTransition indicates the order state does not allow the
	// requested operation.
	KindInvalidTransition Kind = "invalid_transition"
	// KindInsufficientBalance indicates the actor lacks spendable points.
	KindInsufficientBalance Kind = "insufficient_balance"
	// KindAlreadyClaimed indicates a lost race, e.g. an order accepted by
	// another seller first.
	KindAlreadyClaimed Kind = "already_claimed"
	// KindLedgerCorruption indicates an internal balance invariant was
	// violated. Fatal for the operation, logged distinctly.
	KindLedgerCorruption Kind = "ledger_corruption"
	// KindStorage indicates the underlying transactional I/O failed.
	KindStorage Kind = "storage_failure"
)

// E is the error envelope returned across the orchestrator boundary.
type E struct {
	Kind    Kind
	Message string

	cause error
}

// New constructs an error of the given kind with a user-safe message.
func New(kind Kind, message string) *E {
	return &E{Kind: kind, Message: message}
}

// Newf constructs an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a kinded error. The message stays user-safe; the
// cause is only reachable through Unwrap.
func Wrap(kind Kind, message string, cause error) *E {
	return &E{Kind: kind, Message: message, cause: cause}
}

// Error implements the error interface.
func (e *E) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *E) Unwrap() error {
	return e.cause
}

// Is matches two envelopes by kind.
func (e *E) Is(target error) bool {
	var t *E
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the kind of err, or KindStorage when err carries no
// envelope: an unclassified error from below the orchestrator can only come
// from the store.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// MessageOf returns the user-safe message of err, or a generic fallback for
// unclassified errors so internals never leak to clients.
func MessageOf(err error) string {
	var e *E
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
