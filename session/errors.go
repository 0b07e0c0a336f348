package session

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind tags one of the error categories from the session's error handling
// design. It is deliberately not a Go type per kind (the source speaks of
// "error kinds, not types") so callers discriminate with errors.Is against
// the exported sentinels below rather than a type switch.
type Kind int

const (
	KindUnknown Kind = iota
	// KindUnmapped: operation targets an object whose class has no
	// registered mapping.
	KindUnmapped
	// KindDetached: save/remove/refresh encountered a Detached link.
	KindDetached
	// KindDuplicateLink: two entities with the same identity linked in one
	// session. Always a programmer error.
	KindDuplicateLink
	// KindPersister: propagated from a persister call; aborts the current
	// operation.
	KindPersister
	// KindBatch: propagated from batch execution; aborts flush and poisons
	// the session.
	KindBatch
	// KindReferenceResolution: the target of a Reference could not be
	// loaded.
	KindReferenceResolution
	// KindPoisoned: the session suffered a prior flush failure and refuses
	// further operations.
	KindPoisoned
)

func (k Kind) String() string {
	switch k {
	case KindUnmapped:
		return "unmapped"
	case KindDetached:
		return "detached"
	case KindDuplicateLink:
		return "duplicate_link"
	case KindPersister:
		return "persister"
	case KindBatch:
		return "batch"
	case KindReferenceResolution:
		return "reference_resolution"
	case KindPoisoned:
		return "poisoned"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every session operation that
// fails. It carries the offending entity's identity when one is known, the
// same way types.ServiceError in this codebase's HTTP layer carries a
// status code alongside a wrapped cause.
type Error struct {
	Kind     Kind
	Identity any
	Cause    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Identity != nil {
		msg = fmt.Sprintf("%s: identity=%v", msg, e.Identity)
	}
	if e.Cause != nil {
		return errors.Wrap(e.Cause, msg).Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrDetached) work against a *Error without
// requiring Cause to also be ErrDetached: it matches on Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(kind Kind, identity any, cause error) *Error {
	return &Error{Kind: kind, Identity: identity, Cause: cause}
}

// Sentinels usable with errors.Is(err, session.ErrDetached) and friends;
// only Kind is compared, so the Cause/Identity on these zero values are
// irrelevant.
var (
	ErrUnmapped            = &Error{Kind: KindUnmapped}
	ErrDetached            = &Error{Kind: KindDetached}
	ErrDuplicateLink       = &Error{Kind: KindDuplicateLink}
	ErrPersister           = &Error{Kind: KindPersister}
	ErrBatch               = &Error{Kind: KindBatch}
	ErrReferenceResolution = &Error{Kind: KindReferenceResolution}
	ErrPoisoned            = &Error{Kind: KindPoisoned}
)
