package sandbox

import "errors"

var (
	// ErrNotFound is returned when an owner or allowance lookup misses.
	ErrNotFound = errors.New("sandbox: not found")
	// ErrAlreadyAllowed is returned by Allow when the requester is already
	// allowed to a different owner; callers should use ForceAllow instead.
	ErrAlreadyAllowed = errors.New("sandbox: already allowed to a different owner")
	// ErrAlreadyOwner is returned by Checkout when the caller's TaskID is
	// already registered as an owner.
	ErrAlreadyOwner = errors.New("sandbox: task is already an owner")
	// ErrAlreadyShared is returned by SetShared when the designated owner is
	// already the registry's shared owner.
	ErrAlreadyShared = errors.New("sandbox: owner is already the shared owner")
	// ErrNotOwner is returned by SetShared when the given TaskID is not a
	// currently registered owner.
	ErrNotOwner = errors.New("sandbox: task is not a current owner")
	// ErrTimeout is returned by StartOwner when the helper goroutine does
	// not become ready within the bounded wait.
	ErrTimeout = errors.New("sandbox: owner start timed out")
)
