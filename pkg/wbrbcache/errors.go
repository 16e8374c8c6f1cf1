package wbrbcache

import (
	"errors"
	"fmt"
)

// Kind enumerates the cache's distinct error concepts (spec §7). Each Kind
// has a matching sentinel below so callers can use errors.Is(err, ErrXxx).
type Kind int

const (
	KindCacheFull Kind = iota
	KindCacheElementNotYetLoaded
	KindCacheElementFailedLoading
	KindCacheElementFailedResync
	KindCacheElementFailedWrite
	KindCacheElementHasTooManyUpdates
	KindIllegalCacheState
	KindIllegalExternalState
)

func (k Kind) String() string {
	switch k {
	case KindCacheFull:
		return "CacheFull"
	case KindCacheElementNotYetLoaded:
		return "CacheElementNotYetLoaded"
	case KindCacheElementFailedLoading:
		return "CacheElementFailedLoading"
	case KindCacheElementFailedResync:
		return "CacheElementFailedResync"
	case KindCacheElementFailedWrite:
		return "CacheElementFailedWrite"
	case KindCacheElementHasTooManyUpdates:
		return "CacheElementHasTooManyUpdates"
	case KindIllegalCacheState:
		return "IllegalCacheState"
	case KindIllegalExternalState:
		return "IllegalExternalState"
	default:
		return "UnknownKind"
	}
}

// Error is the cache's uniform error type. It wraps an optional underlying
// cause so embedders can unwrap through to storage/adapter errors.
type Error struct {
	Kind  Kind
	Key   any
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("wbrbcache: %s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("wbrbcache: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, ErrCacheFull) style matching against the
// package-level sentinels below, comparing by Kind rather than identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, key any, msg string, cause error) *Error {
	return &Error{Kind: kind, Key: key, Msg: msg, Cause: cause}
}

// Sentinels for errors.Is comparison; Key/Msg/Cause are empty on these and
// must not be inspected — compare only by kind, or use errors.As to pull the
// full *Error out of a returned error chain.
var (
	ErrCacheFull                  = &Error{Kind: KindCacheFull}
	ErrCacheElementNotYetLoaded   = &Error{Kind: KindCacheElementNotYetLoaded}
	ErrCacheElementFailedLoading  = &Error{Kind: KindCacheElementFailedLoading}
	ErrCacheElementFailedResync   = &Error{Kind: KindCacheElementFailedResync}
	ErrCacheElementFailedWrite    = &Error{Kind: KindCacheElementFailedWrite}
	ErrCacheElementHasTooManyUpdates = &Error{Kind: KindCacheElementHasTooManyUpdates}
	ErrIllegalCacheState          = &Error{Kind: KindIllegalCacheState}
	ErrIllegalExternalState       = &Error{Kind: KindIllegalExternalState}
)

// As is a small helper wrapping errors.As for the common case of pulling a
// *Error out of an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
