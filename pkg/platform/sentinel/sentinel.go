package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, resolvers and caches return
// these (optionally wrapped) so callers can pick a fallback path or an HTTP
// status without inspecting messages.
//
//   - ErrNotFound: key or record does not exist
//   - ErrInvalidInput: caller supplied a value that can never succeed
//   - ErrCorrupt: persisted data exists but cannot be decoded
//   - ErrUnavailable: backing service or resource temporarily unavailable
//   - ErrMisconfigured: a component was wired incorrectly; not a runtime condition
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrCorrupt       = errors.New("corrupt data")
	ErrUnavailable   = errors.New("unavailable")
	ErrMisconfigured = errors.New("misconfigured")
)
