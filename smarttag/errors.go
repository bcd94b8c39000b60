package smarttag

import "errors"

// The client surfaces exactly three error kinds. Every error returned by a
// Client operation wraps one of these sentinels, so callers can classify
// failures with errors.Is and nothing else.
var (
	// ErrAuth means credentials are invalid or the session has expired and a
	// fresh Login is required.
	ErrAuth = errors.New("smarttag: authentication error")

	// ErrNetwork means the request timed out or failed at the transport
	// layer. These are transient; the caller decides when to try again.
	ErrNetwork = errors.New("smarttag: network error")

	// ErrAPI is the catch-all for anything unclassified, carrying the
	// underlying cause for diagnostics.
	ErrAPI = errors.New("smarttag: api error")
)
