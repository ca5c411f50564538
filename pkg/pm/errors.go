package pm

import "errors"

// Sentinel errors for operation-level failure conditions.
var (
	// ErrNoAdapter is returned when directory detection finds no format
	// adapter whose CanHandle answers true.
	ErrNoAdapter = errors.New("no format adapter matches directory")

	// ErrUnsupportedFormat is returned for an explicit format request naming
	// an unregistered format. It is distinct from ErrNoAdapter: detection was
	// bypassed, the name itself is unknown.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrFetchFailed marks a failed artifact fetch batch. Fetch is
	// all-or-nothing per invocation: a partially downloaded set is never
	// installed.
	ErrFetchFailed = errors.New("artifact fetch failed")

	// ErrLockWrite marks a failed lock snapshot write. It is surfaced to the
	// caller but does not undo completed installs.
	ErrLockWrite = errors.New("lock write failed")
)
