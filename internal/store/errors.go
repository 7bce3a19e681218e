package store

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateHash indicates a unique hash or token constraint rejected
	// an insert.
	ErrDuplicateHash = errors.New("store: duplicate hash")

	// ErrWriteConflict indicates a serializable transaction lost a race with
	// a concurrent writer. The write never happened; callers may retry.
	ErrWriteConflict = errors.New("store: write conflict")
)

// StorageError wraps a persistence-layer failure: the backend was
// unreachable or a database transaction aborted. It is fatal to the current
// request and is surfaced to callers as a generic failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
