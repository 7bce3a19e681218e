package postgres

import (
	"errors"

	"github.com/lib/pq"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store"
)

const (
	// uniqueViolation is the PostgreSQL error code for unique constraint
	// violations.
	uniqueViolation = "23505"

	// serializationFailure is the PostgreSQL error code raised when a
	// serializable transaction loses a race with a concurrent writer. It can
	// surface on any statement or at COMMIT.
	serializationFailure = "40001"
)

// mapWriteErr converts driver errors from writes into the store taxonomy:
// unique violations become ErrDuplicateHash, serialization failures become
// ErrWriteConflict, everything else a StorageError.
func mapWriteErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return store.ErrDuplicateHash
		case serializationFailure:
			return store.ErrWriteConflict
		}
	}
	return &store.StorageError{Op: op, Err: err}
}
