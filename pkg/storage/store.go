package storage

import "github.com/cuemby/coupe-sentinel/pkg/types"

// SessionStore is the durable lease table behind the FunctionCoordinator.
// Every method is safe for concurrent use; extend_or_create additionally
// guarantees monotonicity (I2) within a single call even under concurrent
// callers racing on the same function name.
type SessionStore interface {
	// ExtendOrCreate records that functionName should stay warm until at
	// least candidateEndsAtNs, never regressing an existing later
	// deadline, and returns the lease's effective (post-transaction)
	// deadline.
	ExtendOrCreate(functionName string, candidateEndsAtNs int64) (effectiveEndsAtNs int64, err error)

	// Get returns the current session for functionName, or nil if none
	// exists (never created, or already deleted).
	Get(functionName string) (*types.Session, error)

	// Delete removes functionName's session unconditionally. Deleting a
	// session that does not exist is not an error.
	Delete(functionName string) error

	// Iter returns every session currently stored, for the reaper's sweep.
	Iter() ([]*types.Session, error)

	// Close releases the underlying database handle.
	Close() error
}
