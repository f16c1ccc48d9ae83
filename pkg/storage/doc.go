// Package storage persists session leases in a single bbolt file, one
// key per function name in the "sessions" bucket.
//
// ExtendOrCreate is the only write path that matters: it runs inside a
// single bbolt transaction, reads the existing deadline if any, and
// writes back whichever of the existing and candidate deadlines is
// later. That keeps lease extension monotonic even when two requests
// for the same function race to extend it at once.
//
// Stored values are a small fixed-width envelope (see sessionRecordLen
// in boltdb.go), not JSON — a session is an 8-byte deadline, not a
// nested document, and the fixed width plus version byte lets an
// incompatible format be rejected rather than misparsed.
package storage
