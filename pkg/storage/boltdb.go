package storage

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/cuemby/coupe-sentinel/pkg/errs"
	"github.com/cuemby/coupe-sentinel/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var bucketSessions = []byte("sessions")

// sessionEncodingVersion is the first byte of every stored value. A
// decoder that sees an unknown version treats the record as corrupt
// rather than silently misinterpreting its byte layout (P6).
const sessionEncodingVersion byte = 1

// sessionRecordLen is the fixed length of an encoded session: one
// version byte plus a 16-byte big-endian two's-complement envelope for
// EndsAtNs (8 reserved high bytes + 8 value bytes), wider than the int64
// this build actually stores so a future move to a true 128-bit deadline
// doesn't require a format bump.
const sessionRecordLen = 1 + 16

// BoltStore implements SessionStore on a single bbolt file, one key per
// function name in the "sessions" bucket.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a coupe-sentinel.db file under
// dataDir and ensures the sessions bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "coupe-sentinel.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, errs.Wrap(errs.StoreError, "open session database", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errs.Wrap(errs.StoreError, "create sessions bucket", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// encodeSession writes the fixed-width envelope for endsAtNs.
func encodeSession(endsAtNs int64) []byte {
	buf := make([]byte, sessionRecordLen)
	buf[0] = sessionEncodingVersion
	// High 8 bytes reserved (zero for non-negative values); low 8 bytes
	// hold the actual int64 value, sign-extended into the reserved
	// bytes so a future signed-128-bit reader sees the correct sign.
	if endsAtNs < 0 {
		for i := 1; i < 9; i++ {
			buf[i] = 0xff
		}
	}
	binary.BigEndian.PutUint64(buf[9:], uint64(endsAtNs))
	return buf
}

// decodeSession parses the fixed-width envelope back into nanoseconds.
func decodeSession(data []byte) (int64, error) {
	if len(data) != sessionRecordLen {
		return 0, fmt.Errorf("malformed session record: want %d bytes, got %d", sessionRecordLen, len(data))
	}
	if data[0] != sessionEncodingVersion {
		return 0, fmt.Errorf("unsupported session record version %d", data[0])
	}
	return int64(binary.BigEndian.Uint64(data[9:])), nil
}

// ExtendOrCreate implements the monotonic lease-extension transaction
// (I2): within one bbolt write transaction, read the existing deadline
// (if any), take the max against candidateEndsAtNs, write it back, and
// return the winner. No other writer can observe a half-applied state.
func (s *BoltStore) ExtendOrCreate(functionName string, candidateEndsAtNs int64) (int64, error) {
	var effective int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		key := []byte(functionName)

		effective = candidateEndsAtNs
		if existing := b.Get(key); existing != nil {
			current, err := decodeSession(existing)
			if err != nil {
				return err
			}
			if current > effective {
				effective = current
			}
		}

		return b.Put(key, encodeSession(effective))
	})
	if err != nil {
		return 0, errs.Wrap(errs.StoreError, "extend or create session", err)
	}
	return effective, nil
}

// Get returns the current session for functionName, or nil if absent.
func (s *BoltStore) Get(functionName string) (*types.Session, error) {
	var session *types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data := b.Get([]byte(functionName))
		if data == nil {
			return nil
		}
		endsAtNs, err := decodeSession(data)
		if err != nil {
			return err
		}
		session = &types.Session{FunctionName: functionName, EndsAtNs: endsAtNs}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.StoreError, "get session", err)
	}
	return session, nil
}

// Delete removes functionName's session. Absence is not an error.
func (s *BoltStore) Delete(functionName string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		return b.Delete([]byte(functionName))
	})
	if err != nil {
		return errs.Wrap(errs.StoreError, "delete session", err)
	}
	return nil
}

// Iter returns every stored session, for the reaper's sweep.
func (s *BoltStore) Iter() ([]*types.Session, error) {
	var sessions []*types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		return b.ForEach(func(k, v []byte) error {
			endsAtNs, err := decodeSession(v)
			if err != nil {
				return err
			}
			sessions = append(sessions, &types.Session{
				FunctionName: string(k),
				EndsAtNs:     endsAtNs,
			})
			return nil
		})
	})
	if err != nil {
		return nil, errs.Wrap(errs.StoreError, "iterate sessions", err)
	}
	return sessions, nil
}
