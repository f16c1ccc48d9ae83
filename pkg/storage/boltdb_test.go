package storage

import (
	"testing"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestExtendOrCreate_CreatesOnFirstCall(t *testing.T) {
	store := openTestStore(t)

	effective, err := store.ExtendOrCreate("echo", 1000)
	if err != nil {
		t.Fatalf("ExtendOrCreate: %v", err)
	}
	if effective != 1000 {
		t.Errorf("effective = %d, want 1000", effective)
	}

	session, err := store.Get("echo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session == nil {
		t.Fatal("Get returned nil session")
	}
	if session.EndsAtNs != 1000 {
		t.Errorf("EndsAtNs = %d, want 1000", session.EndsAtNs)
	}
}

func TestExtendOrCreate_NeverRegresses(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.ExtendOrCreate("echo", 5000); err != nil {
		t.Fatalf("ExtendOrCreate: %v", err)
	}

	// A shorter candidate must not move the deadline backwards.
	effective, err := store.ExtendOrCreate("echo", 1000)
	if err != nil {
		t.Fatalf("ExtendOrCreate: %v", err)
	}
	if effective != 5000 {
		t.Errorf("effective = %d, want 5000 (monotonic floor)", effective)
	}

	// A later candidate does move it forward.
	effective, err = store.ExtendOrCreate("echo", 9000)
	if err != nil {
		t.Fatalf("ExtendOrCreate: %v", err)
	}
	if effective != 9000 {
		t.Errorf("effective = %d, want 9000", effective)
	}
}

func TestGet_AbsentFunctionReturnsNil(t *testing.T) {
	store := openTestStore(t)

	session, err := store.Get("missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session != nil {
		t.Errorf("Get(missing) = %+v, want nil", session)
	}
}

func TestDelete_IsIdempotent(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.ExtendOrCreate("echo", 1000); err != nil {
		t.Fatalf("ExtendOrCreate: %v", err)
	}
	if err := store.Delete("echo"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete("echo"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}

	session, err := store.Get("echo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session != nil {
		t.Errorf("Get after delete = %+v, want nil", session)
	}
}

func TestIter_ReturnsAllSessions(t *testing.T) {
	store := openTestStore(t)

	want := map[string]int64{"echo": 1000, "thumbnailer": 2000, "webhook": 3000}
	for name, endsAt := range want {
		if _, err := store.ExtendOrCreate(name, endsAt); err != nil {
			t.Fatalf("ExtendOrCreate(%s): %v", name, err)
		}
	}

	sessions, err := store.Iter()
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}
	if len(sessions) != len(want) {
		t.Fatalf("Iter returned %d sessions, want %d", len(sessions), len(want))
	}
	for _, s := range sessions {
		if want[s.FunctionName] != s.EndsAtNs {
			t.Errorf("session %s: EndsAtNs = %d, want %d", s.FunctionName, s.EndsAtNs, want[s.FunctionName])
		}
	}
}

func TestEncodeDecodeSession_RoundTrips(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 1 << 40, -(1 << 40)} {
		data := encodeSession(v)
		got, err := decodeSession(data)
		if err != nil {
			t.Fatalf("decodeSession(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d -> %d", v, got)
		}
	}
}

func TestDecodeSession_RejectsUnknownVersion(t *testing.T) {
	data := encodeSession(42)
	data[0] = 0xff

	if _, err := decodeSession(data); err == nil {
		t.Error("decodeSession accepted an unknown version byte")
	}
}
