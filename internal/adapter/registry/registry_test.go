package registry

import "testing"

func TestRegistry_InsertLookupRemove(t *testing.T) {
	r := New(nil)
	sid := []byte{4, 1, 2, 3}

	if r.IsOurs(7, sid) {
		t.Fatal("expected unknown session-id to be absent before insert")
	}

	r.Insert(7, sid, 42)
	if !r.IsOurs(7, sid) {
		t.Fatal("expected session-id present after insert")
	}
	if !r.IsFD(42) {
		t.Fatal("expected fd bit set after insert")
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 connection, got %d", r.Count())
	}

	r.Remove(7, sid, 42)
	if r.IsOurs(7, sid) {
		t.Fatal("expected session-id absent after remove")
	}
	if r.IsFD(42) {
		t.Fatal("expected fd bit cleared after remove")
	}
	if r.Count() != 0 {
		t.Fatalf("expected 0 connections after remove, got %d", r.Count())
	}
}

func TestRegistry_DuplicateInsertKeepsFirst(t *testing.T) {
	var logged int
	r := New(func(string, ...interface{}) { logged++ })

	sid := []byte{4, 9, 9, 9}
	r.Insert(1, sid, 10)
	r.Insert(1, sid, 11) // duplicate session-id, different fd

	if r.Count() != 1 {
		t.Fatalf("expected duplicate insert to keep exactly one entry, got %d", r.Count())
	}
	if logged != 1 {
		t.Fatalf("expected duplicate insert to be logged once, got %d", logged)
	}
}

func TestRegistry_MemcmpPrefixEquality(t *testing.T) {
	r := New(nil)
	// First byte is the key's own length; comparison is over
	// min(len_a, len_b) bytes (length byte included), so a truncated copy
	// of a registered key, sharing its leading bytes, is considered equal
	// per §9 — mirrored, not "fixed".
	long := []byte{3, 0xAA, 0xBB}
	short := long[:2]

	r.Insert(5, long, 1)
	if !r.IsOurs(5, short) {
		t.Fatal("expected prefix-equal shorter key to match, per memcmp(min-length) semantics")
	}
}
