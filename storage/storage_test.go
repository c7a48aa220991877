package storage

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
)

func TestOffsetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.LoadOffset(); ok {
		t.Fatal("expected no offset before first save")
	}
	if err := s.SaveOffset(42); err != nil {
		t.Fatal(err)
	}
	off, ok := s.LoadOffset()
	if !ok || off != 42 {
		t.Fatalf("offset = %d, %v; want 42, true", off, ok)
	}
}

func TestVIPUsersRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if got := s.LoadVIPUsers(); len(got) != 0 {
		t.Fatalf("expected empty allowlist, got %v", got)
	}
	want := []int64{7, 11, 23}
	if err := s.SaveVIPUsers(want); err != nil {
		t.Fatal(err)
	}
	if got := s.LoadVIPUsers(); !slices.Equal(got, want) {
		t.Fatalf("allowlist = %v, want %v", got, want)
	}
}

func TestCorruptDocumentsYieldEmptyState(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"vip_users.json", "last_offset.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.LoadVIPUsers(); len(got) != 0 {
		t.Fatalf("corrupt vip doc should read as empty, got %v", got)
	}
	if _, ok := s.LoadOffset(); ok {
		t.Fatal("corrupt offset doc should read as absent")
	}
}

func TestVIPSetAddPersistsAndIsIdempotent(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	set := NewVIPSet(s)
	if err := set.Add(99); err != nil {
		t.Fatal(err)
	}
	if !set.Contains(99) {
		t.Fatal("member missing after Add")
	}
	// Re-adding must not grow the set or the document.
	if err := set.Add(99); err != nil {
		t.Fatal(err)
	}
	if set.Len() != 1 {
		t.Fatalf("len = %d, want 1", set.Len())
	}
	if got := s.LoadVIPUsers(); !slices.Equal(got, []int64{99}) {
		t.Fatalf("persisted = %v, want [99]", got)
	}
	// A fresh set sees the persisted member.
	if !NewVIPSet(s).Contains(99) {
		t.Fatal("reloaded set lost the member")
	}
}

func TestVIPSetConcurrentEnrollment(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	set := NewVIPSet(s)
	const n = 32
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := set.Add(id); err != nil {
				t.Error(err)
			}
		}(int64(i))
	}
	wg.Wait()
	if set.Len() != n {
		t.Fatalf("len = %d, want %d", set.Len(), n)
	}
	if got := s.LoadVIPUsers(); len(got) != n {
		t.Fatalf("persisted %d members, want %d", len(got), n)
	}
}
