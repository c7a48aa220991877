package storage

import (
	"slices"
	"sync"
)

// VIPSet is the access-control allowlist shared by every concurrent update
// handler. Membership is add-only. Add persists the full set before
// returning, and the whole read-modify-write runs under one mutex so
// simultaneous enrollments cannot lose members.
type VIPSet struct {
	mu      sync.Mutex
	store   *Store
	members map[int64]struct{}
}

// NewVIPSet loads the persisted allowlist into a live set.
func NewVIPSet(store *Store) *VIPSet {
	set := &VIPSet{store: store, members: make(map[int64]struct{})}
	for _, id := range store.LoadVIPUsers() {
		set.members[id] = struct{}{}
	}
	return set
}

// Contains reports whether chatID is enrolled.
func (v *VIPSet) Contains(chatID int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.members[chatID]
	return ok
}

// Add enrolls chatID and persists the set. Re-adding an existing member is
// a no-op and does not rewrite the document, so replayed updates leave
// state untouched. If the persist fails the insertion is rolled back to
// keep memory and disk consistent.
func (v *VIPSet) Add(chatID int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.members[chatID]; ok {
		return nil
	}
	v.members[chatID] = struct{}{}
	if err := v.store.SaveVIPUsers(v.snapshotLocked()); err != nil {
		delete(v.members, chatID)
		return err
	}
	return nil
}

// Len returns the current membership count.
func (v *VIPSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.members)
}

// snapshotLocked returns members sorted so the document stays deterministic.
func (v *VIPSet) snapshotLocked() []int64 {
	out := make([]int64, 0, len(v.members))
	for id := range v.members {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
