package scoring

import (
	"sort"
	"sync"
	"time"
)

// DirtyMark records that a listing changed and needs its score recomputed.
type DirtyMark struct {
	ListingID string
	MarkedAt  time.Time
	seq       uint64
}

// DirtyTracker tracks which listings have pending changes that require
// score recomputation. Thread-safe via RWMutex.
type DirtyTracker struct {
	mu    sync.RWMutex
	marks map[string]DirtyMark
	seq   uint64
	now   func() time.Time
}

// NewDirtyTracker creates a new DirtyTracker instance.
func NewDirtyTracker() *DirtyTracker {
	return &DirtyTracker{
		marks: make(map[string]DirtyMark),
		now:   time.Now,
	}
}

// MarkDirty marks a listing as needing score recomputation.
// Marking an already dirty listing refreshes its mark.
func (t *DirtyTracker) MarkDirty(listingID string) {
	t.mu.Lock()
	t.seq++
	t.marks[listingID] = DirtyMark{ListingID: listingID, MarkedAt: t.now(), seq: t.seq}
	t.mu.Unlock()
}

// ClearDirty removes the dirty flag for a listing.
func (t *DirtyTracker) ClearDirty(listingID string) {
	t.mu.Lock()
	delete(t.marks, listingID)
	t.mu.Unlock()
}

// Resolve clears the flag recorded by m unless the listing was marked
// again after m was taken. Returns true if the flag was cleared.
func (t *DirtyTracker) Resolve(m DirtyMark) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.marks[m.ListingID]
	if !ok || current.seq != m.seq {
		return false
	}
	delete(t.marks, m.ListingID)
	return true
}

// Pending returns a snapshot of the dirty marks, oldest first.
func (t *DirtyTracker) Pending() []DirtyMark {
	t.mu.RLock()
	marks := make([]DirtyMark, 0, len(t.marks))
	for _, m := range t.marks {
		marks = append(marks, m)
	}
	t.mu.RUnlock()

	sort.Slice(marks, func(i, j int) bool { return marks[i].seq < marks[j].seq })
	return marks
}

// GetDirtyListings returns the IDs of listings marked dirty, oldest first.
func (t *DirtyTracker) GetDirtyListings() []string {
	pending := t.Pending()
	ids := make([]string, len(pending))
	for i, m := range pending {
		ids[i] = m.ListingID
	}
	return ids
}

// IsDirty checks if a specific listing is marked as dirty.
func (t *DirtyTracker) IsDirty(listingID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.marks[listingID]
	return exists
}

// DirtyCount returns the number of listings marked as dirty.
func (t *DirtyTracker) DirtyCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.marks)
}
