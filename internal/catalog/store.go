package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reader provides the listing facts the ranking engine scores.
type Reader interface {
	// GetFacts returns the facts for one listing regardless of status.
	// Returns ErrListingNotFound if the listing does not exist.
	GetFacts(ctx context.Context, listingID string) (*ListingFacts, error)

	// ListActiveFacts returns up to limit active listings with ID greater than
	// afterID, ordered by ID. An empty afterID starts from the beginning.
	ListActiveFacts(ctx context.Context, afterID string, limit int) ([]ListingFacts, error)

	// ListRanked returns up to limit active listings, pinned first, then by
	// score descending. Unscored listings sort last.
	ListRanked(ctx context.Context, limit int) ([]Listing, error)
}

// ScoreWriter persists computed scores.
type ScoreWriter interface {
	// UpdateScore overwrites the score of one listing.
	// Returns ErrListingNotFound if the listing does not exist.
	UpdateScore(ctx context.Context, listingID string, score float64) error

	// BeginBatch opens a unit of work for a page of score updates.
	BeginBatch(ctx context.Context) (ScoreBatch, error)
}

// ScoreBatch buffers score updates that become visible together on Commit.
type ScoreBatch interface {
	Set(ctx context.Context, listingID string, score float64) error
	Commit(ctx context.Context) error
	// Rollback discards pending updates. Calling it after Commit is a no-op.
	Rollback(ctx context.Context) error
}

// Store combines read and write access.
type Store interface {
	Reader
	ScoreWriter
}

// InMemoryStore implements Store with in-memory storage.
type InMemoryStore struct {
	mu       sync.RWMutex
	listings map[string]*Listing
	sellers  map[string]Seller
	orders   map[string]int // listingID -> order line item count
	now      func() time.Time
}

// NewInMemoryStore creates a new in-memory catalog store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		listings: make(map[string]*Listing),
		sellers:  make(map[string]Seller),
		orders:   make(map[string]int),
		now:      time.Now,
	}
}

// AddSeller inserts or replaces a seller.
func (s *InMemoryStore) AddSeller(seller Seller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellers[seller.ID] = seller
}

// AddListing inserts or replaces a listing. A missing ID is generated and a
// missing status defaults to active. Returns the listing ID.
func (s *InMemoryStore) AddListing(l Listing) string {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Status == "" {
		l.Status = StatusActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = copyListing(&l)
	return l.ID
}

// SetOrderCount sets the number of order line items referencing a listing.
func (s *InMemoryStore) SetOrderCount(listingID string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[listingID] = count
}

// GetListing returns a copy of a stored listing.
func (s *InMemoryStore) GetListing(listingID string) (*Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[listingID]
	if !ok {
		return nil, ErrListingNotFound
	}
	return copyListing(l), nil
}

// GetFacts implements Reader.
func (s *InMemoryStore) GetFacts(_ context.Context, listingID string) (*ListingFacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[listingID]
	if !ok {
		return nil, ErrListingNotFound
	}
	facts := s.factsLocked(l)
	return &facts, nil
}

// ListActiveFacts implements Reader.
func (s *InMemoryStore) ListActiveFacts(_ context.Context, afterID string, limit int) ([]ListingFacts, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.listings))
	for id, l := range s.listings {
		if l.Status == StatusActive && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	result := make([]ListingFacts, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.factsLocked(s.listings[id]))
	}
	return result, nil
}

// ListRanked implements Reader.
func (s *InMemoryStore) ListRanked(_ context.Context, limit int) ([]Listing, error) {
	s.mu.RLock()
	result := make([]Listing, 0, len(s.listings))
	for _, l := range s.listings {
		if l.Status == StatusActive {
			result = append(result, *copyListing(l))
		}
	}
	s.mu.RUnlock()

	SortRanked(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// UpdateScore implements ScoreWriter.
func (s *InMemoryStore) UpdateScore(_ context.Context, listingID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setScoreLocked(listingID, score)
}

// BeginBatch implements ScoreWriter.
func (s *InMemoryStore) BeginBatch(_ context.Context) (ScoreBatch, error) {
	return &memoryBatch{store: s, pending: make(map[string]float64)}, nil
}

// AllScores returns the stored score of every listing that has one (for testing).
func (s *InMemoryStore) AllScores() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]float64, len(s.listings))
	for id, l := range s.listings {
		if l.Score != nil {
			result[id] = *l.Score
		}
	}
	return result
}

func (s *InMemoryStore) setScoreLocked(listingID string, score float64) error {
	l, ok := s.listings[listingID]
	if !ok {
		return ErrListingNotFound
	}
	updatedAt := s.now()
	l.Score = &score
	l.ScoreUpdatedAt = &updatedAt
	return nil
}

func (s *InMemoryStore) factsLocked(l *Listing) ListingFacts {
	return ListingFacts{
		Listing:    *copyListing(l),
		Seller:     s.sellers[l.SellerID],
		OrderCount: s.orders[l.ID],
	}
}

// memoryBatch applies its pending updates under one lock on Commit.
type memoryBatch struct {
	store   *InMemoryStore
	pending map[string]float64
	order   []string
	done    bool
}

func (b *memoryBatch) Set(_ context.Context, listingID string, score float64) error {
	if b.done {
		return ErrBatchClosed
	}
	if _, ok := b.pending[listingID]; !ok {
		b.order = append(b.order, listingID)
	}
	b.pending[listingID] = score
	return nil
}

func (b *memoryBatch) Commit(_ context.Context) error {
	if b.done {
		return ErrBatchClosed
	}
	b.done = true

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	// Listings deleted since the page was read are skipped.
	for _, id := range b.order {
		_ = b.store.setScoreLocked(id, b.pending[id])
	}
	return nil
}

func (b *memoryBatch) Rollback(_ context.Context) error {
	b.done = true
	b.pending = nil
	b.order = nil
	return nil
}

// SortRanked orders listings for display: pinned first, then by score
// descending, unscored last, ties broken by ID.
func SortRanked(listings []Listing) {
	sort.SliceStable(listings, func(i, j int) bool {
		a, b := listings[i], listings[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		switch {
		case a.Score == nil && b.Score == nil:
		case a.Score == nil:
			return false
		case b.Score == nil:
			return true
		case *a.Score != *b.Score:
			return *a.Score > *b.Score
		}
		return a.ID < b.ID
	})
}

// copyListing creates a deep copy of a Listing.
func copyListing(l *Listing) *Listing {
	copied := *l
	if l.Score != nil {
		score := *l.Score
		copied.Score = &score
	}
	if l.ScoreUpdatedAt != nil {
		at := *l.ScoreUpdatedAt
		copied.ScoreUpdatedAt = &at
	}
	return &copied
}
