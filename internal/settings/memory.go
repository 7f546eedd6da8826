package settings

import (
	"context"
	"sync"

	"github.com/onnwee/bazaar/internal/ranking"
)

// InMemoryWeightStore implements WeightStore in memory.
type InMemoryWeightStore struct {
	mu      sync.RWMutex
	weights *ranking.PartialWeights
	loads   int
}

// NewInMemoryWeightStore creates an empty store; LoadWeights reports no record.
func NewInMemoryWeightStore() *InMemoryWeightStore {
	return &InMemoryWeightStore{}
}

// LoadWeights implements ranking.WeightSource.
func (s *InMemoryWeightStore) LoadWeights(context.Context) (*ranking.PartialWeights, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return copyPartial(s.weights), nil
}

// SaveWeights implements WeightStore.
func (s *InMemoryWeightStore) SaveWeights(_ context.Context, weights *ranking.PartialWeights) error {
	if err := weights.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights = copyPartial(weights)
	return nil
}

// Loads returns how many times LoadWeights was called (for testing).
func (s *InMemoryWeightStore) Loads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads
}

func copyPartial(p *ranking.PartialWeights) *ranking.PartialWeights {
	if p == nil {
		return nil
	}
	return &ranking.PartialWeights{
		Recency:          copyFloat(p.Recency),
		Rating:           copyFloat(p.Rating),
		Orders:           copyFloat(p.Orders),
		Stock:            copyFloat(p.Stock),
		SellerReputation: copyFloat(p.SellerReputation),
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}
