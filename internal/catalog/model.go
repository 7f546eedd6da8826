// Package catalog provides listing and seller data access for the ranking engine.
package catalog

import (
	"errors"
	"time"

	"github.com/onnwee/bazaar/internal/ranking"
)

// Listing status values. Only active listings take part in batch recompute.
const (
	StatusActive   = "active"
	StatusDraft    = "draft"
	StatusArchived = "archived"
)

// Repository errors.
var (
	ErrListingNotFound = errors.New("listing not found")
	ErrInvalidStatus   = errors.New("invalid status: must be active, draft, or archived")
	ErrBatchClosed     = errors.New("score batch already committed or rolled back")
)

// ValidStatus reports whether status is a known listing status.
func ValidStatus(status string) bool {
	switch status {
	case StatusActive, StatusDraft, StatusArchived:
		return true
	}
	return false
}

// Listing represents a catalog item offered by a seller.
type Listing struct {
	ID             string     `json:"id"`
	SellerID       string     `json:"seller_id"`
	Title          string     `json:"title,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	RatingAvg      float64    `json:"rating_avg"`
	RatingCount    int        `json:"rating_count"`
	Quantity       int        `json:"quantity"`
	ManualBoost    float64    `json:"manual_boost"`
	PenaltyScore   float64    `json:"penalty_score"`
	Score          *float64   `json:"score,omitempty"` // nil until first computed
	Pinned         bool       `json:"pinned"`
	Status         string     `json:"status"`
	ScoreUpdatedAt *time.Time `json:"score_updated_at,omitempty"`
}

// Seller holds the aggregate rating of a seller account.
type Seller struct {
	ID          string  `json:"id"`
	RatingAvg   float64 `json:"rating_avg"`
	RatingCount int     `json:"rating_count"`
}

// ListingFacts is a listing joined with its seller aggregate and order count.
// It is everything the scoring path reads.
type ListingFacts struct {
	Listing    Listing
	Seller     Seller
	OrderCount int
}

// Inputs converts the facts into scoring inputs.
func (f *ListingFacts) Inputs() ranking.Inputs {
	return ranking.Inputs{
		CreatedAt:         f.Listing.CreatedAt,
		RatingAvg:         f.Listing.RatingAvg,
		RatingCount:       f.Listing.RatingCount,
		OrderCount:        f.OrderCount,
		Quantity:          f.Listing.Quantity,
		SellerRatingAvg:   f.Seller.RatingAvg,
		SellerRatingCount: f.Seller.RatingCount,
		ManualBoost:       f.Listing.ManualBoost,
		PenaltyScore:      f.Listing.PenaltyScore,
	}
}
