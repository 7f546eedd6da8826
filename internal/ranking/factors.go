package ranking

import (
	"math"
	"time"
)

// Factor tuning constants.
const (
	// RecencyHorizonDays is the age after which a listing gets no recency credit.
	RecencyHorizonDays = 365.0

	// NeutralRatingPrior is the factor value used when there are no ratings.
	NeutralRatingPrior = 0.5

	// MaxRating is the top of the rating scale.
	MaxRating = 5.0

	// OrderVolumeSaturation is the order count at which the order factor reaches 1.
	OrderVolumeSaturation = 100

	// FullStockQuantity is the quantity at which the stock factor reaches 1.
	FullStockQuantity = 10
)

// Factors holds the five normalized [0, 1] sub-scores of a listing.
type Factors struct {
	Recency          float64 `json:"recency"`
	Rating           float64 `json:"rating"`
	Orders           float64 `json:"orders"`
	Stock            float64 `json:"stock"`
	SellerReputation float64 `json:"seller_reputation"`
}

// AgeDays returns the fractional number of days between createdAt and now.
// Negative when createdAt is in the future.
func AgeDays(createdAt, now time.Time) float64 {
	return now.Sub(createdAt).Hours() / 24
}

// RecencyFactor computes a linear age decay normalized to [0, 1].
// Newly created listings score 1.0; listings older than RecencyHorizonDays score 0.
//
// Formula: max(0, 1 - age_days / 365)
func RecencyFactor(createdAt, now time.Time) float64 {
	age := AgeDays(createdAt, now)
	if age > RecencyHorizonDays {
		return 0.0
	}
	// A listing created "in the future" (clock skew) is treated as brand new
	return clamp01(1.0 - age/RecencyHorizonDays)
}

// RatingQualityFactor normalizes an average rating on the 0-5 scale to [0, 1].
// Unrated listings receive the neutral prior of 0.5.
func RatingQualityFactor(avg float64, count int) float64 {
	if count <= 0 {
		return NeutralRatingPrior
	}
	return clamp01(avg / MaxRating)
}

// OrderVolumeFactor compresses the historical order count logarithmically so
// high-volume listings do not dominate. Reaches 1.0 at 100 orders.
//
// Formula: min(1, log10(orders + 1) / 2)
func OrderVolumeFactor(orders int) float64 {
	if orders <= 0 {
		return 0.0
	}
	return math.Min(1.0, math.Log10(float64(orders)+1)/2)
}

// StockAvailabilityFactor ramps linearly from 0 at no stock to 1 at ten or more units.
func StockAvailabilityFactor(quantity int) float64 {
	if quantity <= 0 {
		return 0.0
	}
	if quantity >= FullStockQuantity {
		return 1.0
	}
	return float64(quantity) / FullStockQuantity
}

// SellerReputationFactor applies the rating normalization to the owning seller's
// aggregate rating, with the same neutral prior for unrated sellers.
func SellerReputationFactor(avg float64, count int) float64 {
	return RatingQualityFactor(avg, count)
}

// ComputeFactors evaluates all five factors for the given inputs.
func ComputeFactors(in Inputs, now time.Time) Factors {
	return Factors{
		Recency:          RecencyFactor(in.CreatedAt, now),
		Rating:           RatingQualityFactor(in.RatingAvg, in.RatingCount),
		Orders:           OrderVolumeFactor(in.OrderCount),
		Stock:            StockAvailabilityFactor(in.Quantity),
		SellerReputation: SellerReputationFactor(in.SellerRatingAvg, in.SellerRatingCount),
	}
}

// clamp01 bounds v to [0, 1]; NaN maps to 0.
func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
