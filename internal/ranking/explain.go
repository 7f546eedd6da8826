package ranking

import (
	"fmt"
	"math"
	"time"
)

// Factor names in the order they appear in an explanation.
const (
	FactorRecency          = "recency"
	FactorRating           = "rating"
	FactorOrders           = "orders"
	FactorStock            = "stock"
	FactorSellerReputation = "seller_reputation"
)

// FactorExplanation describes how one factor contributed to the base score.
type FactorExplanation struct {
	Name      string  `json:"name"`
	Raw       float64 `json:"raw"`
	Weight    float64 `json:"weight"`
	Weighted  float64 `json:"weighted"`
	Rationale string  `json:"rationale"`
}

// ExplanationFacts are the raw listing facts the score was computed from.
type ExplanationFacts struct {
	AgeDays           float64 `json:"age_days"`
	RatingAvg         float64 `json:"rating_avg"`
	RatingCount       int     `json:"rating_count"`
	OrderCount        int     `json:"order_count"`
	Quantity          int     `json:"quantity"`
	SellerRatingAvg   float64 `json:"seller_rating_avg"`
	SellerRatingCount int     `json:"seller_rating_count"`
}

// Explanation is a term-by-term breakdown of a listing score.
// Numeric values are rounded to three decimals for display stability.
type Explanation struct {
	ListingID    string              `json:"listing_id"`
	Factors      []FactorExplanation `json:"factors"`
	Weights      WeightVector        `json:"weights"`
	BaseScore    float64             `json:"base_score"`
	ManualBoost  float64             `json:"manual_boost"`
	PenaltyScore float64             `json:"penalty_score"`
	FinalScore   float64             `json:"final_score"`
	Pinned       bool                `json:"pinned"`
	Facts        ExplanationFacts    `json:"facts"`
	ComputedAt   time.Time           `json:"computed_at"`
}

// Round3 rounds v to three decimal places.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Explain builds the breakdown for a listing from the same Result that
// recomputation persists, so both always agree.
func Explain(listingID string, in Inputs, pinned bool, result Result, now time.Time) *Explanation {
	ageDays := AgeDays(in.CreatedAt, now)
	f := result.Factors
	w := result.Weights

	factors := []FactorExplanation{
		explainFactor(FactorRecency, f.Recency, w.Recency, recencyRationale(ageDays)),
		explainFactor(FactorRating, f.Rating, w.Rating,
			ratingRationale("listing", in.RatingAvg, in.RatingCount)),
		explainFactor(FactorOrders, f.Orders, w.Orders, ordersRationale(in.OrderCount)),
		explainFactor(FactorStock, f.Stock, w.Stock, stockRationale(in.Quantity)),
		explainFactor(FactorSellerReputation, f.SellerReputation, w.SellerReputation,
			ratingRationale("seller", in.SellerRatingAvg, in.SellerRatingCount)),
	}

	return &Explanation{
		ListingID: listingID,
		Factors:   factors,
		Weights: WeightVector{
			Recency:          Round3(w.Recency),
			Rating:           Round3(w.Rating),
			Orders:           Round3(w.Orders),
			Stock:            Round3(w.Stock),
			SellerReputation: Round3(w.SellerReputation),
		},
		BaseScore:    Round3(result.Composite.Base),
		ManualBoost:  Round3(in.ManualBoost),
		PenaltyScore: Round3(in.PenaltyScore),
		FinalScore:   Round3(result.Composite.Final),
		Pinned:       pinned,
		Facts: ExplanationFacts{
			AgeDays:           Round3(ageDays),
			RatingAvg:         Round3(in.RatingAvg),
			RatingCount:       in.RatingCount,
			OrderCount:        in.OrderCount,
			Quantity:          in.Quantity,
			SellerRatingAvg:   Round3(in.SellerRatingAvg),
			SellerRatingCount: in.SellerRatingCount,
		},
		ComputedAt: now,
	}
}

func explainFactor(name string, raw, weight float64, rationale string) FactorExplanation {
	return FactorExplanation{
		Name:      name,
		Raw:       Round3(raw),
		Weight:    Round3(weight),
		Weighted:  Round3(raw * weight),
		Rationale: rationale,
	}
}

func recencyRationale(ageDays float64) string {
	switch {
	case ageDays < 0:
		return "created in the future; treated as brand new"
	case ageDays > RecencyHorizonDays:
		return fmt.Sprintf("%.1f days old; past the %.0f-day horizon", ageDays, RecencyHorizonDays)
	default:
		return fmt.Sprintf("%.1f days old; linear decay over %.0f days", ageDays, RecencyHorizonDays)
	}
}

func ratingRationale(subject string, avg float64, count int) string {
	if count <= 0 {
		return fmt.Sprintf("%s has no ratings; neutral prior %.1f", subject, NeutralRatingPrior)
	}
	return fmt.Sprintf("%s rated %.2f/%.0f over %d ratings", subject, avg, MaxRating, count)
}

func ordersRationale(orders int) string {
	if orders <= 0 {
		return "no orders yet"
	}
	return fmt.Sprintf("%d orders; log-scaled, saturates at %d", orders, OrderVolumeSaturation)
}

func stockRationale(quantity int) string {
	switch {
	case quantity <= 0:
		return "out of stock"
	case quantity >= FullStockQuantity:
		return fmt.Sprintf("%d in stock; fully available", quantity)
	default:
		return fmt.Sprintf("%d in stock; ramps to full at %d", quantity, FullStockQuantity)
	}
}
