package ranking

import (
	"math"
	"time"
)

// Output range of the final score.
const (
	MinScore = 0.0
	MaxScore = 10.0
)

// Inputs holds the raw facts about one listing needed to score it.
type Inputs struct {
	CreatedAt         time.Time
	RatingAvg         float64
	RatingCount       int
	OrderCount        int
	Quantity          int
	SellerRatingAvg   float64
	SellerRatingCount int
	ManualBoost       float64 // additive, may be negative
	PenaltyScore      float64 // subtractive
}

// Composite is the outcome of combining weighted factors with adjustments.
type Composite struct {
	Base  float64 `json:"base"`
	Final float64 `json:"final"`
}

// Result is a fully computed score together with the intermediate values.
type Result struct {
	Factors   Factors
	Weights   WeightVector
	Composite Composite
}

// Final returns the clamped final score.
func (r Result) Final() float64 {
	return r.Composite.Final
}

// Compose computes the weighted base score and the clamped final score.
//
// Formula:
//
//	base  = Σ weight_i * factor_i
//	final = clamp(base + manualBoost - penaltyScore, 0, 10)
//
// Non-finite adjustments are ignored so a corrupt row cannot poison ordering.
func Compose(f Factors, w WeightVector, manualBoost, penaltyScore float64) Composite {
	base := (f.Recency * w.Recency) +
		(f.Rating * w.Rating) +
		(f.Orders * w.Orders) +
		(f.Stock * w.Stock) +
		(f.SellerReputation * w.SellerReputation)

	adjusted := base + finiteOrZero(manualBoost) - finiteOrZero(penaltyScore)

	return Composite{
		Base:  base,
		Final: clamp(adjusted, MinScore, MaxScore),
	}
}

// Score evaluates the factors for in and composes them under w.
// This is the single computation path shared by recompute and explain.
func Score(in Inputs, w WeightVector, now time.Time) Result {
	factors := ComputeFactors(in, now)
	return Result{
		Factors:   factors,
		Weights:   w,
		Composite: Compose(factors, w, in.ManualBoost, in.PenaltyScore),
	}
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
