package ranking

import (
	"fmt"
	"log/slog"
	"math"
)

// WeightVector holds the coefficient applied to each ranking factor.
type WeightVector struct {
	Recency          float64 `json:"recency"`           // default: 0.30
	Rating           float64 `json:"rating"`            // default: 0.25
	Orders           float64 `json:"orders"`            // default: 0.20
	Stock            float64 `json:"stock"`             // default: 0.15
	SellerReputation float64 `json:"seller_reputation"` // default: 0.10
}

// PartialWeights is a weight vector as read from storage. A nil coefficient
// means the value is missing and the default applies.
type PartialWeights struct {
	Recency          *float64 `json:"recency,omitempty"`
	Rating           *float64 `json:"rating,omitempty"`
	Orders           *float64 `json:"orders,omitempty"`
	Stock            *float64 `json:"stock,omitempty"`
	SellerReputation *float64 `json:"seller_reputation,omitempty"`
}

// weightSumTolerance is how far the coefficient total may drift from 1.0
// before a warning is logged.
const weightSumTolerance = 0.001

// DefaultWeights returns the default ranking weight configuration.
//
// Formula: base = (recency * 0.30) + (rating * 0.25) + (orders * 0.20) +
// (stock * 0.15) + (seller_reputation * 0.10)
//   - Favors fresh listings so new stock gets exposure
//   - Rating quality and order volume reward proven listings
//   - Stock availability demotes listings that cannot be bought
//   - Seller reputation as a small trust signal
//   - Max base score: 1.0
func DefaultWeights() WeightVector {
	return WeightVector{
		Recency:          0.30,
		Rating:           0.25,
		Orders:           0.20,
		Stock:            0.15,
		SellerReputation: 0.10,
	}
}

// Sum returns the total of all coefficients.
func (w WeightVector) Sum() float64 {
	return w.Recency + w.Rating + w.Orders + w.Stock + w.SellerReputation
}

// Partial converts w into a PartialWeights with every coefficient present.
func (w WeightVector) Partial() *PartialWeights {
	return &PartialWeights{
		Recency:          floatPtr(w.Recency),
		Rating:           floatPtr(w.Rating),
		Orders:           floatPtr(w.Orders),
		Stock:            floatPtr(w.Stock),
		SellerReputation: floatPtr(w.SellerReputation),
	}
}

// namedWeight pairs a coefficient with its JSON name.
type namedWeight struct {
	name  string
	value *float64
}

// Validate reports an error if any present coefficient is negative or not a
// number. Coefficients are checked in declaration order, so the first invalid
// one is always the one named.
func (p *PartialWeights) Validate() error {
	if p == nil {
		return nil
	}
	for _, f := range p.fields() {
		if f.value == nil {
			continue
		}
		if v := *f.value; math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidWeight, f.name, v)
		}
	}
	return nil
}

func (p *PartialWeights) fields() []namedWeight {
	return []namedWeight{
		{"recency", p.Recency},
		{"rating", p.Rating},
		{"orders", p.Orders},
		{"stock", p.Stock},
		{"seller_reputation", p.SellerReputation},
	}
}

// MergeWeights applies the present coefficients of override on top of base.
// Missing, negative or non-finite coefficients keep the base value.
// The base is never modified.
func MergeWeights(base WeightVector, override *PartialWeights) WeightVector {
	result := base
	if override == nil {
		return result
	}

	result.Recency = pick(result.Recency, override.Recency)
	result.Rating = pick(result.Rating, override.Rating)
	result.Orders = pick(result.Orders, override.Orders)
	result.Stock = pick(result.Stock, override.Stock)
	result.SellerReputation = pick(result.SellerReputation, override.SellerReputation)

	return result
}

func pick(base float64, override *float64) float64 {
	if override == nil {
		return base
	}
	v := *override
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return base
	}
	return v
}

func floatPtr(v float64) *float64 {
	return &v
}

// logWeightOverrides logs which weights differ from the defaults and warns
// when the coefficients no longer sum to 1.
func logWeightOverrides(logger *slog.Logger, defaults, loaded WeightVector) {
	var overrides []string

	check := func(name string, def, got float64) {
		if def != got {
			overrides = append(overrides, fmt.Sprintf("%s: %.2f -> %.2f", name, def, got))
		}
	}
	check("recency", defaults.Recency, loaded.Recency)
	check("rating", defaults.Rating, loaded.Rating)
	check("orders", defaults.Orders, loaded.Orders)
	check("stock", defaults.Stock, loaded.Stock)
	check("seller_reputation", defaults.SellerReputation, loaded.SellerReputation)

	if len(overrides) > 0 {
		logger.Debug("ranking weights loaded with overrides", "overrides", overrides)
	} else {
		logger.Debug("ranking weights loaded (using all defaults)")
	}

	if sum := loaded.Sum(); math.Abs(sum-1.0) > weightSumTolerance {
		logger.Warn("ranking weights do not sum to 1; final score scale is affected",
			"sum", sum)
	}
}
