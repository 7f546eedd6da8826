// Package ranking provides the listing relevance score calculations used to
// order marketplace search and browse results.
//
// Basic Usage:
//
//	// Resolve the effective weights (never fails; falls back to defaults)
//	provider := ranking.NewWeightProvider(source, logger)
//	weights := provider.GetWeights(ctx)
//
//	// Score one listing
//	result := ranking.Score(ranking.Inputs{
//		CreatedAt:         listing.CreatedAt,
//		RatingAvg:         listing.RatingAvg,
//		RatingCount:       listing.RatingCount,
//		OrderCount:        orderCount,
//		Quantity:          listing.Quantity,
//		SellerRatingAvg:   seller.RatingAvg,
//		SellerRatingCount: seller.RatingCount,
//		ManualBoost:       listing.ManualBoost,
//		PenaltyScore:      listing.PenaltyScore,
//	}, weights, time.Now())
//
//	// result.Final is in [MinScore, MaxScore]
//
// Factor Functions:
//
// All factor functions return values in the [0, 1] range and are pure
// functions of their arguments. Compose combines them with a WeightVector
// and applies the manual boost and penalty before clamping.
//
// Calibration:
//
// Weights normally live in a singleton settings record. A JSON calibration
// file in the same shape as configs/ranking.calibration.json can be loaded
// with LoadCalibration to trial a weight set offline.
package ranking
