// Package settings stores administrator-tuned ranking weights.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/onnwee/bazaar/internal/ranking"
	"github.com/onnwee/bazaar/internal/tracing"
)

// WeightStore is a ranking.WeightSource that can also persist the record.
type WeightStore interface {
	ranking.WeightSource
	// SaveWeights replaces the stored record. Nil coefficients are stored as
	// missing and fall back to defaults on read.
	SaveWeights(ctx context.Context, weights *ranking.PartialWeights) error
}

// PostgresWeightSource reads and writes the singleton ranking_settings row.
type PostgresWeightSource struct {
	db *sql.DB
}

// NewPostgresWeightSource creates a new PostgresWeightSource.
func NewPostgresWeightSource(db *sql.DB) *PostgresWeightSource {
	return &PostgresWeightSource{db: db}
}

// LoadWeights implements ranking.WeightSource.
// Returns (nil, nil) when the row does not exist.
func (s *PostgresWeightSource) LoadWeights(ctx context.Context) (weights *ranking.PartialWeights, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "ranking_settings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT recency_weight, rating_weight, orders_weight, stock_weight, seller_reputation_weight
		FROM ranking_settings
		WHERE id = 1
	`

	var recency, rating, orders, stock, seller sql.NullFloat64
	err = s.db.QueryRowContext(ctx, query).Scan(&recency, &rating, &orders, &stock, &seller)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ranking settings: %w", err)
	}

	return &ranking.PartialWeights{
		Recency:          fromNull(recency),
		Rating:           fromNull(rating),
		Orders:           fromNull(orders),
		Stock:            fromNull(stock),
		SellerReputation: fromNull(seller),
	}, nil
}

// SaveWeights implements WeightStore.
func (s *PostgresWeightSource) SaveWeights(ctx context.Context, weights *ranking.PartialWeights) (err error) {
	if err := weights.Validate(); err != nil {
		return err
	}
	if weights == nil {
		weights = &ranking.PartialWeights{}
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "ranking_settings", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	query := `
		INSERT INTO ranking_settings (
			id, recency_weight, rating_weight, orders_weight, stock_weight, seller_reputation_weight, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			recency_weight = EXCLUDED.recency_weight,
			rating_weight = EXCLUDED.rating_weight,
			orders_weight = EXCLUDED.orders_weight,
			stock_weight = EXCLUDED.stock_weight,
			seller_reputation_weight = EXCLUDED.seller_reputation_weight,
			updated_at = NOW()
	`

	_, err = s.db.ExecContext(ctx, query,
		toNull(weights.Recency),
		toNull(weights.Rating),
		toNull(weights.Orders),
		toNull(weights.Stock),
		toNull(weights.SellerReputation),
	)
	if err != nil {
		return fmt.Errorf("failed to save ranking settings: %w", err)
	}
	return nil
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func toNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
