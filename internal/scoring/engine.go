// Package scoring recomputes and explains listing relevance scores on top of
// the pure formulas in package ranking.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/bazaar/internal/catalog"
	"github.com/onnwee/bazaar/internal/ranking"
	"github.com/onnwee/bazaar/internal/tracing"
)

// Engine errors.
var (
	// ErrNotFound is returned when the requested listing does not exist.
	// It is the catalog sentinel so errors.Is matches either name.
	ErrNotFound = catalog.ErrListingNotFound

	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")
)

// WeightProvider supplies the effective ranking weights.
type WeightProvider interface {
	GetWeights(ctx context.Context) ranking.WeightVector
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Logger for engine activity.
	Logger *slog.Logger
	// Metrics for recompute tracking. Optional.
	Metrics *Metrics
	// Now returns the reference time for recency. Defaults to time.Now.
	Now func() time.Time
}

// Engine computes listing scores, persists them and explains them.
// Every operation scores through ranking.Score so they agree exactly.
type Engine struct {
	reader  catalog.Reader
	writer  catalog.ScoreWriter
	weights WeightProvider
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewEngine creates a new scoring engine.
func NewEngine(reader catalog.Reader, writer catalog.ScoreWriter, weights WeightProvider, cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if weights == nil {
		weights = ranking.NewWeightProvider(nil, cfg.Logger)
	}
	return &Engine{
		reader:  reader,
		writer:  writer,
		weights: weights,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
}

// Weights returns the weights currently in effect.
func (e *Engine) Weights(ctx context.Context) ranking.WeightVector {
	return e.weights.GetWeights(ctx)
}

// RecomputeAll rescores every active listing in pages of batchSize and
// returns how many listings were committed. Weights are read once per pass.
// Each page is written atomically; on failure the open page is rolled back
// and the count of listings committed so far is returned with the error.
// Cancellation is honored between pages.
func (e *Engine) RecomputeAll(ctx context.Context, batchSize int) (updated int, err error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBatchSize, batchSize)
	}

	ctx, endSpan := tracing.StartSpan(ctx, "scoring.recompute_all", attribute.Int("scoring.batch_size", batchSize))
	defer func() { endSpan(err) }()

	startTime := time.Now()
	weights := e.weights.GetWeights(ctx)
	now := e.now()

	defer func() {
		duration := time.Since(startTime).Seconds()
		if e.metrics != nil {
			e.metrics.ObserveBatchDuration(duration)
			if err == nil {
				e.metrics.SetLastBatchTimestamp(float64(time.Now().Unix()))
				e.metrics.SetLastBatchListingCount(float64(updated))
			} else {
				e.metrics.IncRecomputeErrors()
			}
		}
		tracing.SetAttributes(ctx, attribute.Int("scoring.updated", updated))
		if err != nil {
			e.logger.ErrorContext(ctx, "score recompute failed",
				"batch_size", batchSize,
				"updated", updated,
				"duration_seconds", duration,
				"error", err)
			return
		}
		e.logger.InfoContext(ctx, "score recompute completed",
			"batch_size", batchSize,
			"updated", updated,
			"duration_seconds", duration)
	}()

	afterID := ""
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		facts, err := e.reader.ListActiveFacts(ctx, afterID, batchSize)
		if err != nil {
			return updated, fmt.Errorf("failed to read listing page %d: %w", page, err)
		}
		if len(facts) == 0 {
			return updated, nil
		}

		if err := e.writePage(ctx, facts, weights, now); err != nil {
			return updated, fmt.Errorf("failed to write listing page %d: %w", page, err)
		}
		updated += len(facts)
		afterID = facts[len(facts)-1].Listing.ID

		tracing.AddEvent(ctx, "scoring.page_committed",
			attribute.Int("page", page),
			attribute.Int("page_size", len(facts)))
		e.logger.DebugContext(ctx, "score page committed",
			"page", page,
			"page_size", len(facts),
			"processed", updated)
	}
}

// writePage scores one page and commits it as a single unit of work.
func (e *Engine) writePage(ctx context.Context, facts []catalog.ListingFacts, weights ranking.WeightVector, now time.Time) error {
	batch, err := e.writer.BeginBatch(ctx)
	if err != nil {
		return err
	}

	finals := make([]float64, 0, len(facts))
	for i := range facts {
		final := ranking.Score(facts[i].Inputs(), weights, now).Final()
		if err := batch.Set(ctx, facts[i].Listing.ID, final); err != nil {
			e.rollback(ctx, batch)
			return err
		}
		finals = append(finals, final)
	}

	if err := batch.Commit(ctx); err != nil {
		e.rollback(ctx, batch)
		return err
	}

	if e.metrics != nil {
		for _, final := range finals {
			e.metrics.ObserveFinalScore(final)
		}
		e.metrics.AddListingsScored(ModeBatch, len(finals))
	}
	return nil
}

func (e *Engine) rollback(ctx context.Context, batch catalog.ScoreBatch) {
	if err := batch.Rollback(ctx); err != nil {
		e.logger.WarnContext(ctx, "failed to roll back score page", "error", err)
	}
}

// RecomputeOne rescores a single listing regardless of its status and
// persists the result. Returns ErrNotFound for an unknown listing.
func (e *Engine) RecomputeOne(ctx context.Context, listingID string) (score float64, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "scoring.recompute_one", attribute.String("listing.id", listingID))
	defer func() { endSpan(err) }()

	facts, err := e.getFacts(ctx, listingID)
	if err != nil {
		return 0, err
	}

	result := ranking.Score(facts.Inputs(), e.weights.GetWeights(ctx), e.now())
	score = result.Final()

	if err := e.writer.UpdateScore(ctx, listingID, score); err != nil {
		if errors.Is(err, catalog.ErrListingNotFound) {
			return 0, fmt.Errorf("listing %s: %w", listingID, ErrNotFound)
		}
		if e.metrics != nil {
			e.metrics.IncRecomputeErrors()
		}
		return 0, fmt.Errorf("failed to persist score for listing %s: %w", listingID, err)
	}

	if e.metrics != nil {
		e.metrics.AddListingsScored(ModeSingle, 1)
		e.metrics.ObserveFinalScore(score)
	}
	e.logger.DebugContext(ctx, "listing score recomputed",
		"listing_id", listingID,
		"score", score,
		"base", result.Composite.Base)

	return score, nil
}

// Explain returns the term-by-term breakdown of a listing score without
// persisting anything. Returns ErrNotFound for an unknown listing.
func (e *Engine) Explain(ctx context.Context, listingID string) (explanation *ranking.Explanation, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "scoring.explain", attribute.String("listing.id", listingID))
	defer func() { endSpan(err) }()

	facts, err := e.getFacts(ctx, listingID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	in := facts.Inputs()
	result := ranking.Score(in, e.weights.GetWeights(ctx), now)
	return ranking.Explain(listingID, in, facts.Listing.Pinned, result, now), nil
}

func (e *Engine) getFacts(ctx context.Context, listingID string) (*catalog.ListingFacts, error) {
	facts, err := e.reader.GetFacts(ctx, listingID)
	if errors.Is(err, catalog.ErrListingNotFound) {
		return nil, fmt.Errorf("listing %s: %w", listingID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load listing %s: %w", listingID, err)
	}
	return facts, nil
}
