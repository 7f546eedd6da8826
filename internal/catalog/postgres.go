package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/onnwee/bazaar/internal/tracing"
)

// factsQuery joins a listing with its seller aggregate and order line count.
const factsQuery = `
	SELECT l.id, l.seller_id, l.title, l.created_at,
	       l.rating_avg, l.rating_count, l.quantity,
	       l.manual_boost, l.penalty_score, l.score, l.pinned, l.status, l.score_updated_at,
	       COALESCE(s.rating_avg, 0), COALESCE(s.rating_count, 0),
	       COALESCE(o.order_count, 0)
	FROM listings l
	LEFT JOIN sellers s ON s.id = l.seller_id
	LEFT JOIN (
		SELECT listing_id, COUNT(*) AS order_count
		FROM order_items
		GROUP BY listing_id
	) o ON o.listing_id = l.id
`

const updateScoreQuery = `
	UPDATE listings
	SET score = $1, score_updated_at = NOW()
	WHERE id = $2
`

// addressable reports whether listingID can match a row. listings.id is a
// UUID column, so anything else is an unknown listing rather than a query error.
func addressable(listingID string) bool {
	_, err := uuid.Parse(listingID)
	return err == nil
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// GetFacts implements Reader.
func (s *PostgresStore) GetFacts(ctx context.Context, listingID string) (facts *ListingFacts, err error) {
	if !addressable(listingID) {
		return nil, ErrListingNotFound
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	row := s.db.QueryRowContext(ctx, factsQuery+` WHERE l.id = $1`, listingID)
	f, err := scanFacts(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing facts: %w", err)
	}
	return &f, nil
}

// ListActiveFacts implements Reader.
func (s *PostgresStore) ListActiveFacts(ctx context.Context, afterID string, limit int) (result []ListingFacts, err error) {
	if limit <= 0 {
		return nil, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var rows *sql.Rows
	if afterID == "" {
		rows, err = s.db.QueryContext(ctx,
			factsQuery+` WHERE l.status = 'active' ORDER BY l.id LIMIT $1`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			factsQuery+` WHERE l.status = 'active' AND l.id > $1 ORDER BY l.id LIMIT $2`, afterID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list active listings: %w", err)
	}
	defer rows.Close()

	result = make([]ListingFacts, 0, limit)
	for rows.Next() {
		f, err := scanFacts(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing facts: %w", err)
		}
		result = append(result, f)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listings: %w", err)
	}

	return result, nil
}

// ListRanked implements Reader.
func (s *PostgresStore) ListRanked(ctx context.Context, limit int) (result []Listing, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT id, seller_id, title, created_at,
		       rating_avg, rating_count, quantity,
		       manual_boost, penalty_score, score, pinned, status, score_updated_at
		FROM listings
		WHERE status = 'active'
		ORDER BY pinned DESC, score DESC NULLS LAST, id
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranked listings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l Listing
		var score sql.NullFloat64
		var scoredAt sql.NullTime
		err := rows.Scan(
			&l.ID, &l.SellerID, &l.Title, &l.CreatedAt,
			&l.RatingAvg, &l.RatingCount, &l.Quantity,
			&l.ManualBoost, &l.PenaltyScore, &score, &l.Pinned, &l.Status, &scoredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		applyNullable(&l, score, scoredAt)
		result = append(result, l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listings: %w", err)
	}

	return result, nil
}

// UpdateScore implements ScoreWriter.
func (s *PostgresStore) UpdateScore(ctx context.Context, listingID string, score float64) (err error) {
	if !addressable(listingID) {
		return ErrListingNotFound
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	res, err := s.db.ExecContext(ctx, updateScoreQuery, score, listingID)
	if err != nil {
		return fmt.Errorf("failed to update listing score: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrListingNotFound
	}
	return nil
}

// BeginBatch implements ScoreWriter. The batch is a READ COMMITTED
// transaction with a prepared UPDATE statement.
func (s *PostgresStore) BeginBatch(ctx context.Context) (ScoreBatch, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, updateScoreQuery)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Warn("failed to rollback transaction",
				slog.String("error", rbErr.Error()))
		}
		return nil, fmt.Errorf("failed to prepare score update: %w", err)
	}

	return &postgresBatch{tx: tx, stmt: stmt, logger: s.logger}, nil
}

type postgresBatch struct {
	tx     *sql.Tx
	stmt   *sql.Stmt
	logger *slog.Logger
	count  int
}

func (b *postgresBatch) Set(ctx context.Context, listingID string, score float64) error {
	if b.stmt == nil {
		return ErrBatchClosed
	}
	if _, err := b.stmt.ExecContext(ctx, score, listingID); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return ErrBatchClosed
		}
		return fmt.Errorf("failed to update listing score: %w", err)
	}
	b.count++
	return nil
}

func (b *postgresBatch) Commit(ctx context.Context) (err error) {
	_, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	b.closeStmt()
	if err := b.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return ErrBatchClosed
		}
		return fmt.Errorf("failed to commit score batch: %w", err)
	}
	b.logger.Debug("score batch committed", "count", b.count)
	return nil
}

func (b *postgresBatch) Rollback(_ context.Context) error {
	b.closeStmt()
	if err := b.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to rollback score batch: %w", err)
	}
	return nil
}

func (b *postgresBatch) closeStmt() {
	if b.stmt == nil {
		return
	}
	if err := b.stmt.Close(); err != nil {
		b.logger.Warn("failed to close prepared statement",
			slog.String("error", err.Error()))
	}
	b.stmt = nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFacts(row rowScanner) (ListingFacts, error) {
	var f ListingFacts
	var score sql.NullFloat64
	var scoredAt sql.NullTime
	err := row.Scan(
		&f.Listing.ID, &f.Listing.SellerID, &f.Listing.Title, &f.Listing.CreatedAt,
		&f.Listing.RatingAvg, &f.Listing.RatingCount, &f.Listing.Quantity,
		&f.Listing.ManualBoost, &f.Listing.PenaltyScore, &score, &f.Listing.Pinned,
		&f.Listing.Status, &scoredAt,
		&f.Seller.RatingAvg, &f.Seller.RatingCount,
		&f.OrderCount,
	)
	if err != nil {
		return ListingFacts{}, err
	}
	f.Seller.ID = f.Listing.SellerID
	applyNullable(&f.Listing, score, scoredAt)
	return f, nil
}

func applyNullable(l *Listing, score sql.NullFloat64, scoredAt sql.NullTime) {
	if score.Valid {
		v := score.Float64
		l.Score = &v
	}
	if scoredAt.Valid {
		t := scoredAt.Time
		l.ScoreUpdatedAt = &t
	}
}
