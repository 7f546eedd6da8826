package catalog

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var factsColumns = []string{
	"id", "seller_id", "title", "created_at",
	"rating_avg", "rating_count", "quantity",
	"manual_boost", "penalty_score", "score", "pinned", "status", "score_updated_at",
	"seller_rating_avg", "seller_rating_count", "order_count",
}

const (
	listingOne     = "0b6e3c1e-5d7a-4a53-9a34-1f2d8c7e9b01"
	listingMissing = "7f1c2b9d-0e4a-4c1b-8d2f-3a6b5c4d9e10"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, slog.Default()), mock
}

func TestPostgresStore_GetFacts(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(factsColumns).AddRow(
		listingOne, "s-1", "Lamp", created,
		4.2, 10, 3,
		0.5, 0.1, nil, true, "active", nil,
		4.8, 250, 37,
	)
	mock.ExpectQuery(`SELECT .* FROM listings l .* WHERE l.id = \$1`).
		WithArgs(listingOne).
		WillReturnRows(rows)

	facts, err := store.GetFacts(context.Background(), listingOne)
	require.NoError(t, err)

	assert.Equal(t, listingOne, facts.Listing.ID)
	assert.Equal(t, "s-1", facts.Seller.ID)
	assert.Equal(t, 4.8, facts.Seller.RatingAvg)
	assert.Equal(t, 250, facts.Seller.RatingCount)
	assert.Equal(t, 37, facts.OrderCount)
	assert.True(t, facts.Listing.Pinned)
	assert.Nil(t, facts.Listing.Score)
	assert.Nil(t, facts.Listing.ScoreUpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFacts_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM listings l`).
		WithArgs(listingMissing).
		WillReturnRows(sqlmock.NewRows(factsColumns))

	_, err := store.GetFacts(context.Background(), listingMissing)
	assert.ErrorIs(t, err, ErrListingNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFacts_QueryError(t *testing.T) {
	store, mock := newMockStore(t)
	dbErr := errors.New("connection reset")

	mock.ExpectQuery(`SELECT .* FROM listings l`).
		WithArgs(listingOne).
		WillReturnError(dbErr)

	_, err := store.GetFacts(context.Background(), listingOne)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, ErrListingNotFound)
}

func TestPostgresStore_MalformedIDIsNotFound(t *testing.T) {
	ids := []string{"abc", "", "boosted", "0b6e3c1e-5d7a-4a53-9a34"}

	for _, id := range ids {
		t.Run("id="+id, func(t *testing.T) {
			store, mock := newMockStore(t)

			_, err := store.GetFacts(context.Background(), id)
			assert.ErrorIs(t, err, ErrListingNotFound)

			err = store.UpdateScore(context.Background(), id, 1.0)
			assert.ErrorIs(t, err, ErrListingNotFound)

			// No query reaches the database.
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_ListActiveFacts(t *testing.T) {
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	scoredAt := created.Add(time.Hour)

	tests := []struct {
		name    string
		afterID string
		expect  func(mock sqlmock.Sqlmock, rows *sqlmock.Rows)
	}{
		{
			name:    "first page",
			afterID: "",
			expect: func(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
				mock.ExpectQuery(`WHERE l.status = 'active' ORDER BY l.id LIMIT \$1`).
					WithArgs(2).
					WillReturnRows(rows)
			},
		},
		{
			name:    "subsequent page",
			afterID: "l-0",
			expect: func(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
				mock.ExpectQuery(`WHERE l.status = 'active' AND l.id > \$1 ORDER BY l.id LIMIT \$2`).
					WithArgs("l-0", 2).
					WillReturnRows(rows)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			rows := sqlmock.NewRows(factsColumns).
				AddRow("l-1", "s-1", "", created, 0.0, 0, 0, 0.0, 0.0, 3.5, false, "active", scoredAt, 0.0, 0, 0).
				AddRow("l-2", "s-1", "", created, 5.0, 1, 20, 0.0, 0.0, nil, false, "active", nil, 0.0, 0, 4)
			tt.expect(mock, rows)

			page, err := store.ListActiveFacts(context.Background(), tt.afterID, 2)
			require.NoError(t, err)
			require.Len(t, page, 2)
			require.NotNil(t, page[0].Listing.Score)
			assert.Equal(t, 3.5, *page[0].Listing.Score)
			assert.Equal(t, scoredAt, *page[0].Listing.ScoreUpdatedAt)
			assert.Equal(t, 4, page[1].OrderCount)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_ListActiveFacts_ZeroLimit(t *testing.T) {
	store, mock := newMockStore(t)
	page, err := store.ListActiveFacts(context.Background(), "", 0)
	assert.NoError(t, err)
	assert.Empty(t, page)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateScore(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE listings\s+SET score = \$1, score_updated_at = NOW\(\)\s+WHERE id = \$2`).
		WithArgs(5.625, listingOne).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE listings`).
		WithArgs(1.0, listingMissing).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.UpdateScore(context.Background(), listingOne, 5.625))
	assert.ErrorIs(t, store.UpdateScore(context.Background(), listingMissing, 1.0), ErrListingNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BatchCommit(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`UPDATE listings`)
	prep.ExpectExec().WithArgs(1.0, "l-1").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(2.0, "l-2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	batch, err := store.BeginBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.Set(ctx, "l-1", 1.0))
	require.NoError(t, batch.Set(ctx, "l-2", 2.0))
	require.NoError(t, batch.Commit(ctx))

	// Rollback after commit is a no-op.
	assert.NoError(t, batch.Rollback(ctx))
	assert.ErrorIs(t, batch.Set(ctx, "l-3", 3.0), ErrBatchClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BatchRollbackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	dbErr := errors.New("deadlock detected")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`UPDATE listings`)
	prep.ExpectExec().WithArgs(1.0, "l-1").WillReturnError(dbErr)
	mock.ExpectRollback()

	batch, err := store.BeginBatch(ctx)
	require.NoError(t, err)

	err = batch.Set(ctx, "l-1", 1.0)
	assert.ErrorIs(t, err, dbErr)
	require.NoError(t, batch.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BeginBatchError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	_, err := store.BeginBatch(context.Background())
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestPostgresStore_ListRanked(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	columns := factsColumns[:13]
	rows := sqlmock.NewRows(columns).
		AddRow("pinned", "s-1", "", created, 0.0, 0, 0, 0.0, 0.0, 0.2, true, "active", nil).
		AddRow("top", "s-1", "", created, 0.0, 0, 0, 0.0, 0.0, 9.1, false, "active", nil)
	mock.ExpectQuery(`ORDER BY pinned DESC, score DESC NULLS LAST, id`).
		WithArgs(10).
		WillReturnRows(rows)

	got, err := store.ListRanked(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pinned", got[0].ID)
	assert.Equal(t, 9.1, *got[1].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}
