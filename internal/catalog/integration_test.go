//go:build integration

package catalog

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgres runs a disposable Postgres with the catalog migration applied.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithInitScripts(filepath.Join("..", "..", "migrations", "000001_create_catalog.up.sql")),
		postgres.WithDatabase("bazaar"),
		postgres.WithUsername("bazaar"),
		postgres.WithPassword("bazaar"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))
	return db
}

func TestPostgresStore_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	store := NewPostgresStore(db, slog.Default())

	var sellerID string
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO sellers (rating_avg, rating_count) VALUES (4.5, 80) RETURNING id`).Scan(&sellerID))

	created := time.Now().Add(-30 * 24 * time.Hour).UTC().Truncate(time.Second)
	var ids []string
	for i := 0; i < 5; i++ {
		var id string
		require.NoError(t, db.QueryRowContext(ctx,
			`INSERT INTO listings (seller_id, created_at, rating_avg, rating_count, quantity)
			 VALUES ($1, $2, 4, 2, $3) RETURNING id`, sellerID, created, i).Scan(&id))
		ids = append(ids, id)
	}
	_, err := db.ExecContext(ctx, `UPDATE listings SET status = 'draft' WHERE id = $1`, ids[4])
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := db.ExecContext(ctx,
			`INSERT INTO order_items (order_id, listing_id) VALUES (gen_random_uuid(), $1)`, ids[0])
		require.NoError(t, err)
	}

	facts, err := store.GetFacts(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 3, facts.OrderCount)
	assert.Equal(t, 80, facts.Seller.RatingCount)
	assert.True(t, facts.Listing.CreatedAt.Equal(created))

	// Walk every active listing with keyset pagination.
	seen := map[string]bool{}
	afterID := ""
	for {
		page, err := store.ListActiveFacts(ctx, afterID, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, f := range page {
			assert.False(t, seen[f.Listing.ID], "listing %s visited twice", f.Listing.ID)
			seen[f.Listing.ID] = true
		}
		afterID = page[len(page)-1].Listing.ID
	}
	assert.Len(t, seen, 4)
	assert.False(t, seen[ids[4]], "draft listing must not be listed")

	batch, err := store.BeginBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.Set(ctx, ids[0], 7.5))
	require.NoError(t, batch.Set(ctx, ids[1], 2.25))
	require.NoError(t, batch.Commit(ctx))

	require.NoError(t, store.UpdateScore(ctx, ids[2], 4))
	assert.ErrorIs(t, store.UpdateScore(ctx, "00000000-0000-0000-0000-000000000000", 1), ErrListingNotFound)

	ranked, err := store.ListRanked(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ranked, 4)
	assert.Equal(t, ids[0], ranked[0].ID)
	assert.Nil(t, ranked[3].Score)
}
