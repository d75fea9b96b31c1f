//go:build pgtest

package tracking

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// TestPGStore_ClaimChunk_IsLinearizable runs the same claim semantics the MemStore tests cover, against a real Postgres
// instance, to exercise the FOR UPDATE SKIP LOCKED claim path the
// in-memory fake can't represent. Run with:
//
//	go test -tags pgtest ./internal/tracking/... -run PGStore
//
// against a database named by TEST_DATABASE_URL.
func TestPGStore_ClaimChunk_IsLinearizable(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	store := NewPGStore(pool, zerolog.Nop())
	require.NoError(t, store.EnsureSchema(ctx))

	date := mustDate(t, "2026-03-01")
	batchID := "pgtest-batch"
	rows := make([]Row, 0, 5)
	for i := 0; i < 5; i++ {
		rows = append(rows, NewRow(1, "contact-pg", "birthday", date, batchID, ModeProduction))
	}
	// Each row would collide on (batch_id, contact_id, email_type,
	// scheduled_date); give each a distinct contact to exercise the
	// claim path rather than the uniqueness constraint.
	for i := range rows {
		rows[i].ContactID = "contact-pg-" + string(rune('a'+i))
	}
	require.NoError(t, store.InsertBatch(ctx, rows))

	first, _, err := store.ClaimChunk(ctx, batchID, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)

	second, _, err := store.ClaimChunk(ctx, batchID, 3)
	require.NoError(t, err)
	require.Len(t, second, 2, "only the two still-pending rows should be claimable")

	seen := make(map[int64]bool)
	for _, r := range append(first, second...) {
		require.False(t, seen[r.ID], "row %d claimed twice", r.ID)
		seen[r.ID] = true
	}
}
