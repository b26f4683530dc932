package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/severe-alert-service/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRepo(t *testing.T, family domain.Family) *RiskRepo {
	t.Helper()
	repo, err := NewRiskRepo(newTestDB(t), family)
	require.NoError(t, err)
	return repo
}

var testRing = domain.Ring{
	{Lat: 35.0, Lon: -98.0},
	{Lat: 35.0, Lon: -97.0},
	{Lat: 36.0, Lon: -97.0},
	{Lat: 36.0, Lon: -98.0},
}

func testRecord(key string, start, end time.Time) domain.Record {
	return domain.Record{
		Key:        key,
		Family:     domain.FamilyMeso,
		Issued:     start,
		ValidStart: start,
		ValidEnd:   end,
		Rings:      []domain.Ring{testRing},
		Summary:    "storms intensifying",
		Number:     1484,
	}
}

func TestRiskRepoUpsert(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, domain.FamilyMeso)
	start := time.Date(2026, 6, 1, 18, 30, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	t.Run("round trip", func(t *testing.T) {
		rec := testRecord("md_1_1484", start, end)
		require.NoError(t, repo.Upsert(ctx, []domain.Record{rec}))

		got, err := repo.Latest(ctx)
		require.NoError(t, err)
		if diff := cmp.Diff(rec, got); diff != "" {
			t.Errorf("record changed through storage (-want +got):\n%s", diff)
		}
	})

	t.Run("same key twice keeps one row", func(t *testing.T) {
		rec := testRecord("md_1_1484", start, end)
		require.NoError(t, repo.Upsert(ctx, []domain.Record{rec}))

		rec.Summary = "updated text"
		require.NoError(t, repo.Upsert(ctx, []domain.Record{rec}))

		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := repo.Latest(ctx)
		require.NoError(t, err)
		assert.Equal(t, "updated text", got.Summary)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, nil))
	})
}

func TestRiskRepoPurge(t *testing.T) {
	ctx := context.Background()
	cutoff := time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC)

	t.Run("cutoff is exclusive", func(t *testing.T) {
		repo := newTestRepo(t, domain.FamilyMeso)
		expired := testRecord("old", cutoff.Add(-48*time.Hour), cutoff.Add(-time.Second))
		boundary := testRecord("boundary", cutoff.Add(-48*time.Hour), cutoff)
		live := testRecord("live", cutoff, cutoff.Add(2*time.Hour))
		require.NoError(t, repo.Upsert(ctx, []domain.Record{expired, boundary, live}))

		n, err := repo.Purge(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count, "record expiring exactly at the cutoff is retained")
	})

	t.Run("idempotent", func(t *testing.T) {
		repo := newTestRepo(t, domain.FamilyMeso)
		require.NoError(t, repo.Upsert(ctx, []domain.Record{
			testRecord("old", cutoff.Add(-48*time.Hour), cutoff.Add(-time.Hour)),
		}))

		n, err := repo.Purge(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = repo.Purge(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("backlog larger than one batch", func(t *testing.T) {
		repo := newTestRepo(t, domain.FamilyMeso)
		var batch []domain.Record
		for i := 0; i < 120; i++ {
			batch = append(batch, testRecord(
				fmt.Sprintf("old_%d", i),
				cutoff.Add(-48*time.Hour),
				cutoff.Add(-time.Duration(i+1)*time.Minute)))
		}
		require.NoError(t, repo.Upsert(ctx, batch))

		n, err := repo.Purge(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 120, n)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestRiskRepoLatest(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, domain.FamilyWatch)

	t.Run("empty family", func(t *testing.T) {
		_, err := repo.Latest(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("most recently issued wins", func(t *testing.T) {
		early := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		late := early.Add(3 * time.Hour)
		require.NoError(t, repo.Upsert(ctx, []domain.Record{
			testRecord("first", early, early.Add(8*time.Hour)),
			testRecord("second", late, late.Add(8*time.Hour)),
		}))

		got, err := repo.Latest(ctx)
		require.NoError(t, err)
		assert.Equal(t, "second", got.Key)
	})
}

func TestRiskRepoActive(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	inside := domain.Coordinate{Lat: 35.5, Lon: -97.5}
	outside := domain.Coordinate{Lat: 40.0, Lon: -90.0}

	t.Run("containment and window both required", func(t *testing.T) {
		repo := newTestRepo(t, domain.FamilyThreat)
		require.NoError(t, repo.Upsert(ctx, []domain.Record{testRecord("hit", start, end)}))

		matches, err := repo.Active(ctx, start.Add(time.Hour), inside)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "hit", matches[0].Key)

		matches, err = repo.Active(ctx, start.Add(time.Hour), outside)
		require.NoError(t, err)
		assert.Empty(t, matches)

		matches, err = repo.Active(ctx, end.Add(time.Hour), inside)
		require.NoError(t, err)
		assert.Empty(t, matches, "expired record never matches")
	})

	t.Run("window bounds are inclusive", func(t *testing.T) {
		repo := newTestRepo(t, domain.FamilyThreat)
		require.NoError(t, repo.Upsert(ctx, []domain.Record{testRecord("edge", start, end)}))

		for _, at := range []time.Time{start, end} {
			matches, err := repo.Active(ctx, at, inside)
			require.NoError(t, err)
			assert.Len(t, matches, 1)
		}
	})

	t.Run("record without polygon never matches", func(t *testing.T) {
		repo := newTestRepo(t, domain.FamilyWatch)
		rec := testRecord("no_shape", start, end)
		rec.Rings = nil
		require.NoError(t, repo.Upsert(ctx, []domain.Record{rec}))

		matches, err := repo.Active(ctx, start.Add(time.Hour), inside)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("bbox near-miss rejected by exact test", func(t *testing.T) {
		// Triangle whose bounding box covers the point but whose
		// boundary does not.
		repo := newTestRepo(t, domain.FamilyThreat)
		rec := testRecord("triangle", start, end)
		rec.Rings = []domain.Ring{{
			{Lat: 35.0, Lon: -98.0},
			{Lat: 35.0, Lon: -97.0},
			{Lat: 36.0, Lon: -98.0},
		}}
		require.NoError(t, repo.Upsert(ctx, []domain.Record{rec}))

		matches, err := repo.Active(ctx, start.Add(time.Hour), domain.Coordinate{Lat: 35.9, Lon: -97.1})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("all matches returned", func(t *testing.T) {
		repo := newTestRepo(t, domain.FamilyThreat)
		require.NoError(t, repo.Upsert(ctx, []domain.Record{
			testRecord("a", start, end),
			testRecord("b", start, end),
		}))

		matches, err := repo.Active(ctx, start.Add(time.Hour), inside)
		require.NoError(t, err)
		assert.Len(t, matches, 2, "ranking among simultaneous hits is the caller's job")
	})
}
