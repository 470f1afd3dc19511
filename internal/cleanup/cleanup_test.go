package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"real-estate-valuation/internal/database"
	"real-estate-valuation/internal/models"
)

func seed(t *testing.T, store *database.MemoryStore, old time.Time) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateListingVersion(ctx, &models.Listing{
			ListingID:    "l1",
			NormalizedAt: old.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, store.CreateListingVersion(ctx, &models.Listing{ListingID: "l2", NormalizedAt: old}))
	require.NoError(t, store.AddCrawlVisit(ctx, &models.CrawlVisit{ListingID: "l1", VisitedAt: old}))
	require.NoError(t, store.AddCrawlVisit(ctx, &models.CrawlVisit{ListingID: "l2", VisitedAt: old.AddDate(1, 0, 0)}))
}

func newService(store Store, cfg Config, now time.Time) *Service {
	s := NewService(store, cfg, nil)
	s.now = func() time.Time { return now }
	return s
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := old.AddDate(1, 0, 14)

	store := database.NewMemoryStore()
	seed(t, store, old)

	result, err := newService(store, DefaultConfig(), now).Prune(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TargetVersions)
	assert.Equal(t, int64(2), result.DeletedVersions)
	assert.Equal(t, 1, result.TargetVisits)
	assert.Equal(t, int64(1), result.DeletedVisits)
	assert.Equal(t, 1, result.Listings)

	latest, err := store.GetLatestListing(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version, "latest version survives")

	_, err = store.GetLatestListing(ctx, "l2")
	assert.NoError(t, err, "a single version is never pruned")

	logs := store.PruneLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, models.PruneKindVersions, logs[0].Kind)
	assert.Equal(t, 2, logs[0].Removed)
	assert.Equal(t, models.PruneKindVisits, logs[1].Kind)
}

func TestPrune_DryRun(t *testing.T) {
	ctx := context.Background()
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := database.NewMemoryStore()
	seed(t, store, old)

	cfg := DefaultConfig()
	cfg.DryRun = true
	result, err := newService(store, cfg, old.AddDate(2, 0, 0)).Prune(ctx)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 2, result.TargetVersions)

	counts, err := store.CountSupersededVersions(ctx, old.AddDate(2, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"l1": 2}, counts, "nothing deleted")
	assert.Empty(t, store.PruneLogs())
}

func TestPrune_SafetyLimit(t *testing.T) {
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := database.NewMemoryStore()
	seed(t, store, old)

	cfg := DefaultConfig()
	cfg.MaxDeletions = 1
	_, err := newService(store, cfg, old.AddDate(2, 0, 0)).Prune(context.Background())
	assert.ErrorContains(t, err, "safety check failed")
}
