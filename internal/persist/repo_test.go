package persist

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/worldforge/server/internal/config"
)

// openTestDB connects to WORLDFORGE_TEST_DSN and migrates it. Tests using it
// are skipped when the variable is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("WORLDFORGE_TEST_DSN")
	if dsn == "" {
		t.Skip("WORLDFORGE_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := NewDB(ctx, config.DatabaseConfig{
		DSN:             dsn,
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, RunMigrations(ctx, db.Pool, zap.NewNop()))
	return db
}

func TestWorldRepoRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewWorldRepo(db)
	ctx := context.Background()

	w := sampleWorld(t)
	w.Name = "repo-test-" + ulid.Make().String()
	t.Cleanup(func() { _, _ = repo.Delete(context.Background(), w.Name) })

	require.NoError(t, repo.Save(ctx, w))
	// saving again replaces the layers instead of failing on duplicates
	require.NoError(t, repo.Save(ctx, w))

	got, err := repo.Load(ctx, w.Name)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, w.Layers(), got.Layers())
	require.Equal(t, w.Plates().Cells(), got.Plates().Cells())
	require.Equal(t, w.ElevationThresholds(), got.ElevationThresholds())
	require.Equal(t, w.Params, got.Params)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	found := false
	for _, row := range list {
		if row.Name == w.Name {
			found = true
			require.ElementsMatch(t, w.Layers(), row.Layers)
			require.Equal(t, float32(0.65), row.SeaLevel)
		}
	}
	require.True(t, found)

	deleted, err := repo.Delete(ctx, w.Name)
	require.NoError(t, err)
	require.True(t, deleted)

	missing, err := repo.Load(ctx, w.Name)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestJobRepoLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	id := ulid.Make().String()
	require.NoError(t, repo.Start(ctx, JobRow{ID: id, Kind: "generate", Owner: 3, WorldName: "w", Seed: 9}))

	row, err := repo.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "generate", row.Kind)
	require.Equal(t, uint64(3), row.Owner)
	require.Nil(t, row.FinishedAt)

	require.NoError(t, repo.Finish(ctx, id, "completed", 120, ""))
	row, err = repo.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "completed", row.Outcome)
	require.Equal(t, 120, row.Steps)
	require.Empty(t, row.Error)
	require.NotNil(t, row.FinishedAt)

	none, err := repo.Load(ctx, ulid.Make().String())
	require.NoError(t, err)
	require.Nil(t, none)
}
