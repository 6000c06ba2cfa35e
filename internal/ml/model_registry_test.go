package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Name   string
	Values []float64
}

func TestModelRegistry(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests

	dir := t.TempDir()
	registry, err := NewModelRegistry(dir, logger)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("Load_Missing", func(t *testing.T) {
		var out testState
		meta, err := registry.Load(ctx, "missing", &out)
		assert.ErrorIs(t, err, ErrSnapshotNotFound)
		assert.Nil(t, meta)
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		trainedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		in := testState{Name: "users", Values: []float64{1, 0.5, 0}}
		require.NoError(t, registry.Save(ctx, "state", &in, SnapshotMeta{TrainedAt: trainedAt, Rows: 3}))

		var out testState
		meta, err := registry.Load(ctx, "state", &out)
		require.NoError(t, err)
		assert.Equal(t, in, out)
		assert.Equal(t, "state", meta.Name)
		assert.Equal(t, SnapshotFormatVersion, meta.FormatVersion)
		assert.True(t, trainedAt.Equal(meta.TrainedAt))
		assert.NotEmpty(t, meta.Checksum)
	})

	t.Run("Save_ReplacesWithoutLeftovers", func(t *testing.T) {
		require.NoError(t, registry.Save(ctx, "replace", &testState{Name: "v1"}, SnapshotMeta{}))
		require.NoError(t, registry.Save(ctx, "replace", &testState{Name: "v2"}, SnapshotMeta{}))

		var out testState
		_, err := registry.Load(ctx, "replace", &out)
		require.NoError(t, err)
		assert.Equal(t, "v2", out.Name)

		tmps, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
		require.NoError(t, err)
		assert.Empty(t, tmps)
	})

	t.Run("Load_Corrupted", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.snapshot"), []byte("not a snapshot"), 0o600))

		var out testState
		_, err := registry.Load(ctx, "broken", &out)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrSnapshotNotFound)
	})

	t.Run("Save_EmptyName", func(t *testing.T) {
		err := registry.Save(ctx, "", &testState{}, SnapshotMeta{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "snapshot name cannot be empty")
	})
}
