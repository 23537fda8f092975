package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalFileStorage_SaveAndRead(t *testing.T) {
	fs := NewLocalFileStorage(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	t.Run("saves and reads back", func(t *testing.T) {
		content := []byte("pdf bytes")

		err := fs.Save(ctx, "proformas/req-1/quote.pdf", content)
		require.NoError(t, err)

		got, err := fs.Read(ctx, "proformas/req-1/quote.pdf")
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("creates nested directories", func(t *testing.T) {
		err := fs.Save(ctx, "a/b/c/d/file.txt", []byte("x"))
		require.NoError(t, err)
		assert.True(t, fs.Exists(ctx, "a/b/c/d/file.txt"))
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		require.NoError(t, fs.Save(ctx, "overwrite.txt", []byte("original")))
		require.NoError(t, fs.Save(ctx, "overwrite.txt", []byte("replacement")))

		got, err := fs.Read(ctx, "overwrite.txt")
		require.NoError(t, err)
		assert.Equal(t, []byte("replacement"), got)
	})

	t.Run("read of missing file fails", func(t *testing.T) {
		_, err := fs.Read(ctx, "missing.txt")
		assert.Error(t, err)
	})
}

func TestLocalFileStorage_Exists(t *testing.T) {
	fs := NewLocalFileStorage(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	assert.False(t, fs.Exists(ctx, "nope.txt"))

	require.NoError(t, fs.Save(ctx, "yes.txt", []byte("x")))
	assert.True(t, fs.Exists(ctx, "yes.txt"))
}

func TestLocalFileStorage_Delete(t *testing.T) {
	fs := NewLocalFileStorage(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, fs.Save(ctx, "doomed.txt", []byte("x")))
	require.NoError(t, fs.Delete(ctx, "doomed.txt"))
	assert.False(t, fs.Exists(ctx, "doomed.txt"))

	// Deleting a missing file is not an error
	assert.NoError(t, fs.Delete(ctx, "doomed.txt"))
}

func TestLocalFileStorage_PathTraversal(t *testing.T) {
	baseDir := t.TempDir()
	fs := NewLocalFileStorage(baseDir, zap.NewNop())
	ctx := context.Background()

	// Traversal segments are cleaned away, the write stays under the base dir
	err := fs.Save(ctx, "../../etc/passwd", []byte("x"))
	require.NoError(t, err)

	entries, err := os.ReadDir(baseDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "etc", entries[0].Name())
}
