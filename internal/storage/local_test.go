package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUploadWritesContentAndReturnsReference(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ref, err := store.Upload(context.Background(), "neft-slip.pdf", []byte("proof-bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, ref)
	require.Equal(t, ".pdf", filepath.Ext(ref))

	content, err := os.ReadFile(filepath.Join(store.baseDir, ref))
	require.NoError(t, err)
	require.Equal(t, []byte("proof-bytes"), content)
}

func TestUploadGeneratesDistinctReferences(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	first, err := store.Upload(context.Background(), "slip.png", []byte("a"))
	require.NoError(t, err)
	second, err := store.Upload(context.Background(), "slip.png", []byte("b"))
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestUploadHonorsCancelledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Upload(ctx, "slip.pdf", []byte("late"))
	require.Error(t, err)
}
