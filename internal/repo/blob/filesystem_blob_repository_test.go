package blob_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/joynest/internal/domain"
	. "github.com/mkrupp/joynest/internal/repo/blob"
)

func setupFileSystemBlobTestRepo(t *testing.T) (*FileSystemRepository, string) {
	t.Helper()

	tempDir := t.TempDir()

	repo, err := NewFileSystemBlobRepository(context.Background(), "test", "bin", FileSystemBlobRepositoryConfig{
		Basedir: tempDir,
	})
	require.NoError(t, err)

	return repo, tempDir
}

func storeBlob(t *testing.T, repo *FileSystemRepository, blob *domain.Blob) {
	t.Helper()

	unlock, err := repo.Lock(context.Background(), blob.ID, true)
	require.NoError(t, err)

	defer unlock()

	require.NoError(t, repo.Store(context.Background(), blob))
}

func TestFileSystemBlobRepository_Store(t *testing.T) {
	t.Parallel()

	repo, tempDir := setupFileSystemBlobTestRepo(t)

	tests := []struct {
		name string
		blob *domain.Blob
	}{
		{name: "handles new blob", blob: domain.NewBlob("newblob", []byte("original content"))},
		{name: "handles empty blob", blob: domain.NewBlob("emptyblob", []byte{})},
		{name: "handles short id", blob: domain.NewBlob("a", []byte("tiny"))},
		{name: "handles large blob", blob: domain.NewBlob("largeblob", bytes.Repeat([]byte{0xab}, 6<<20))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			storeBlob(t, repo, tt.blob)

			storedPath := repo.GetFilename(tt.blob.ID)
			assert.True(t, strings.HasPrefix(storedPath, filepath.Join(tempDir, "test")))

			content, err := os.ReadFile(storedPath)
			require.NoError(t, err)
			assert.Equal(t, tt.blob.Body, content)
			assert.True(t, repo.Exists(context.Background(), tt.blob.ID))
		})
	}

	t.Run("overwrites existing blob", func(t *testing.T) {
		t.Parallel()

		storeBlob(t, repo, domain.NewBlob("existingblob", []byte("original content")))
		storeBlob(t, repo, domain.NewBlob("existingblob", []byte("new")))

		got, err := repo.Fetch(context.Background(), "existingblob")
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), got.Bytes())

		leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(repo.GetFilename("existingblob")), "*.tmp"))
		require.NoError(t, err)
		assert.Empty(t, leftovers)
	})

	t.Run("rejects ids escaping the root", func(t *testing.T) {
		t.Parallel()

		for _, id := range []domain.BlobID{"", "../etc", "a/b", "x.json"} {
			err := repo.Store(context.Background(), domain.NewBlob(id, []byte("x")))
			require.ErrorIs(t, err, ErrInvalidBlobID, "id %q", id)
			assert.False(t, repo.Exists(context.Background(), id))
		}
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.ErrorIs(t, repo.Store(ctx, domain.NewBlob("cancelled", []byte("x"))), context.Canceled)
		assert.False(t, repo.Exists(context.Background(), "cancelled"))
	})
}

func TestFileSystemBlobRepository_Fetch(t *testing.T) {
	t.Parallel()

	repo, _ := setupFileSystemBlobTestRepo(t)

	storeBlob(t, repo, domain.NewBlob("existingblob", []byte("test content")))

	got, err := repo.Fetch(context.Background(), "existingblob")
	require.NoError(t, err)
	assert.Equal(t, domain.BlobID("existingblob"), got.ID)
	assert.Equal(t, []byte("test content"), got.Bytes())

	got, err = repo.Fetch(context.Background(), "missingblob")
	require.ErrorIs(t, err, domain.ErrBlobNotFound)
	assert.Nil(t, got)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestFileSystemBlobRepository_Delete(t *testing.T) {
	t.Parallel()

	repo, _ := setupFileSystemBlobTestRepo(t)

	storeBlob(t, repo, domain.NewBlob("existingblob", []byte("test content")))

	require.NoError(t, repo.Delete(context.Background(), "existingblob"))
	assert.False(t, repo.Exists(context.Background(), "existingblob"))

	_, err := os.Stat(repo.GetFilename("existingblob"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.ErrorIs(t, repo.Delete(context.Background(), "missingblob"), domain.ErrBlobNotFound)
}

func TestFileSystemBlobRepository_DeleteAll(t *testing.T) {
	t.Parallel()

	repo, _ := setupFileSystemBlobTestRepo(t)

	for _, id := range []domain.BlobID{"photo", "photo_100x100", "photo_0x50", "photograph"} {
		storeBlob(t, repo, domain.NewBlob(id, []byte(id)))
	}

	require.NoError(t, repo.DeleteAll(context.Background(), "photo", "_*"))

	assert.True(t, repo.Exists(context.Background(), "photo"))
	assert.True(t, repo.Exists(context.Background(), "photograph"))
	assert.False(t, repo.Exists(context.Background(), "photo_100x100"))
	assert.False(t, repo.Exists(context.Background(), "photo_0x50"))
}

func TestFileSystemBlobRepository_Lock(t *testing.T) {
	t.Parallel()

	repo, _ := setupFileSystemBlobTestRepo(t)

	t.Run("shared lock allows multiple readers", func(t *testing.T) {
		t.Parallel()

		unlock1, err := repo.Lock(context.Background(), "sharedlock", false)
		require.NoError(t, err)

		defer unlock1()

		unlock2, err := repo.Lock(context.Background(), "sharedlock", false)
		require.NoError(t, err)

		defer unlock2()
	})

	t.Run("exclusive lock waits for release", func(t *testing.T) {
		t.Parallel()

		unlock1, err := repo.Lock(context.Background(), "exclusivelock", true)
		require.NoError(t, err)

		acquired := make(chan func())

		go func() {
			unlock2, err := repo.Lock(context.Background(), "exclusivelock", true)
			assert.NoError(t, err)

			acquired <- unlock2
		}()

		select {
		case <-acquired:
			t.Fatal("second exclusive lock acquired while first is held")
		case <-time.After(50 * time.Millisecond):
		}

		unlock1()

		select {
		case unlock2 := <-acquired:
			unlock2()
		case <-time.After(5 * time.Second):
			t.Fatal("second exclusive lock not acquired after release")
		}
	})

	t.Run("can reacquire after release", func(t *testing.T) {
		t.Parallel()

		unlock1, err := repo.Lock(context.Background(), "relock", true)
		require.NoError(t, err)
		unlock1()

		unlock2, err := repo.Lock(context.Background(), "relock", true)
		require.NoError(t, err)
		unlock2()
	})
}
