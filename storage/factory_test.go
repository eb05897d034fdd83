package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/tee-agent-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLocation(t *testing.T, uri string) interfaces.StorageBackendLocation {
	t.Helper()
	loc, err := interfaces.NewStorageBackendLocation(uri)
	require.NoError(t, err)
	return loc
}

func TestStorageBackendFactory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := NewStorageBackendFactory(logger)
	dir := t.TempDir()

	t.Run("memory", func(t *testing.T) {
		backend, err := factory.StorageBackendFor(mustLocation(t, "memory://"))
		require.NoError(t, err)
		assert.IsType(t, &MemoryBackend{}, backend)
	})

	t.Run("file", func(t *testing.T) {
		backend, err := factory.StorageBackendFor(mustLocation(t, "file://"+dir))
		require.NoError(t, err)
		assert.IsType(t, &FileBackend{}, backend)
	})

	t.Run("s3", func(t *testing.T) {
		backend, err := factory.StorageBackendFor(mustLocation(t, "s3://key:secret@registry-bucket/state?region=eu-west-1&endpoint=http://localhost:9000"))
		require.NoError(t, err)
		require.IsType(t, &S3Backend{}, backend)
		assert.Equal(t, "state/"+interfaces.StateKey, backend.(*S3Backend).getObjectKey(interfaces.StateKey))
	})

	t.Run("vault", func(t *testing.T) {
		backend, err := factory.StorageBackendFor(mustLocation(t, "vault://vault.internal:8200/secret/agent-registry?token=root&tls=false"))
		require.NoError(t, err)
		require.IsType(t, &VaultBackend{}, backend)
		assert.Equal(t, "secret/data/agent-registry/"+interfaces.StateKey, backend.(*VaultBackend).secretPath(interfaces.StateKey))
	})

	t.Run("vault without mount", func(t *testing.T) {
		_, err := factory.StorageBackendFor(mustLocation(t, "vault://vault.internal:8200"))
		assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := interfaces.NewStorageBackendLocation("ipfs://localhost:5001")
		assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
	})

	t.Run("multi", func(t *testing.T) {
		backend, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{
			mustLocation(t, "memory://"),
			mustLocation(t, "file://"+filepath.Join(dir, "mirror")),
		})
		require.NoError(t, err)
		assert.IsType(t, &MultiStorageBackend{}, backend)

		ctx := context.Background()
		require.NoError(t, backend.Store(ctx, interfaces.StateKey, []byte("v1")))
		onDisk, err := os.ReadFile(filepath.Join(dir, "mirror", interfaces.StateKey))
		require.NoError(t, err)
		assert.Equal(t, "v1", string(onDisk))
	})

	t.Run("single location is not wrapped", func(t *testing.T) {
		backend, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{mustLocation(t, "memory://")})
		require.NoError(t, err)
		assert.IsType(t, &MemoryBackend{}, backend)
	})
}

func TestFileBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = backend.Fetch(ctx, interfaces.StateKey)
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	require.NoError(t, backend.Store(ctx, interfaces.StateKey, []byte("first")))
	require.NoError(t, backend.Store(ctx, interfaces.StateKey, []byte("second")))

	data, err := backend.Fetch(ctx, interfaces.StateKey)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	assert.Error(t, backend.Store(ctx, "../escape", []byte("x")))
	assert.True(t, backend.Available(ctx))
}

func TestMemoryBackend(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	_, err := backend.Fetch(ctx, "k")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	value := []byte("v")
	require.NoError(t, backend.Store(ctx, "k", value))
	value[0] = 'x'

	data, err := backend.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(data))
}
