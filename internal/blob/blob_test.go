package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvDriver, "")
	require.Equal(t, DriverFilesystem, ConfigFromEnv().Driver)

	t.Setenv(EnvDriver, " S3 ")
	t.Setenv(EnvS3Bucket, "bench")
	t.Setenv(EnvS3Region, "eu-west-1")
	t.Setenv(EnvS3Endpoint, "http://minio:9000")
	t.Setenv(EnvS3PathStyle, "TRUE")
	cfg := ConfigFromEnv()
	require.Equal(t, DriverS3, cfg.Driver)
	require.Equal(t, S3Config{Bucket: "bench", Region: "eu-west-1", Endpoint: "http://minio:9000", PathStyle: true}, cfg.S3)
}

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()

	t.Setenv(EnvDriver, "fs")
	t.Setenv(EnvFSRoot, filepath.Join(t.TempDir(), "blobs"))
	store, err := Open(ctx)
	require.NoError(t, err)
	require.Equal(t, DriverFilesystem, store.Driver())

	t.Setenv(EnvDriver, "memory")
	store, err = Open(ctx)
	require.NoError(t, err)
	require.Equal(t, DriverMemory, store.Driver())

	t.Setenv(EnvDriver, "s3")
	t.Setenv(EnvS3Bucket, "")
	_, err = Open(ctx)
	require.ErrorContains(t, err, EnvS3Bucket)

	t.Setenv(EnvDriver, "tape")
	_, err = Open(ctx)
	require.ErrorContains(t, err, "unknown blob driver")
}

// Every backend honours the same create-only contract.
func TestBackendsShareSemantics(t *testing.T) {
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	backends := map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
		"s3":     NewMockS3ForTests(),
	}
	for name, store := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "eigenvectors/1/2/run.json"
			info, err := store.Put(ctx, key, bytes.NewReader([]byte(`[[1,0],[0,1]]`)), PutOptions{ContentType: "application/json"})
			require.NoError(t, err)
			require.Equal(t, key, info.Key)
			require.EqualValues(t, 13, info.Size)

			_, err = store.Put(ctx, key, bytes.NewReader([]byte("x")), PutOptions{})
			require.True(t, errors.Is(err, ErrExists), "duplicate put: %v", err)

			got, rc, err := store.Get(ctx, key)
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			require.Equal(t, `[[1,0],[0,1]]`, string(body))
			require.Equal(t, "application/json", got.ContentType)

			_, err = store.Head(ctx, "eigenvectors/missing.json")
			require.True(t, errors.Is(err, ErrNotFound), "head missing: %v", err)

			_, err = store.Put(ctx, "../escape", bytes.NewReader(nil), PutOptions{})
			require.True(t, errors.Is(err, ErrInvalidKey), "escape: %v", err)

			list, err := store.List(ctx, "eigenvectors/1/")
			require.NoError(t, err)
			require.Len(t, list, 1)

			existed, err := store.Delete(ctx, key)
			require.NoError(t, err)
			require.True(t, existed)
			existed, err = store.Delete(ctx, key)
			require.NoError(t, err)
			require.False(t, existed)
		})
	}
}
