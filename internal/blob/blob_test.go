package blob_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/harishm17/study-buddy/internal/blob"
	"github.com/harishm17/study-buddy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_Open(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "uploads"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "uploads", "notes.md"), []byte("# Notes"), 0o644))

	s, err := blob.New(context.Background(), config.StorageConfig{LocalRoot: root})
	require.NoError(t, err)

	data, err := blob.ReadAll(context.Background(), s, "uploads/notes.md")
	require.NoError(t, err)
	assert.Equal(t, "# Notes", string(data))

	_, err = s.Open(context.Background(), "uploads/missing.md")
	assert.ErrorIs(t, err, blob.ErrNotFound)

	_, err = s.Open(context.Background(), "")
	assert.ErrorIs(t, err, blob.ErrInvalidObject)
}

func TestLocal_CannotEscapeRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("x"), 0o644))

	_, err := blob.NewLocal(root).Open(context.Background(), "../secret.txt")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestStore_GCSDisabled(t *testing.T) {
	s, err := blob.New(context.Background(), config.StorageConfig{LocalRoot: t.TempDir()})
	require.NoError(t, err)

	_, err = s.Open(context.Background(), "gs://bucket/materials/a.pdf")
	assert.ErrorIs(t, err, blob.ErrGCSDisabled)
	assert.NoError(t, s.Close())
}

func TestParseGCSPath(t *testing.T) {
	tests := []struct {
		path    string
		bucket  string
		key     string
		wantErr bool
	}{
		{path: "gs://study/materials/p1/a.pdf", bucket: "study", key: "materials/p1/a.pdf"},
		{path: "gs://study/a", bucket: "study", key: "a"},
		{path: "gs://study", wantErr: true},
		{path: "gs:///a.pdf", wantErr: true},
		{path: "s3://study/a.pdf", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			bucket, key, err := blob.ParseGCSPath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, blob.ErrInvalidObject)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestClientOptions(t *testing.T) {
	assert.Nil(t, blob.ClientOptions(config.StorageConfig{}))
	assert.Len(t, blob.ClientOptions(config.StorageConfig{GoogleCredentials: `{"type":"service_account"}`}), 1)
	assert.Len(t, blob.ClientOptions(config.StorageConfig{GoogleCredentials: "/etc/gcp/key.json"}), 1)
}
