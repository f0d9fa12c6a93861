// Package blob reads uploaded material files from local disk or Google Cloud
// Storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/harishm17/study-buddy/internal/config"
)

var (
	ErrNotFound      = errors.New("object not found")
	ErrGCSDisabled   = errors.New("gcs storage is not configured")
	ErrInvalidObject = errors.New("invalid object path")
)

const gcsScheme = "gs://"

// Reader opens a stored object by its material storage path.
type Reader interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// ReadAll opens path and reads the whole object.
func ReadAll(ctx context.Context, r Reader, path string) ([]byte, error) {
	rc, err := r.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// ClientOptions turns configured Google credentials into client options.
// Inline JSON and file paths are both accepted.
func ClientOptions(cfg config.StorageConfig) []option.ClientOption {
	creds := strings.TrimSpace(cfg.GoogleCredentials)
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// --- Router ---

// Store routes gs:// paths to GCS and everything else to the local root.
type Store struct {
	local *Local
	gcs   *GCS
}

var _ Reader = (*Store)(nil)

// New builds a Store. The GCS client is only created when cfg enables it.
func New(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	s := &Store{local: NewLocal(cfg.LocalRoot)}
	if !cfg.GCSEnabled() {
		return s, nil
	}

	client, err := storage.NewClient(ctx, ClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	s.gcs = NewGCS(client)
	return s, nil
}

func (s *Store) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if strings.HasPrefix(path, gcsScheme) {
		if s.gcs == nil {
			return nil, fmt.Errorf("%w: %s", ErrGCSDisabled, path)
		}
		return s.gcs.Open(ctx, path)
	}
	return s.local.Open(ctx, path)
}

// Close releases the GCS client, if any.
func (s *Store) Close() error {
	if s.gcs == nil {
		return nil
	}
	return s.gcs.client.Close()
}

// --- Local ---

// Local reads objects below a root directory. Paths cannot escape the root.
type Local struct {
	root string
}

func NewLocal(root string) *Local {
	if root == "" {
		root = "."
	}
	return &Local{root: root}
}

func (l *Local) Open(_ context.Context, path string) (io.ReadCloser, error) {
	if path == "" {
		return nil, ErrInvalidObject
	}
	full := filepath.Join(l.root, filepath.Clean("/"+path))
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// --- GCS ---

// GCS reads gs://bucket/key objects.
type GCS struct {
	client *storage.Client
}

func NewGCS(client *storage.Client) *GCS {
	return &GCS{client: client}
}

func (g *GCS) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, key, err := ParseGCSPath(path)
	if err != nil {
		return nil, err
	}
	r, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", path, err)
	}
	return r, nil
}

// ParseGCSPath splits gs://bucket/key.
func ParseGCSPath(path string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(path, gcsScheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not a gs:// path", ErrInvalidObject, path)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidObject, path)
	}
	return bucket, key, nil
}
