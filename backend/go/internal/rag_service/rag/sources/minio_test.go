package sources

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"DocQA/backend/go/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore serves objects from memory.
type fakeStore struct {
	objects   map[string]string
	modified  time.Time
	listErr   error
	downloads []string
}

func (f *fakeStore) ListObjects(_ context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(f.objects)+1)
	if f.listErr != nil {
		ch <- minio.ObjectInfo{Err: f.listErr}
	}
	for key, body := range f.objects {
		ch <- minio.ObjectInfo{Key: key, Size: int64(len(body)), LastModified: f.modified}
	}
	close(ch)
	return ch
}

func (f *fakeStore) FGetObject(_ context.Context, _, object, filePath string, _ minio.GetObjectOptions) error {
	f.downloads = append(f.downloads, object)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filePath, []byte(f.objects[object]), 0o644)
}

func TestSyncDownloadsOnlyChangedObjects(t *testing.T) {
	store := &fakeStore{
		objects: map[string]string{
			"docs/a.txt":       "alpha",
			"docs/sub/b.txt":   "beta",
			"docs/folder/":     "",
			"docs/../evil.txt": "x",
		},
		modified: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	src := &MinIOSource{store: store, bucket: "corpus", prefix: "docs/", log: logger.Discard()}
	dir := t.TempDir()

	res, err := src.Sync(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Downloaded)
	assert.Equal(t, []string{"docs/../evil.txt"}, res.Skipped)

	b, err := os.ReadFile(filepath.Join(dir, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(b))

	store.downloads = nil
	res, err = src.Sync(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, res.Downloaded)
	assert.Equal(t, 2, res.Unchanged)
	assert.Empty(t, store.downloads)

	store.objects["docs/a.txt"] = "alpha, revised"
	res, err = src.Sync(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, []string{"docs/a.txt"}, store.downloads)
}

func TestSyncListError(t *testing.T) {
	src := &MinIOSource{store: &fakeStore{listErr: errors.New("access denied")}, bucket: "corpus", log: logger.Discard()}
	_, err := src.Sync(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "access denied")
}

func TestLocalPath(t *testing.T) {
	p, ok := localPath("/data", "docs/", "docs/x/y.pdf")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/data", "x", "y.pdf"), p)

	_, ok = localPath("/data", "", "../etc/passwd")
	assert.False(t, ok)
	_, ok = localPath("/data", "docs/", "docs/")
	assert.False(t, ok)
}
