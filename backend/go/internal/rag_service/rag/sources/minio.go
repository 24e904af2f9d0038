// Package sources mirrors remote document stores into the local corpus
// directory before ingestion.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"DocQA/backend/go/pkg/logger"

	"github.com/minio/minio-go/v7"
)

// SyncResult counts what a Sync did.
type SyncResult struct {
	Downloaded int
	Unchanged  int
	// Skipped holds object keys that cannot be mapped to a local path.
	Skipped []string
}

// objectStore is the part of *minio.Client a MinIOSource uses.
type objectStore interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
}

// MinIOSource copies the objects under a prefix of a bucket into a directory.
// Objects are only downloaded when the local copy is missing, differs in size
// or is older than the object. Local files without an object are left alone.
type MinIOSource struct {
	store  objectStore
	bucket string
	prefix string
	log    *logger.Logger
}

func NewMinIOSource(client *minio.Client, bucket, prefix string, log *logger.Logger) *MinIOSource {
	if log == nil {
		log = logger.Discard()
	}
	return &MinIOSource{store: client, bucket: bucket, prefix: prefix, log: log}
}

// Sync mirrors the objects into dir.
func (s *MinIOSource) Sync(ctx context.Context, dir string) (SyncResult, error) {
	var res SyncResult
	log := s.log.With("bucket", s.bucket).With("prefix", s.prefix)

	for obj := range s.store.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}) {
		if obj.Err != nil {
			return res, fmt.Errorf("list objects of %s: %w", s.bucket, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		local, ok := localPath(dir, s.prefix, obj.Key)
		if !ok {
			res.Skipped = append(res.Skipped, obj.Key)
			continue
		}
		fresh, err := upToDate(local, obj.Size, obj.LastModified)
		if err != nil {
			return res, err
		}
		if fresh {
			res.Unchanged++
			continue
		}
		if err := s.store.FGetObject(ctx, s.bucket, obj.Key, local, minio.GetObjectOptions{}); err != nil {
			return res, fmt.Errorf("download %s: %w", obj.Key, err)
		}
		// The local copy takes the object's time so the next sync can skip it.
		if err := os.Chtimes(local, obj.LastModified, obj.LastModified); err != nil {
			return res, err
		}
		res.Downloaded++
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	log.With("downloaded", res.Downloaded).With("unchanged", res.Unchanged).Info("Corpus synced from object storage")
	return res, nil
}

// localPath maps an object key below prefix to a path inside dir. Keys that
// would escape dir are rejected.
func localPath(dir, prefix, key string) (string, bool) {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
	rel = path.Clean(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", false
	}
	return filepath.Join(dir, filepath.FromSlash(rel)), true
}

func upToDate(local string, size int64, modified time.Time) (bool, error) {
	info, err := os.Stat(local)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Size() == size && !info.ModTime().Before(modified), nil
}
