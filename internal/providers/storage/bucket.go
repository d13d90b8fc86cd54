package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/smallbiznis/fieldbooks/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrObjectNotFound = errors.New("object_not_found")
	ErrInvalidKey     = errors.New("invalid_object_key")
)

var Module = fx.Module("providers.storage",
	fx.Provide(NewFromConfig),
)

// Bucket stores opaque blobs under slash-separated keys.
type Bucket interface {
	Put(ctx context.Context, key string, body io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

func NewFromConfig(cfg config.Config, log *zap.Logger) (Bucket, error) {
	bucket, err := NewLocal(cfg.Storage.Root)
	if err != nil {
		return nil, err
	}
	log.Info("attachment storage ready", zap.String("root", bucket.root))
	return bucket, nil
}

// LocalBucket keeps objects as files below root.
type LocalBucket struct {
	root string
}

func NewLocal(root string) (*LocalBucket, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, err
	}
	return &LocalBucket{root: abs}, nil
}

// Put writes body to a temp file and renames it into place, so readers never see a partial object.
func (b *LocalBucket) Put(ctx context.Context, key string, body io.Reader) (int64, error) {
	path, err := b.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: body})
	if err != nil {
		tmp.Close()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	return n, os.Rename(tmp.Name(), path)
}

func (b *LocalBucket) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return f, err
}

func (b *LocalBucket) Delete(_ context.Context, key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (b *LocalBucket) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	path := filepath.Join(b.root, filepath.FromSlash(key))
	if !strings.HasPrefix(path, b.root+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return path, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
