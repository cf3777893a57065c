package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage stores objects on the local filesystem under a base directory
// and serves them from a static file route. Development only.
type LocalStorage struct {
	basePath string
	baseURL  string
	logger   *slog.Logger
}

// NewLocalStorage creates a LocalStorage, creating the base directory if
// needed.
func NewLocalStorage(cfg LocalConfig, logger *slog.Logger) (*LocalStorage, error) {
	absPath, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("resolve base path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	logger.Info("initialized local storage", "base_path", absPath)

	return &LocalStorage{
		basePath: absPath,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:   logger,
	}, nil
}

func (s *LocalStorage) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return newError("put", key, err)
	}
	if !opts.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return newError("put", key, ErrKeyExists)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return newError("put", key, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return newError("put", key, err)
	}
	defer f.Close()

	reader := data
	if opts.MaxSize > 0 {
		// Read one extra byte so an at-limit payload is distinguishable
		// from an over-limit one.
		reader = io.LimitReader(data, opts.MaxSize+1)
	}
	written, err := io.Copy(f, reader)
	if err != nil {
		os.Remove(path)
		return newError("put", key, err)
	}
	if opts.MaxSize > 0 && written > opts.MaxSize {
		os.Remove(path)
		return newError("put", key, ErrTooLarge)
	}

	s.logger.Debug("stored file", "key", key, "size", written)
	return nil
}

func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, ObjectInfo{}, err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return nil, ObjectInfo{}, newError("get", key, err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectInfo{}, newError("get", key, ErrNotFound)
		}
		return nil, ObjectInfo{}, newError("get", key, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, ObjectInfo{}, newError("get", key, err)
	}

	return f, ObjectInfo{
		Key:          key,
		Size:         stat.Size(),
		ContentType:  DetectContentType(nil, key),
		LastModified: stat.ModTime(),
	}, nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return newError("delete", key, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return newError("delete", key, err)
	}
	return nil
}

// URL always returns a public URL; expires is ignored for local storage.
func (s *LocalStorage) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, err := s.resolvePath(key); err != nil {
		return "", newError("url", key, err)
	}
	return s.baseURL + "/" + key, nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return false, newError("exists", key, err)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, newError("exists", key, err)
	}
	return true, nil
}

// resolvePath maps a key to an absolute path inside basePath, rejecting
// traversal attempts.
func (s *LocalStorage) resolvePath(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	clean := filepath.Clean(key)
	if strings.Contains(clean, "..") {
		return "", ErrInvalidKey
	}
	abs := filepath.Join(s.basePath, clean)
	if !strings.HasPrefix(abs, s.basePath) {
		return "", ErrInvalidKey
	}
	return abs, nil
}
