package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage stores objects on the local filesystem as basePath/bucket/key.
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

func (s *LocalStorage) path(bucket, key string) (string, error) {
	if err := validateKey(bucket, key); err != nil {
		return "", fmt.Errorf("%w: %s/%s", err, bucket, key)
	}
	return filepath.Join(s.basePath, bucket, filepath.FromSlash(key)), nil
}

func (s *LocalStorage) Save(_ context.Context, bucket, key string, reader io.Reader, _ string) error {
	storagePath, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(storagePath), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	f, err := os.Create(storagePath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *LocalStorage) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	storagePath, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(storagePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *LocalStorage) Delete(_ context.Context, bucket, key string) error {
	storagePath, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(storagePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	// Try to remove the parent dir if it is now empty
	_ = os.Remove(filepath.Dir(storagePath))
	return nil
}
