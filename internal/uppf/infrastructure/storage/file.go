package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileDocumentStore writes documents under a root directory.
type FileDocumentStore struct {
	root string
}

// NewFileDocumentStore constructs a store rooted at dir, creating it if needed.
func NewFileDocumentStore(dir string) (*FileDocumentStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file document store: empty root")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file document store: %w", err)
	}
	return &FileDocumentStore{root: dir}, nil
}

// Put writes data to root/key and returns the file path.
func (s *FileDocumentStore) Put(ctx context.Context, key, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", errors.New("file document store: empty key")
	}
	target := filepath.Join(s.root, clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("file document store: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("file document store: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return "", fmt.Errorf("file document store: %w", err)
	}
	return target, nil
}
