// Package storage provides object storage for exported report snapshots.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidKey     = errors.New("invalid object key")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
)

// ObjectStorage stores whole objects by key. Implementations include S3
// and the local filesystem.
type ObjectStorage interface {
	// Put writes data under key, replacing any existing object, and returns its ETag.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// Get returns the object's contents or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ValidateKey rejects keys that are empty, absolute, or escape the root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
