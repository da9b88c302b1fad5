// Package core defines the object store contract shared by the blob drivers.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Driver identifies a blob backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
	// Overwrite replaces an existing object instead of failing with
	// ErrExists.
	Overwrite bool
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a flat key/object store with S3-like semantics.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get returns the object and a reader the caller must close.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// Delete reports whether the object existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns the objects under prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	ErrNotFound   = errors.New("blob: not found")
	ErrExists     = errors.New("blob: already exists")
	ErrInvalidKey = errors.New("blob: invalid key")
)

// CleanKey normalises a key and rejects empty, absolute and escaping keys.
func CleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q escapes the store", ErrInvalidKey, key)
		}
	}
	return path.Clean(key), nil
}

// CloneMetadata copies user metadata so callers cannot alias stored maps.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
