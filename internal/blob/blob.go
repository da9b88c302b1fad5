// Package blob is the entry point to object storage. Callers depend on the
// Store interface; the drivers live under internal/infra/blob.
package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"mdtcore/internal/blob/core"
	"mdtcore/internal/infra/blob/fs"
	"mdtcore/internal/infra/blob/memory"
	"mdtcore/internal/infra/blob/s3"
)

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
	S3Config   = s3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound   = core.ErrNotFound
	ErrExists     = core.ErrExists
	ErrInvalidKey = core.ErrInvalidKey
)

// Config selects and parameterises a driver.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open constructs the configured store. MDTCORE_BLOB_DRIVER, when set,
// overrides cfg.Driver; an empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if env := strings.TrimSpace(os.Getenv("MDTCORE_BLOB_DRIVER")); env != "" {
		driver = Driver(strings.ToLower(env))
	}
	switch driver {
	case "", DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverMemory:
		return memory.New(), nil
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}

// NewMemory returns an in-process store.
func NewMemory() Store { return memory.New() }

// NewFilesystem returns a store rooted at dir.
func NewFilesystem(dir string) (Store, error) { return fs.New(dir) }
