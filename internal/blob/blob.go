// Package blob is the entry point for artifact storage. It re-exports the
// core abstractions and selects a backend from configuration; other packages
// depend on blob.Store rather than on the infra implementations.
package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"spectrabench/internal/blob/core"
	fsstore "spectrabench/internal/infra/blob/fs"
	memorystore "spectrabench/internal/infra/blob/memory"
	s3store "spectrabench/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 backend.
	S3Config = s3store.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrExists      = core.ErrExists
	ErrNotFound    = core.ErrNotFound
	ErrInvalidKey  = core.ErrInvalidKey
)

// Environment variables read by Open and ConfigFromEnv.
const (
	EnvDriver      = "SPECTRABENCH_BLOB_DRIVER"
	EnvFSRoot      = "SPECTRABENCH_BLOB_FS_ROOT"
	EnvS3Bucket    = "SPECTRABENCH_BLOB_S3_BUCKET"
	EnvS3Region    = "SPECTRABENCH_BLOB_S3_REGION"
	EnvS3Endpoint  = "SPECTRABENCH_BLOB_S3_ENDPOINT"
	EnvS3PathStyle = "SPECTRABENCH_BLOB_S3_PATH_STYLE"
)

// DefaultFSRoot is used when the filesystem driver has no configured root.
const DefaultFSRoot = "./artifacts"

// Config selects and parameterises a backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// ConfigFromEnv reads the SPECTRABENCH_BLOB_* variables. The driver defaults
// to fs.
func ConfigFromEnv() Config {
	cfg := Config{
		Driver: Driver(strings.ToLower(strings.TrimSpace(os.Getenv(EnvDriver)))),
		FSRoot: os.Getenv(EnvFSRoot),
		S3: S3Config{
			Bucket:    os.Getenv(EnvS3Bucket),
			Region:    os.Getenv(EnvS3Region),
			Endpoint:  os.Getenv(EnvS3Endpoint),
			PathStyle: strings.EqualFold(os.Getenv(EnvS3PathStyle), "true"),
		},
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverFilesystem
	}
	return cfg
}

// Open selects a Store implementation using environment variables.
func Open(ctx context.Context) (Store, error) {
	return OpenConfig(ctx, ConfigFromEnv())
}

// OpenConfig constructs the backend described by cfg.
func OpenConfig(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		root := cfg.FSRoot
		if root == "" {
			root = DefaultFSRoot
		}
		return NewFilesystem(root)
	case DriverS3:
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("%s required for s3 driver", EnvS3Bucket)
		}
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return fsstore.New(root)
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewS3 constructs an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return s3store.New(ctx, cfg)
}

// NewMockS3ForTests returns an S3 store wired to an in-process fake endpoint.
func NewMockS3ForTests() Store { return s3store.NewMockForTests() }
