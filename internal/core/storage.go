package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"spectrabench/internal/artifacts"
	"spectrabench/internal/blob"
	"spectrabench/internal/infra/persistence/memory"
	"spectrabench/internal/infra/persistence/postgres"
	"spectrabench/internal/infra/persistence/sqlite"
	"spectrabench/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// Environment variables read by ConfigFromEnv. Blob variables are documented
// in the blob package.
const (
	EnvStorageDriver    = "SPECTRABENCH_STORAGE_DRIVER"
	EnvSQLitePath       = "SPECTRABENCH_SQLITE_PATH"
	EnvPostgresDSN      = "SPECTRABENCH_POSTGRES_DSN"
	EnvInlineImageLimit = "SPECTRABENCH_INLINE_IMAGE_LIMIT"
)

// Config gathers everything needed to open a store and an artifact recorder.
type Config struct {
	Driver           StorageDriver
	SQLitePath       string
	PostgresDSN      string
	Blob             blob.Config
	InlineImageLimit int
}

// ConfigFromEnv reads configuration from the environment. The storage driver
// defaults to sqlite.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Driver:           StorageDriver(strings.ToLower(strings.TrimSpace(os.Getenv(EnvStorageDriver)))),
		SQLitePath:       os.Getenv(EnvSQLitePath),
		PostgresDSN:      os.Getenv(EnvPostgresDSN),
		Blob:             blob.ConfigFromEnv(),
		InlineImageLimit: artifacts.DefaultInlineLimit,
	}
	if cfg.Driver == "" {
		cfg.Driver = StorageSQLite
	}
	if raw := strings.TrimSpace(os.Getenv(EnvInlineImageLimit)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvInlineImageLimit, err)
		}
		cfg.InlineImageLimit = n
	}
	return cfg, nil
}

// OpenPersistentStore opens the backend selected by cfg.Driver.
func OpenPersistentStore(ctx context.Context, cfg Config, engine *RulesEngine) (PersistentStore, error) {
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite, "":
		store, err := sqlite.Open(ctx, cfg.SQLitePath, engine, sqlite.Options{})
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(cfg.PostgresDSN, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenArtifacts opens the configured blob store and wraps it in a recorder.
func OpenArtifacts(ctx context.Context, cfg Config) (*artifacts.Recorder, error) {
	store, err := blob.OpenConfig(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	return artifacts.NewRecorder(store, artifacts.WithInlineLimit(cfg.InlineImageLimit)), nil
}

// Open builds a Service from cfg with the default rules engine, wiring the
// artifact recorder as well. The caller closes the service.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	store, err := OpenPersistentStore(ctx, cfg, domain.NewDefaultRulesEngine())
	if err != nil {
		return nil, err
	}
	rec, err := OpenArtifacts(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return NewService(store, append([]Option{WithArtifacts(rec)}, opts...)...), nil
}
