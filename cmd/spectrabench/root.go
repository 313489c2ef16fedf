package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"spectrabench/internal/core"
	"spectrabench/pkg/domain"
)

type app struct {
	driver      string
	sqlitePath  string
	postgresDSN string
	jsonOut     bool
	verbose     bool
	trace       bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "spectrabench",
		Short:         "Record and query spectral benchmark results",
		Long:          "spectrabench appends networks, algorithms, system configurations, experiment runs and visualizations to a benchmark store and reports the aggregated algorithm performance.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.driver, "driver", "", "storage driver: sqlite|postgres (default from SPECTRABENCH_STORAGE_DRIVER, else sqlite)")
	flags.StringVar(&a.sqlitePath, "sqlite-path", "", "sqlite database file (default from SPECTRABENCH_SQLITE_PATH)")
	flags.StringVar(&a.postgresDSN, "postgres-dsn", "", "postgres connection string (default from SPECTRABENCH_POSTGRES_DSN)")
	flags.BoolVar(&a.jsonOut, "json", false, "print JSON instead of tables")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&a.trace, "trace", false, "write JSON trace spans to stderr")

	root.AddCommand(
		a.initCmd(),
		a.addCmd(),
		a.networksCmd(),
		a.experimentsCmd(),
		a.performanceCmd(),
		a.auditCmd(),
	)
	return root
}

func (a *app) config(cmd *cobra.Command) (core.Config, error) {
	cfg, err := core.ConfigFromEnv()
	if err != nil {
		return core.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Driver = core.StorageDriver(a.driver)
	}
	if flags.Changed("sqlite-path") {
		cfg.SQLitePath = a.sqlitePath
	}
	if flags.Changed("postgres-dsn") {
		cfg.PostgresDSN = a.postgresDSN
	}
	// Every invocation is its own process; a memory store would drop each
	// record as soon as it was acknowledged.
	if cfg.Driver == core.StorageMemory {
		return core.Config{}, fmt.Errorf("storage driver %q does not persist between commands; use %s or %s", cfg.Driver, core.StorageSQLite, core.StoragePostgres)
	}
	return cfg, nil
}

func (a *app) logger() *slog.Logger {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))
}

// openService opens the configured store. The artifact store is only opened
// when a command needs it.
func (a *app) openService(cmd *cobra.Command, withArtifacts bool) (*core.Service, core.Config, error) {
	cfg, err := a.config(cmd)
	if err != nil {
		return nil, cfg, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	opts := []core.Option{core.WithLogger(a.logger())}
	if a.trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(a.errOut)))
	}
	if withArtifacts {
		rec, err := core.OpenArtifacts(ctx, cfg)
		if err != nil {
			return nil, cfg, err
		}
		opts = append(opts, core.WithArtifacts(rec))
	}
	store, err := core.OpenPersistentStore(ctx, cfg, domain.NewDefaultRulesEngine())
	if err != nil {
		return nil, cfg, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return core.NewService(store, opts...), cfg, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
