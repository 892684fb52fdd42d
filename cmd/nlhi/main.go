// Command nlhi is the operator CLI for the NLHI store: calculate and store
// records, import submission files, manage regions, print series and run the
// service.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/nlhi-service/internal/config"
	"github.com/couchcryptid/nlhi-service/internal/engine"
	"github.com/couchcryptid/nlhi-service/internal/observability"
	"github.com/couchcryptid/nlhi-service/internal/service"
)

func main() {
	root, closeStore := newRootCmd()
	err := root.Execute()
	if cerr := closeStore(); cerr != nil {
		fmt.Fprintln(os.Stderr, "Error:", cerr)
		os.Exit(1)
	}
	if err != nil {
		os.Exit(1)
	}
}

// cliApp holds state shared by subcommands. The engine is opened on first
// use so that serve can build its own.
type cliApp struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	eng      *engine.Engine
	closer   io.Closer
	logLevel string

	dataFile string
	backend  string
	sqlite   string
}

// newRootCmd builds the command tree. The returned func closes the store the
// commands opened and must be called after Execute, whether or not it failed.
func newRootCmd() (*cobra.Command, func() error) {
	app := &cliApp{}

	root := &cobra.Command{
		Use:           "nlhi",
		Short:         "Calculate and inspect Normalized Life Health Index records",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.configure(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.dataFile, "data", "", "data file for the json backend (overrides DATA_FILE)")
	flags.StringVar(&app.backend, "backend", "", "store backend: json or sqlite (overrides STORE_BACKEND)")
	flags.StringVar(&app.sqlite, "sqlite", "", "database path for the sqlite backend (overrides SQLITE_PATH)")
	flags.StringVar(&app.logLevel, "log-level", "warn", "log level for diagnostics on stderr")

	root.AddCommand(
		newCalcCmd(app),
		newImportCmd(app),
		newRegionsCmd(app),
		newDatesCmd(app),
		newSeriesCmd(app),
		newDashboardCmd(app),
		newServeCmd(app),
	)
	return root, app.close
}

func (a *cliApp) configure(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.dataFile != "" {
		cfg.DataFile = a.dataFile
	}
	if a.backend != "" {
		if a.backend != config.BackendJSON && a.backend != config.BackendSQLite {
			return fmt.Errorf("--backend: want %s or %s, got %q", config.BackendJSON, config.BackendSQLite, a.backend)
		}
		cfg.StoreBackend = a.backend
	}
	if a.sqlite != "" {
		cfg.SQLitePath = a.sqlite
	}
	a.cfg = cfg
	a.logger = observability.NewLoggerTo(cmd.ErrOrStderr(), a.logLevel, "text")
	// serve registers its own metrics on the default registry.
	a.metrics = observability.NewMetricsWith(prometheus.NewRegistry())
	return nil
}

// engine opens the configured store on first use.
func (a *cliApp) engine(cmd *cobra.Command) (*engine.Engine, error) {
	if a.eng != nil {
		return a.eng, nil
	}
	repo, closer, err := service.OpenRepository(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	eng := engine.New(repo, nil, a.logger, a.metrics, a.cfg.SeriesCacheSize)
	if err := eng.Open(cmd.Context()); err != nil {
		_ = closer.Close()
		return nil, err
	}
	a.eng, a.closer = eng, closer
	return eng, nil
}

func (a *cliApp) close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer, a.eng = nil, nil
	if err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
