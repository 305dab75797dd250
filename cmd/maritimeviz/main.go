// Command maritimeviz ingests AIS NMEA logs into DuckDB, serves queries and
// maps over HTTP, and proxies Global Fishing Watch data.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maritimeviz/maritimeviz/internal/config"
	"github.com/maritimeviz/maritimeviz/internal/gfw"
	"github.com/maritimeviz/maritimeviz/internal/logging"
	"github.com/maritimeviz/maritimeviz/internal/observability"
	"github.com/maritimeviz/maritimeviz/internal/store"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	appName    = "maritimeviz"
	appLicense = "MIT"
	appURL     = "https://github.com/maritimeviz/maritimeviz"
)

var (
	configPath string
	logLevel   string

	cfg    *config.AppConfig
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "AIS vessel tracking: ingest, query and visualize",
	Long: `maritimeviz loads AIS NMEA logs into a DuckDB database and lets you
search positions, draw vessel tracks on Leaflet maps and look up Global
Fishing Watch data.

Configuration is read from maritimeviz.yaml (created on first run) and can be
overridden through the environment or a .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and package metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", appName, Version)
		fmt.Fprintf(out, "build time: %s\n", BuildTime)
		fmt.Fprintf(out, "license:    %s\n", appLicense)
		fmt.Fprintf(out, "homepage:   %s\n", appURL)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "maritimeviz.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(mapCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(gfwCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger.
func setup() error {
	var err error
	cfg, err = config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// openStore opens the configured database.
func openStore(ctx context.Context) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Storage.DatabasePath, store.Options{
		MemoryLimit: cfg.Storage.DuckDBMemoryLimit,
		Threads:     cfg.Storage.DuckDBThreads,
		TempDir:     cfg.Storage.TempDirectory,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// newGFWClient builds the cached Global Fishing Watch client. It returns nil
// without an error when no token is configured and prompting is off.
func newGFWClient(metrics *observability.Metrics, prompt func() (string, error)) (gfw.API, error) {
	client, err := gfw.NewClient(gfw.Options{
		Token:   cfg.GFW.Token,
		BaseURL: cfg.GFW.BaseURL,
		Timeout: cfg.GFW.Timeout(),
		Prompt:  prompt,
		Logger:  logger,
		Metrics: metrics,
	})
	if errors.Is(err, gfw.ErrEmptyToken) && prompt == nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.GFW.CacheSize <= 0 {
		return client, nil
	}
	return gfw.NewCachedClient(client, cfg.GFW.CacheSize, cfg.GFW.CacheTTL(), nil, metrics), nil
}
