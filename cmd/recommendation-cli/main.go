// Package main provides the Recommendation Engine CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommendation"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	cfgFile     string
	catalogFile string
	outputJSON  bool
	noColor     bool
	verbose     bool

	// Configuration, logger and output
	cfg    *config.Config
	logger *observability.Logger
	ui     *UI
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "recommendation-cli",
	Short: "Recommendation Engine CLI for search, comparison and embedding maintenance",
	Long: `Recommendation Engine CLI runs the recommendation engine in-process against the
configured catalog, vector index and cache.

Use this tool to:
- Seed a catalog from YAML
- Refresh product embeddings
- Search, compare and find similar products
- Inspect index statistics

With the memory database driver, pass --catalog to load products for the run.
All commands support --json for automation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui = NewUI(cmd.OutOrStdout(), cmd.ErrOrStderr(), outputJSON, noColor || !IsTerminal())
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := "warn"
		if verbose {
			level = cfg.Observability.LogLevel
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      "console",
			Output:      cmd.ErrOrStderr(),
			ServiceName: "recommendation-cli",
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "", "YAML catalog to load into the memory store before running")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newRefreshCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newCompareCmd())
	rootCmd.AddCommand(newSimilarCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if ui != nil {
			ui.Error("%s", friendlyError(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// openApp builds the dependency graph for one command. With the memory
// driver, --catalog is loaded first so the refresh sees it.
func openApp(ctx context.Context, refresh bool) (*app.App, error) {
	application, err := app.New(ctx, cfg, logger, app.Options{SkipStartupRefresh: true})
	if err != nil {
		return nil, err
	}

	if catalogFile != "" {
		if application.MemoryStore == nil {
			_ = application.Close()
			return nil, fmt.Errorf("--catalog requires the memory database driver; use seed for %s", cfg.Database.Driver)
		}
		products, err := loadCatalog(catalogFile)
		if err != nil {
			_ = application.Close()
			return nil, err
		}
		for _, p := range products {
			application.MemoryStore.Put(p)
		}
	}

	if refresh {
		if _, err := application.Engine.RefreshEmbeddings(ctx, recommendation.RefreshRequest{}); err != nil {
			logger.Warn().Err(err).Msg("Startup embedding refresh failed")
		}
	}
	return application, nil
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputJSON {
				return ui.JSON(map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recommendation-cli %s\n", version)
			return nil
		},
	}
}
