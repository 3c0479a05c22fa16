// Command dropbox-collector performs one collection run against the
// Dropbox team-log API: fetch the audit events for the current window,
// drop the ones already cached, and append the rest to the per-day
// files under the cache directory. It is built to run from cron; the
// exit code tells the scheduler what went wrong (10 for a missing
// credential, the upstream HTTP status for an API failure).
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ignite/dropbox-collector/internal/archive"
	"github.com/ignite/dropbox-collector/internal/config"
	"github.com/ignite/dropbox-collector/internal/dropbox"
	"github.com/ignite/dropbox-collector/internal/ingest"
	"github.com/ignite/dropbox-collector/internal/pkg/logger"
	"github.com/ignite/dropbox-collector/internal/secrets"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dropbox-collector: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var (
		token      string
		timeRange  string
		stamps     string
		cacheDir   string
		cfgFile    string
		verbosity  int
		initialize bool
	)

	cmd := &cobra.Command{
		Use:           "dropbox-collector",
		Short:         "Collect Dropbox team audit events into a local cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if initialize {
				return initializeConfig(cmd.InOrStdin(), cmd.OutOrStdout(), starterConfigPath)
			}
			return runCollect(cmd, token, timeRange, stamps, cacheDir, cfgFile, verbosity)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&token, "token", "t", "", "bearer token or aws:ssm:<region>:<name> reference")
	flags.StringVarP(&timeRange, "range", "r", "", "window size back from now, e.g. 90m, 12h, 1d")
	flags.StringVarP(&stamps, "timestamps", "s", "", "explicit start#end window override")
	flags.StringVarP(&cacheDir, "cache-dir", "d", "", "cache directory for logs, checksums, and the watermark")
	flags.StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	flags.IntVarP(&verbosity, "verbose", "v", 0, "verbosity, debug above 3 and trace above 7")
	flags.BoolVarP(&initialize, "initialize", "i", false, "write a starter config file and exit")

	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func runCollect(cmd *cobra.Command, token, timeRange, stamps, cacheDir, cfgFile string, verbosity int) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFromEnv(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// Flags win over environment and config file
	if token != "" {
		cfg.BearerToken = token
	}
	if cacheDir != "" {
		cfg.CacheDir = cacheDir
	}
	if timeRange != "" {
		cfg.TimeRange = timeRange
	}

	log := logger.New("dropbox-collector", verbosity)

	bearer, err := secrets.Resolve(ctx, cfg.BearerToken)
	if err != nil {
		return err
	}
	log.Debug().
		Str("token", logger.MaskToken(bearer)).
		Str("cache_dir", cfg.CacheDir).
		Str("base_url", cfg.API.BaseURL).
		Msg("configuration resolved")

	runner := ingest.NewRunner(cfg, dropbox.NewClient(cfg.API, bearer), log)
	if stamps != "" {
		runner.SetStamps(stamps)
	}
	if cfg.Archive.Enabled && cfg.Archive.S3Bucket != "" {
		uploader, err := archive.New(ctx, cfg.Archive)
		if err != nil {
			return err
		}
		runner.SetArchiver(uploader)
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("run failed")
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: window %s, %d pages, %d fetched, %d written, %d duplicates, watermark %s\n",
		summary.RunID, summary.Window, summary.Pages, summary.Fetched, summary.Written, summary.Skipped, summary.Watermark)
	return nil
}

// exitCode maps a failed run to the process exit status: a missing or
// unresolvable credential is 10, an upstream HTTP failure mirrors the
// status code, everything else is 1.
func exitCode(err error) int {
	var statusErr *dropbox.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	if errors.Is(err, secrets.ErrNoToken) {
		return 10
	}
	return 1
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the collector version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "dropbox-collector "+Version)
		},
	}
}
