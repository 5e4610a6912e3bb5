package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nao1215/pepfetch/internal/config"
	"github.com/nao1215/pepfetch/internal/database"
	"github.com/nao1215/pepfetch/internal/extract"
	"github.com/nao1215/pepfetch/internal/fetcher"
	"github.com/nao1215/pepfetch/internal/index"
	applog "github.com/nao1215/pepfetch/internal/log"
	"github.com/nao1215/pepfetch/internal/model"
	"github.com/nao1215/pepfetch/internal/report"
	"github.com/nao1215/pepfetch/internal/store"
	"github.com/nao1215/pepfetch/internal/transport"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [PEP numbers...]",
		Short: "Download PEPs and store their text",
		Long: `Fetch loads the PEP index, downloads every listed PEP concurrently,
extracts the content region and writes it to <output-dir>/pep-NNNN.txt.

Entries without a URL are skipped. A PEP that cannot be downloaded or
parsed is reported and any earlier copy of its file is left untouched;
the remaining PEPs are still processed.

Examples:
  # Fetch every PEP into ./downloaded_peps
  pepfetch fetch

  # Fetch only PEP 8 and PEP 20
  pepfetch fetch 8 20

  # Bound the number of concurrent downloads and show progress
  pepfetch fetch -c 16 --progress

  # Route requests through a SOCKS5 proxy
  pepfetch fetch --proxy 127.0.0.1:9050

  # Write a Markdown summary to a file
  pepfetch fetch -m -o reports/pepfetch.md`,
		Args: cobra.ArbitraryArgs,
		RunE: runFetchCmd,
	}

	addFetchFlags(cmd)

	return cmd
}

// addFetchFlags registers the fetch flags on cmd.
// The root command shares them so that a bare "pepfetch" fetches.
func addFetchFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	// Source and destination
	flags.String("index-url", config.DefaultIndexURL,
		"URL of the JSON PEP index")
	flags.StringP("output-dir", "d", config.DefaultOutputDir,
		"Directory the pep-NNNN.txt files are written to")
	flags.String("selector", config.DefaultSelector,
		"CSS selector of the content region")

	// Request behavior
	flags.DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request (0 disables it)")
	flags.IntP("concurrency", "c", config.DefaultConcurrency,
		"Maximum number of concurrent downloads (0 means unlimited)")
	flags.String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	flags.Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response size in bytes")

	// Network
	flags.String("proxy", "",
		"Route requests through a SOCKS5 proxy at host:port")
	flags.Bool("tor", false,
		"Route requests through an embedded Tor daemon")
	flags.DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration file
	flags.String("config", "",
		"Configuration file path (default: .pepfetch in current or home directory)")

	// Report flags
	flags.BoolP("json", "j", false,
		"Output JSON summary (mutually exclusive with --markdown)")
	flags.BoolP("markdown", "m", false,
		"Output Markdown summary (mutually exclusive with --json)")
	flags.StringP("output", "o", "",
		"Write summary to specified file path (creates directories if needed)")
	flags.Bool("progress", false,
		"Show a progress bar on stderr")

	// History
	flags.Bool("no-history", false,
		"Do not record this run in the history database")
	flags.String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")
}

// runFetchCmd executes the fetch command.
func runFetchCmd(cmd *cobra.Command, args []string) error {
	cfg, numbers, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := applog.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runFetch(ctx, cfg, numbers, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from defaults, the config file and the
// flags the user set explicitly, and parses the positional PEP numbers.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, []model.Number, error) {
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", err, configPath)
		}
		return nil, nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Flags override the file only when set on the command line.
	err = errors.Join(
		overrideString(flags, "index-url", &cfg.IndexURL),
		overrideString(flags, "output-dir", &cfg.OutputDir),
		overrideString(flags, "selector", &cfg.Selector),
		overrideDuration(flags, "timeout", &cfg.Timeout),
		overrideInt(flags, "concurrency", &cfg.Concurrency),
		overrideString(flags, "user-agent", &cfg.UserAgent),
		overrideInt64(flags, "max-body-size", &cfg.MaxBodySize),
		overrideString(flags, "proxy", &cfg.ProxyAddress),
		overrideBool(flags, "tor", &cfg.UseTor),
		overrideDuration(flags, "tor-timeout", &cfg.TorStartupTimeout),
		overrideString(flags, "db-dir", &cfg.DBDir),
	)
	if err != nil {
		return nil, nil, err
	}

	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, nil, err
	}
	if noHistory {
		cfg.SaveHistory = false
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, nil, err
	}
	if cfg.Progress, err = flags.GetBool("progress"); err != nil {
		return nil, nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	numbers := make([]model.Number, 0, len(args))
	for _, arg := range args {
		n, err := model.ParseNumber(arg)
		if err != nil {
			return nil, nil, err
		}
		numbers = append(numbers, n)
	}

	return cfg, numbers, nil
}

func overrideString(flags *pflag.FlagSet, name string, dst *string) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetString(name)
	if err == nil {
		*dst = v
	}
	return err
}

func overrideInt(flags *pflag.FlagSet, name string, dst *int) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetInt(name)
	if err == nil {
		*dst = v
	}
	return err
}

func overrideInt64(flags *pflag.FlagSet, name string, dst *int64) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetInt64(name)
	if err == nil {
		*dst = v
	}
	return err
}

func overrideBool(flags *pflag.FlagSet, name string, dst *bool) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetBool(name)
	if err == nil {
		*dst = v
	}
	return err
}

func overrideDuration(flags *pflag.FlagSet, name string, dst *time.Duration) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetDuration(name)
	if err == nil {
		*dst = v
	}
	return err
}

// runFetch loads the index, fetches the selected PEPs and writes the summary.
// Item failures are part of the summary; only setup and index failures are
// returned.
func runFetch(ctx context.Context, cfg *config.Config, numbers []model.Number, logger *slog.Logger, stdout, stderr io.Writer) error {
	extractor, err := extract.New(cfg.Selector)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	network, err := openNetwork(ctx, cfg, logger, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := network.Close(); err != nil {
			logger.Error("failed to close network", "network", network.Name(), "error", err)
		}
	}()

	idx, err := loadIndex(ctx, cfg, network, logger)
	if err != nil {
		return err
	}

	if len(numbers) > 0 {
		var missing []model.Number
		idx, missing = idx.Select(numbers...)
		for _, n := range missing {
			logger.Warn("PEP not found in index", "pep", n.String())
		}
	}

	opts := []fetcher.Option{
		fetcher.WithNetwork(network),
		fetcher.WithExtractor(extractor),
		fetcher.WithConcurrency(cfg.Concurrency),
		fetcher.WithMaxBodySize(cfg.EffectiveMaxBodySize()),
		fetcher.WithLogger(logger),
	}

	var (
		db    *database.HistoryDB
		runID int64
	)
	// History writes ignore cancellation so an interrupted run is still recorded.
	dbCtx := context.WithoutCancel(ctx)
	if cfg.SaveHistory {
		var digests map[model.Number]string
		db, runID, digests, err = openHistory(dbCtx, cfg, network.Name())
		if err != nil {
			logger.Warn("history disabled for this run", "error", err)
		} else {
			defer db.Close()
			logger.Debug("history database opened", "path", db.Path(), "run", runID)

			opts = append(opts,
				fetcher.WithPreviousDigests(func(n model.Number) (string, bool) {
					digest, ok := digests[n]
					return digest, ok
				}),
				fetcher.WithOutcomeHook(func(o model.Outcome) {
					if err := db.RecordOutcome(dbCtx, runID, o); err != nil {
						logger.Error("failed to record outcome", "pep", o.Number.String(), "error", err)
					}
				}),
			)
		}
	}

	var bar *progressbar.ProgressBar
	if cfg.Progress {
		bar = newProgressBar(stderr, len(idx))
		opts = append(opts, fetcher.WithOutcomeHook(func(model.Outcome) {
			_ = bar.Add(1) //nolint:errcheck // rendering errors are not actionable
		}))
	}

	summary, err := fetcher.New(store.New(cfg.OutputDir), opts...).FetchAll(ctx, idx)
	if bar != nil {
		_ = bar.Finish() //nolint:errcheck // rendering errors are not actionable
	}
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	summary.IndexURL = cfg.IndexURL
	summary.RunID = runID

	if db != nil {
		if err := db.FinishRun(dbCtx, summary); err != nil {
			logger.Error("failed to finish run record", "run", runID, "error", err)
		}
	}

	return outputReport(cfg, summary, stdout)
}

// openHistory opens the history database, reads the digests of the previous
// run and records the start of a new one. The database is closed on error.
func openHistory(ctx context.Context, cfg *config.Config, networkName string) (*database.HistoryDB, int64, map[model.Number]string, error) {
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to open history database: %w", err)
	}

	digests, err := db.LatestDigests(ctx)
	if err != nil {
		_ = db.Close() //nolint:errcheck // the read error is reported instead
		return nil, 0, nil, fmt.Errorf("failed to read previous digests: %w", err)
	}

	runID, err := db.BeginRun(ctx, cfg.IndexURL, cfg.OutputDir, networkName, time.Now())
	if err != nil {
		_ = db.Close() //nolint:errcheck // the write error is reported instead
		return nil, 0, nil, fmt.Errorf("failed to record run: %w", err)
	}
	return db, runID, digests, nil
}

// openNetwork builds the transport selected by the configuration.
func openNetwork(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer) (*transport.Network, error) {
	opts := []transport.Option{
		transport.WithTimeout(cfg.Timeout),
		transport.WithUserAgent(cfg.UserAgent),
		transport.WithHeaders(cfg.Headers),
	}

	switch {
	case cfg.UseTor:
		fmt.Fprintln(stderr, "Starting embedded Tor daemon...")
		fmt.Fprintf(stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

		network, err := transport.StartTor(ctx, cfg.TorStartupTimeout, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		logger.Info("embedded Tor daemon started", "network", network.Name())
		return network, nil

	case cfg.ProxyAddress != "":
		if status := transport.CheckProxy(ctx, cfg.ProxyAddress); status != transport.ProxyStatusOK {
			return nil, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				status.Err(), cfg.ProxyAddress)
		}

		network, err := transport.SOCKS5(cfg.ProxyAddress, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 network: %w", err)
		}
		logger.Info("SOCKS5 proxy connection verified", "address", cfg.ProxyAddress)
		return network, nil

	default:
		return transport.Direct(opts...), nil
	}
}

// loadIndex downloads the PEP index over its own short-lived session.
func loadIndex(ctx context.Context, cfg *config.Config, network *transport.Network, logger *slog.Logger) (model.Index, error) {
	session, err := network.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open HTTP session: %w", err)
	}
	defer session.Close()

	loader := index.NewLoader(cfg.IndexURL, session.Client(), index.WithLogger(logger))
	idx, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load PEP index from %s: %w", loader.URL(), err)
	}
	return idx, nil
}

// newProgressBar creates the --progress bar.
func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Fetching PEPs"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

// outputReport writes the summary in the requested format.
func outputReport(cfg *config.Config, summary *model.Summary, stdout io.Writer) error {
	format := report.FormatText
	switch {
	case cfg.JSONReport:
		format = report.FormatJSON
	case cfg.MarkdownReport:
		format = report.FormatMarkdown
	}

	output := stdout
	if cfg.ReportFile != "" {
		f, err := report.CreateFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	}

	writer, err := report.New(output, format)
	if err != nil {
		return err
	}
	if _, err := writer.Write(summary); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
