package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sold-listings-scraper/browser"
	"sold-listings-scraper/config"
	"sold-listings-scraper/services"
	"sold-listings-scraper/storage"
	"sold-listings-scraper/utils"
)

// stampLayout names output files, e.g. property_data_250520_0032.csv.
const stampLayout = "060102_1504"

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Discover sold listings and extract them into a dataset",
	RunE:  runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	flags := harvestCmd.Flags()
	flags.IntP("workers", "w", 0, "extraction workers (default: CPUs - 1)")
	flags.IntP("pages", "n", 0, "search result pages to walk")
	flags.String("fixtures", "", "replay saved pages from this directory instead of Chrome")
	flags.String("output-dir", "", "directory for the dataset files")
	flags.Bool("reuse-sessions", false, "keep one browser session per worker")
	flags.Bool("headless", true, "run Chrome headless")
	flags.String("user-agent", "", "browser user agent (default: a random desktop Chrome)")
}

func runHarvest(cmd *cobra.Command, _ []string) error {
	cfg, err := harvestConfig(cmd)
	if err != nil {
		utils.Error("invalid configuration", "error", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := uuid.NewString()
	log := utils.With("run_id", runID)
	log.Info("harvest starting",
		"pages", cfg.Pages,
		"workers", cfg.Workers,
		"delay", fmt.Sprintf("%v-%v", cfg.MinDelay, cfg.MaxDelay),
	)

	b, err := openBrowser(cfg)
	if err != nil {
		log.Error("could not start browser", "error", err)
		return err
	}
	defer b.Close()

	checkpoint, err := storage.NewCheckpointStore(cfg.CheckpointPath)
	if err != nil {
		log.Error("could not open checkpoint", "error", err)
		return err
	}
	defer checkpoint.Close()

	stamp := time.Now().Format(stampLayout)
	writers := []services.RecordWriter{
		storage.NewCSVWriter(filepath.Join(cfg.OutputDir, "property_data_"+stamp+".csv")),
		storage.NewParquetWriter(filepath.Join(cfg.OutputDir, "property_data_"+stamp+".parquet")),
	}
	opts := []services.Option{
		services.WithRunID(runID),
		services.WithCheckpoint(checkpoint),
		services.WithFallback(storage.NewJSONDump(filepath.Join(cfg.OutputDir, "property_raw_"+stamp+".json"))),
	}

	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresWriter(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect PostgreSQL", "error", err)
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("failed to ensure PostgreSQL schema", "error", err)
			return err
		}
		writers = append(writers, pg)
	}

	if cfg.RedisAddr != "" {
		client, err := storage.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Error("failed to connect Redis", "error", err)
			return err
		}
		defer client.Close()
		opts = append(opts, services.WithSeenSet(storage.NewSeenStore(client, "", cfg.SeenTTL)))
	}

	opts = append(opts, services.WithWriters(writers...))
	h, err := services.NewHarvester(cfg, b, opts...)
	if err != nil {
		return err
	}

	sum, err := h.Run(ctx)
	out := cmd.OutOrStdout()
	printSummary(out, sum)
	if len(sum.Records) > 0 {
		services.PrintReport(out, services.GenerateReport(sum.Records))
	}
	if err != nil {
		log.Error("harvest failed", "error", err)
		return err
	}
	return nil
}

// harvestConfig loads the config and applies flags the user set.
func harvestConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("pages") {
		cfg.Pages, _ = flags.GetInt("pages")
	}
	if flags.Changed("fixtures") {
		cfg.FixtureDir, _ = flags.GetString("fixtures")
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("reuse-sessions") {
		cfg.ReuseSessions, _ = flags.GetBool("reuse-sessions")
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent, _ = flags.GetString("user-agent")
	}
	if flags.Changed("headless") {
		cfg.Headless, _ = flags.GetBool("headless")
	}
	return cfg, cfg.Validate()
}

func openBrowser(cfg config.Config) (browser.Browser, error) {
	if cfg.FixtureDir != "" {
		utils.Info("replaying saved pages", "dir", cfg.FixtureDir)
		return browser.LoadStatic(cfg.FixtureDir)
	}
	return browser.NewChrome(browser.ChromeOptions{
		Headless:     cfg.Headless,
		ExecPath:     cfg.ChromePath,
		UserAgent:    cfg.UserAgent,
		QueryTimeout: cfg.ReadyTimeout,
	})
}

func printSummary(w io.Writer, sum services.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                HARVEST COMPLETE              ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Status         : %-26s║\n", sum.Status)
	fmt.Fprintf(w, "║  Search pages   : %-26d║\n", len(sum.Pages))
	fmt.Fprintf(w, "║  Links found    : %-26s║\n", humanize.Comma(int64(sum.Discovered)))
	fmt.Fprintf(w, "║  Resumed        : %-26d║\n", sum.Resumed)
	fmt.Fprintf(w, "║  Skipped        : %-26d║\n", sum.Skipped)
	fmt.Fprintf(w, "║  Attempted      : %-26d║\n", sum.Attempted)
	fmt.Fprintf(w, "║  Succeeded      : %-26d║\n", sum.Succeeded)
	fmt.Fprintf(w, "║  Failed         : %-26d║\n", sum.Failed)
	fmt.Fprintf(w, "║  Complete       : %-26d║\n", sum.Complete)
	fmt.Fprintf(w, "║  Partial        : %-26d║\n", sum.Partial)
	fmt.Fprintf(w, "║  Duration       : %-26s║\n", sum.Duration.Round(time.Second))
	fmt.Fprintln(w, "╚══════════════════════════════════════════════╝")

	if sum.DiscoveryErr != nil {
		fmt.Fprintf(w, "  discovery stopped early: %v\n", sum.DiscoveryErr)
	}
	for _, p := range sum.Pages {
		if p.Err != nil {
			fmt.Fprintf(w, "  page %s: %s (%v)\n", p.URL, p.State, p.Err)
		}
	}
	for _, f := range sum.Failures {
		fmt.Fprintf(w, "  failed %s: %s\n", f.URL, f.Reason)
	}
	for _, o := range sum.Outputs {
		fmt.Fprintf(w, "  wrote %s\n", o)
	}
	fmt.Fprintln(w)
}
