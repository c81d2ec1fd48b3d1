package commands

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sold-listings-scraper/llm"
	"sold-listings-scraper/services"
	"sold-listings-scraper/storage"
	"sold-listings-scraper/utils"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Add description-derived attributes to a harvested dataset",
	Long: `Reads a dataset written by harvest, asks the OpenAI chat API about
each listing description (strata, rates, rental estimate, sizes, outdoor
space, energy rating, year built) and writes listing_info_<stamp> CSV and
Parquet files with the extra columns joined on.`,
	RunE: runEnrich,
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	flags := enrichCmd.Flags()
	flags.StringP("input", "i", "", "dataset to enrich (.parquet, .csv or raw .json)")
	flags.Int("limit", 0, "enrich at most this many listings (0 = all)")
	_ = enrichCmd.MarkFlagRequired("input")
}

var datasetStamp = regexp.MustCompile(`property_(?:data|raw)_(\d{6}_\d{4})`)

func runEnrich(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		utils.Error("invalid configuration", "error", err)
		return err
	}

	input, _ := cmd.Flags().GetString("input")
	limit, _ := cmd.Flags().GetInt("limit")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		utils.Error("could not create OpenAI client", "error", err)
		return err
	}

	rows, err := readDataset(input)
	if err != nil {
		utils.Error("could not read dataset", "path", input, "error", err)
		return err
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	utils.Info("enriching dataset", "path", input, "listings", len(rows), "model", client.Model())

	table, err := services.NewEnricher(client, cfg.EnrichRetries).Enrich(ctx, rows)
	if err != nil {
		utils.Warn("enrichment interrupted, writing what was done", "error", err, "done", len(table))
	}

	combined := services.Join(rows, table)
	base := filepath.Join(cfg.OutputDir, "listing_info_"+outputStamp(input))
	if err := storage.NewCSVWriter(base + ".csv").WriteRows(combined); err != nil {
		return err
	}
	return storage.NewParquetWriter(base + ".parquet").WriteRows(combined)
}

func readDataset(path string) ([]storage.Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return storage.ReadParquet(path)
	case ".csv":
		return storage.ReadCSV(path)
	case ".json":
		return storage.ReadJSONDump(path)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
}

// outputStamp reuses the harvest's stamp so the two files pair up.
func outputStamp(input string) string {
	if m := datasetStamp.FindStringSubmatch(filepath.Base(input)); m != nil {
		return m[1]
	}
	return time.Now().Format(stampLayout)
}
