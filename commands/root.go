// Package commands implements the CLI commands for the sold-listings
// harvester.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sold-listings-scraper/config"
	"sold-listings-scraper/utils"
)

var rootCmd = &cobra.Command{
	Use:   "sold-listings",
	Short: "Harvest sold property records from domain.com.au",
	Long: `Harvests sold listings from domain.com.au search results into a
CSV and Parquet dataset, and optionally enriches them with attributes
read from the listing descriptions.

Examples:
  # Harvest with the built-in search (ACT suburbs, 2 bedrooms)
  sold-listings harvest

  # Use a config file and four workers
  sold-listings harvest --config harvest.yaml --workers 4

  # Replay saved pages instead of launching Chrome
  sold-listings harvest --fixtures testdata/site

  # Enrich a finished dataset
  sold-listings enrich --input outdata/property_data_250520_0032.parquet`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(utils.LogOptions{
			Debug: viper.GetBool("debug"),
			Quiet: viper.GetBool("quiet"),
			JSON:  viper.GetBool("json_logs"),
		})
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML config file (defaults are used when empty)")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "only log errors")
	flags.Bool("json-logs", false, "log as JSON lines")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("json_logs", flags.Lookup("json-logs"))

	viper.SetEnvPrefix("HARVEST")
	viper.AutomaticEnv()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file named by --config and the environment.
func loadConfig() (config.Config, error) {
	return config.Load(viper.GetString("config"))
}
