package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Print the search result URLs a harvest would walk",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if n, _ := cmd.Flags().GetInt("pages"); n > 0 {
			cfg.Pages = n
		}
		for _, p := range cfg.SearchPages() {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pagesCmd)
	pagesCmd.Flags().IntP("pages", "n", 0, "override the page count")
}
