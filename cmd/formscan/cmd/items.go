package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/instantwaste/formscan/internal/vocab"
)

// itemsCmd represents the items command.
var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Print the item vocabulary used for matching",
	Long: `Print the item names the matcher recognizes, grouped by waste category.
Handwriting that does not resolve to one of these names is dropped during a
scan, so this list defines what a form can contain.

Examples:
  formscan items
  formscan items --format json
  formscan items --vocab store-items.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		v, err := vocab.Load(cfg.VocabPath)
		if err != nil {
			return fmt.Errorf("failed to load vocabulary: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode vocabulary: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, "Completed waste:")
		for _, item := range v.Items(vocab.CompletedWaste) {
			_, _ = fmt.Fprintf(out, "  %s\n", item)
		}
		_, _ = fmt.Fprintln(out, "Raw waste:")
		for _, item := range v.Items(vocab.RawWaste) {
			_, _ = fmt.Fprintf(out, "  %s\n", item)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(itemsCmd)

	itemsCmd.Flags().StringP("format", "f", "text", "output format (json, text)")
}
