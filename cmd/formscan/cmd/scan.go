package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/instantwaste/formscan/internal/pipeline"
)

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan [image]",
	Short: "Scan a waste form image and extract its data",
	Long: `Scan a photo or scan of a handwritten waste tracking form and print the
extracted tables.

Examples:
  formscan scan waste-form.jpg
  formscan scan form.png --format json --output result.json
  formscan scan form.jpg --cell-pass`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		pCfg := cfg.PipelineConfig()
		if cellPass, _ := cmd.Flags().GetBool("cell-pass"); cellPass {
			pCfg.Recovery.EnableCellPass = true
		}
		if sharpenOnly, _ := cmd.Flags().GetBool("sharpen-only"); sharpenOnly {
			pCfg.Recovery.SharpenOnly = true
		}

		pl, err := pipeline.NewBuilder().WithConfig(pCfg).Build()
		if err != nil {
			return fmt.Errorf("failed to initialize pipeline: %w", err)
		}

		result, err := pl.ProcessFile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		var rendered string
		switch format {
		case "json":
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			rendered = string(data) + "\n"
		case "text":
			rendered = renderText(result)
		default:
			return fmt.Errorf("unsupported format %q (want json or text)", format)
		}

		output, _ := cmd.Flags().GetString("output")
		if output != "" {
			if err := os.WriteFile(output, []byte(rendered), 0o600); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
		} else {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), rendered)
		}

		for _, warning := range result.Validation.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
		}
		if !result.Validation.Valid {
			for _, e := range result.Validation.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", e)
			}
			return fmt.Errorf("scan produced %d validation error(s)", len(result.Validation.Errors))
		}
		return nil
	},
}

// renderText formats a scan result as a readable report.
func renderText(result *pipeline.ScanResult) string {
	var b strings.Builder
	for _, table := range result.Tables {
		fmt.Fprintf(&b, "%s (%s)\n", table.Name, table.Type)
		if len(table.Rows) == 0 {
			b.WriteString("  (no rows)\n\n")
			continue
		}
		for _, row := range table.Rows {
			fmt.Fprintf(&b, "  %-24s", row.ItemName)
			writeCell(&b, "size", row.Size)
			writeCell(&b, "open", row.Open)
			writeCell(&b, "swing", row.Swing)
			writeCell(&b, "close", row.Close)
			writeCell(&b, "count", row.Count)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(result.Review) > 0 {
		b.WriteString("Needs review:\n")
		for _, item := range result.Review {
			fmt.Fprintf(&b, "  %s / %s / %s: %q (%s)\n",
				item.Table, item.ItemName, item.Column, item.Value, item.Issue)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Recovered cells: %d, duration: %dms\n",
		result.RecoveredCells, result.DurationMillis)
	return b.String()
}

func writeCell(b *strings.Builder, label string, f *pipeline.FieldData) {
	if f == nil {
		return
	}
	value := f.Value
	if value == "" {
		value = "-"
	}
	mark := ""
	if f.NeedsReview {
		mark = "?"
	}
	fmt.Fprintf(b, " %s=%s%s", label, value, mark)
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("format", "f", "text", "output format (json, text)")
	scanCmd.Flags().StringP("output", "o", "", "write output to file instead of stdout")
	scanCmd.Flags().Bool("cell-pass", false, "enable the per-cell third recovery pass")
	scanCmd.Flags().Bool("sharpen-only", false, "retry on the sharpened full page instead of masked columns")
}
