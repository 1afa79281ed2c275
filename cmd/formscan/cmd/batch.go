package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/instantwaste/formscan/internal/batch"
	"github.com/instantwaste/formscan/internal/pipeline"
)

// batchCmd represents the batch command.
var batchCmd = &cobra.Command{
	Use:   "batch [paths...]",
	Short: "Scan a set of waste form images",
	Long: `Scan multiple form images, or whole directories of them, through a shared
pipeline with a worker pool.

Examples:
  formscan batch forms/
  formscan batch forms/ --recursive --workers 4
  formscan batch forms/ --include "*.jpg" --format json --output results.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		pCfg := cfg.PipelineConfig()
		if cellPass, _ := cmd.Flags().GetBool("cell-pass"); cellPass {
			pCfg.Recovery.EnableCellPass = true
		}

		pl, err := pipeline.NewBuilder().WithConfig(pCfg).Build()
		if err != nil {
			return fmt.Errorf("failed to initialize pipeline: %w", err)
		}

		bCfg := batch.DefaultConfig()
		if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
			bCfg.Workers = workers
		}
		bCfg.Recursive, _ = cmd.Flags().GetBool("recursive")
		bCfg.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
		bCfg.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")

		res, err := batch.Process(cmd.Context(), pl, args, bCfg)
		if err != nil {
			return fmt.Errorf("batch scan failed: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		var rendered string
		switch format {
		case "json":
			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode results: %w", err)
			}
			rendered = string(data) + "\n"
		case "text":
			rendered = renderBatchText(res)
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

		if res.Failed > 0 {
			return fmt.Errorf("%d of %d files failed", res.Failed, len(res.Files))
		}
		return nil
	},
}

// renderBatchText formats a batch result as one line per file.
func renderBatchText(res *batch.Result) string {
	var b strings.Builder
	for _, fr := range res.Files {
		if fr.Err != "" {
			fmt.Fprintf(&b, "%s: failed: %s\n", fr.Path, fr.Err)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", fr.Path, fr.Result.Summary())
	}
	b.WriteString(res.Summary())
	b.WriteString("\n")
	return b.String()
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("format", "f", "text", "output format (json, text)")
	batchCmd.Flags().StringP("output", "o", "", "write output to file instead of stdout")
	batchCmd.Flags().Bool("cell-pass", false, "enable the per-cell third recovery pass")
	batchCmd.Flags().IntP("workers", "w", 0, "number of concurrent scans (default: CPU count)")
	batchCmd.Flags().BoolP("recursive", "r", false, "recurse into subdirectories")
	batchCmd.Flags().StringSlice("include", nil, "glob patterns of files to include")
	batchCmd.Flags().StringSlice("exclude", nil, "glob patterns of files to exclude")
}
