package cmd

import (
	"fmt"

	"github.com/KaramelBytes/sheetask/internal/analysis"
	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/utils"
	"github.com/spf13/cobra"
)

var (
	inspectSheet   string
	inspectPreview int
	inspectJSON    bool
	inspectProfile bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Load and clean a spreadsheet and show a preview",
	Example: `  sheetask inspect sales.xlsx
  sheetask inspect sales.xlsx --sheet Q2 --preview 20
  sheetask inspect data.csv --json
  sheetask inspect data.csv --profile`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		original, cleaned, err := loadDataset(args[0], inspectSheet)
		if err != nil {
			return err
		}
		stats := dataset.CleanStats(original, cleaned)
		out := cmd.OutOrStdout()
		if inspectJSON {
			kinds := cleaned.Kinds()
			types := make(map[string]string, len(kinds))
			for i, k := range kinds {
				types[cleaned.Columns[i]] = string(k)
			}
			info := map[string]any{
				"file":    cleaned.Name,
				"stats":   stats,
				"types":   types,
				"preview": cleaned.Head(inspectPreview).Records(),
			}
			if inspectProfile {
				info["profile"] = analysis.Profile(cleaned, analysis.Options{})
			}
			b, err := utils.PrettyJSON(info)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}
		fmt.Fprintf(out, "✓ Loaded %s\n", cleaned.Name)
		fmt.Fprintf(out, "Original: %d rows × %d columns\n", stats.OriginalRows, stats.OriginalColumns)
		fmt.Fprintf(out, "Cleaned:  %d rows × %d columns\n", stats.CleanedRows, stats.CleanedColumns)
		if cleaned.NumRows() == 0 {
			fmt.Fprintln(out, "⚠ No complete rows remain after cleaning")
		}
		fmt.Fprintln(out, "\nColumn types:")
		for i, k := range cleaned.Kinds() {
			fmt.Fprintf(out, "  %s: %s\n", cleaned.Columns[i], k)
		}
		fmt.Fprintln(out, "\nCleaned data preview:")
		fmt.Fprintln(out, cleaned.Head(inspectPreview).String())
		if inspectProfile {
			fmt.Fprintln(out)
			fmt.Fprint(out, analysis.Profile(cleaned, analysis.Options{}).Markdown())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectSheet, "sheet", "", "sheet to read (default: first sheet)")
	inspectCmd.Flags().IntVar(&inspectPreview, "preview", 10, "number of rows to preview (0 for all)")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "emit file information as JSON")
	inspectCmd.Flags().BoolVar(&inspectProfile, "profile", false, "include per-column statistics")
}
