package cmd

import (
	"context"
	"fmt"

	"github.com/KaramelBytes/sheetask/internal/utils"
	"github.com/spf13/cobra"
)

var (
	chartSheet  string
	chartOutput string
)

var chartCmd = &cobra.Command{
	Use:   "chart <file> <description>",
	Short: "Ask the model for a chart of a spreadsheet and render it to HTML",
	Example: `  sheetask chart sales.xlsx "bar chart of sales by region"
  sheetask chart sales.xlsx "distribution of order values" --output orders.html`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		logger := newLogger(c)
		defer func() { _ = logger.Sync() }()
		svc, err := newAssistant(c, logger)
		if err != nil {
			return err
		}
		_, cleaned, err := loadDataset(args[0], chartSheet)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ch, err := svc.Visualize(ctx, cleaned, args[1])
		if err != nil {
			return oracleHint(err, c.Model)
		}
		html, err := ch.HTML()
		if err != nil {
			return fmt.Errorf("render chart: %w", err)
		}
		if err := utils.SafeWriteFile(chartOutput, html, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s chart %q written to %s\n", ch.Spec.ChartType, ch.Spec.Title, chartOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.Flags().StringVar(&chartSheet, "sheet", "", "sheet to read (default: first sheet)")
	chartCmd.Flags().StringVar(&chartOutput, "output", "chart.html", "where to write the chart HTML")
}
