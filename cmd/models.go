package cmd

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/KaramelBytes/sheetask/internal/ai"
	cfgpkg "github.com/KaramelBytes/sheetask/internal/config"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect or extend the model catalog used for context-window checks",
	Example: `  sheetask models show
  sheetask models sync --file ./models.json`,
}

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		keys := make([]string, 0, len(cat))
		for k := range cat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := cmd.OutOrStdout()
		for _, k := range keys {
			mi := cat[k]
			fmt.Fprintf(out, "%-36s %-11s context=%-8d in/1K=$%.6f out/1K=$%.6f\n", k, mi.Provider, mi.ContextTokens, mi.InputPerK, mi.OutputPerK)
		}
		return nil
	},
}

var syncPath string

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge a JSON model catalog and remember it in the config",
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		ai.MergeCatalog(m)
		abs, err := filepath.Abs(syncPath)
		if err != nil {
			return err
		}
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		cfg.ModelsFile = abs
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Merged %d models from %s\n", len(m), abs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsSyncCmd)
	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
}
