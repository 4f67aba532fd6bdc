package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/KaramelBytes/sheetask/internal/assistant"
	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/utils"
	"github.com/spf13/cobra"
)

// defaultOutput is where an applied modification is saved.
const defaultOutput = "modified_excel_file.xlsx"

var (
	askSheet  string
	askApply  bool
	askOutput string
	askJSON   bool
	askRender bool
)

type askResult struct {
	Response  string   `json:"response"`
	Steps     []string `json:"steps,omitempty"`
	PlanError string   `json:"plan_error,omitempty"`
	Applied   bool     `json:"applied"`
	Output    string   `json:"output,omitempty"`
	Rows      int      `json:"rows,omitempty"`
}

var askCmd = &cobra.Command{
	Use:   "ask <file> <query>",
	Short: "Ask a question about a spreadsheet, optionally applying the proposed modification",
	Example: `  sheetask ask sales.xlsx "Which region had the highest sales?"
  sheetask ask sales.xlsx "Keep only rows with Sales over 100" --apply --output big.xlsx
  sheetask ask sales.csv "Total sales per region" --json
  sheetask ask sales.csv "Summarize the trends" --render`,
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
		_, cleaned, err := loadDataset(args[0], askSheet)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if !askJSON {
			fmt.Fprintf(out, "⚙ Asking %s about %s (%d rows) ...\n", c.Model, cleaned.Name, cleaned.NumRows())
		}
		a, err := svc.Analyze(ctx, cleaned, args[1])
		if err != nil {
			return oracleHint(err, c.Model)
		}

		res := askResult{Response: a.Response, Steps: a.Steps}
		if a.PlanErr != nil {
			res.PlanError = a.PlanErr.Error()
		}
		if !askJSON {
			fmt.Fprintln(out, "\nResponse:")
			if askRender {
				fmt.Fprintln(out, renderMarkdown(out, a.Response, 100))
			} else {
				fmt.Fprintln(out, a.Response)
			}
			if a.PlanErr != nil {
				fmt.Fprintf(out, "\n⚠ Modification block ignored: %v\n", a.PlanErr)
			}
		}

		if a.HasModification() {
			apply := askApply
			if !askJSON {
				fmt.Fprintln(out, "\nProposed modification:")
				for i, s := range a.Steps {
					fmt.Fprintf(out, "  %d. %s\n", i+1, s)
				}
				if !apply {
					apply = confirm(cmd.InOrStdin(), out, "Apply modification? [y/N] ")
				}
			}
			if apply {
				modified, err := applyAndSave(svc, cleaned, a, askOutput)
				if err != nil {
					return err
				}
				res.Applied, res.Output, res.Rows = true, askOutput, modified.NumRows()
				if !askJSON {
					fmt.Fprintln(out, "\n✓ Modification applied. Modified data:")
					fmt.Fprintln(out, modified.String())
					fmt.Fprintf(out, "✓ Saved %s\n", askOutput)
				}
			} else if !askJSON {
				fmt.Fprintln(out, "Modification not applied")
			}
		}

		if askJSON {
			b, err := utils.PrettyJSON(res)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
		}
		return nil
	},
}

// applyAndSave runs the plan on a copy of cleaned and writes the result to path.
func applyAndSave(svc *assistant.Service, cleaned *dataset.Dataset, a *assistant.Analysis, path string) (*dataset.Dataset, error) {
	modified, err := svc.Apply(cleaned, a.Plan)
	if err != nil {
		return nil, fmt.Errorf("modification failed, original data unchanged: %w", err)
	}
	if err := writeDataset(path, modified); err != nil {
		return nil, fmt.Errorf("save %s: %w", path, err)
	}
	return modified, nil
}

// confirm asks a yes/no question; anything but y/yes is no.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askSheet, "sheet", "", "sheet to read (default: first sheet)")
	askCmd.Flags().BoolVarP(&askApply, "apply", "y", false, "apply a proposed modification without asking")
	askCmd.Flags().StringVar(&askOutput, "output", defaultOutput, "where to save the modified data (.xlsx or .csv)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "emit the result as JSON; modifications apply only with --apply")
	askCmd.Flags().BoolVar(&askRender, "render", false, "format the response as terminal markdown")
}
