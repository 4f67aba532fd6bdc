package mediator

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/interpret"
)

// ChartQuery wraps a visualisation description into the query sent to the oracle.
func ChartQuery(description string) string {
	return "Create a chart based on this request: " + strings.TrimSpace(description) +
		". Return only the JSON string for the chart data."
}

// BuildPrompt assembles the full prompt for one query over a cleaned dataset.
func BuildPrompt(ds *dataset.Dataset, query string) string {
	var sb strings.Builder
	sb.WriteString("You are an assistant that analyses and modifies spreadsheet data from natural language queries. ")
	sb.WriteString("Answer accurately from the data given below.\n\n")

	sb.WriteString("[DATASET]\n")
	sb.WriteString("Columns: ")
	sb.WriteString(strings.Join(ds.Columns, ", "))
	sb.WriteString("\nColumn types: ")
	kinds := ds.Kinds()
	for i, c := range ds.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%s", c, kinds[i])
	}
	fmt.Fprintf(&sb, "\nNumber of Rows: %d\n\n", ds.NumRows())

	sb.WriteString("[DATA] (all rows)\n")
	sb.WriteString(ds.String())
	sb.WriteString("\n\n")
	sb.WriteString("The data was cleaned by removing rows and columns with no values, then removing every row with any empty value.\n\n")

	sb.WriteString("[QUERY]\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("[GUIDELINES]\n")
	sb.WriteString(guidelines)
	return sb.String()
}

var guidelines = `1. Data manipulation queries:
   a. Explain the required operations step by step.
   b. Give the operations in exactly one fenced block tagged transform. The block holds JSON of the form
      {"operations": [ ... ]} using only these operations:
` + indent(vocabulary, "      ") + `
      Never return program code. Column names must match the dataset exactly.
   c. Describe the expected result, including changes to columns or rows.
   d. Where possible, show a small sample of the expected output.

2. Data visualisation queries:
   Return only a JSON object with this structure and nothing else:
   {"chart_type": "` + chartTypes() + `",
    "x_column": "column_name",
    "y_column": "column_name",
    "title": "Chart Title",
    "additional_parameters": {}}

3. Analysis queries:
   a. Answer from the entire dataset.
   b. Include relevant statistics or summaries.
   c. Point out notable patterns, outliers or insights.

4. If the query cannot be answered from this data, explain why and suggest alternatives.

5. State any assumptions made while interpreting the query.

6. Suggest how the user can verify the result.

Make the answer accurate and address the query directly. If any part of the query is ambiguous, ask for clarification before analysing or modifying the data.
`

const vocabulary = `{"op": "filter", "column": "C", "operator": "==|!=|>|>=|<|<=|contains", "value": V}
{"op": "sort", "column": "C", "descending": true|false}
{"op": "rename", "column": "C", "to": "NewName"}
{"op": "select", "columns": ["C1", "C2"]}
{"op": "drop", "columns": ["C1"]}
{"op": "derive", "column": "New", "left": "C1", "operator": "+|-|*|/", "right": "C2" or number}
{"op": "replace", "column": "C", "from": V, "to": V}
{"op": "aggregate", "group_by": ["C1"], "column": "C2", "func": "sum|mean|min|max|count|median|std"}
{"op": "dedupe", "columns": ["C1"]}
{"op": "head", "n": 10}`

func chartTypes() string {
	names := make([]string, len(interpret.ChartTypes))
	for i, t := range interpret.ChartTypes {
		names[i] = string(t)
	}
	return strings.Join(names, "/")
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
