package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/cairndb/cairn/cairn"
)

// formatRows renders result rows as a markdown table. Object rows
// share a column per key; anything else renders under a single value
// column.
func formatRows(rows []cairn.Value) string {
	if len(rows) == 0 {
		return "_No rows_\n"
	}

	columns := collectColumns(rows)

	out := &strings.Builder{}
	alignment := make([]tw.Align, len(columns))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(out,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(columns)

	for _, v := range rows {
		row := make([]string, len(columns))
		if obj, ok := v.(cairn.Object); ok {
			for i, col := range columns {
				row[i] = formatCell(obj[col])
			}
		} else {
			row[len(columns)-1] = formatCell(v)
		}
		table.Append(row)
	}
	table.Render()

	out.WriteString(fmt.Sprintf("\n_%d rows_\n", len(rows)))
	return out.String()
}

// collectColumns unions the keys of every object row, id first.
func collectColumns(rows []cairn.Value) []string {
	seen := map[string]bool{}
	objects := false
	for _, v := range rows {
		obj, ok := v.(cairn.Object)
		if !ok {
			continue
		}
		objects = true
		for k := range obj {
			seen[k] = true
		}
	}
	if !objects {
		return []string{"value"}
	}

	columns := make([]string, 0, len(seen))
	for k := range seen {
		if k != "id" {
			columns = append(columns, k)
		}
	}
	sort.Strings(columns)
	if seen["id"] {
		columns = append([]string{"id"}, columns...)
	}
	return columns
}

func formatCell(v cairn.Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return fmt.Sprintf("%.2f", x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	case cairn.RecordID:
		return x.String()
	}
	return cairn.FormatValue(v)
}
