package commands

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// newTable returns a borderless, left-aligned table writer.
func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	return table
}

// printKeyValues prints a two column key/value table without headers.
func printKeyValues(w io.Writer, pairs [][2]string) {
	table := newTable(w)
	table.SetAutoFormatHeaders(false)

	for _, p := range pairs {
		table.Append([]string{p[0], p[1]})
	}

	table.Render()
}
