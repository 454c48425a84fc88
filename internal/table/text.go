package table

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// WriteText prints the grid as a terminal table.
func WriteText(w io.Writer, g Grid) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(g.Headers())
	tw.SetAutoWrapText(false)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, row := range g.Rows {
		tw.Append(row.Cells)
	}
	tw.Render()
}
