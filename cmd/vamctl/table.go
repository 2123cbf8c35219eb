package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/nnanto/gpuva/holes"
)

// renderHoles prints the free list as a table, one hole per row.
func renderHoles(w io.Writer, hs []holes.Hole) error {
	table := tablewriter.NewTable(w, tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
		Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.On}},
	})))
	table.Header([]string{"#", "Offset", "End", "Size"})

	for i, h := range hs {
		row := []string{
			strconv.Itoa(i),
			fmt.Sprintf("%#x", h.Offset),
			fmt.Sprintf("%#x", h.End()),
			humanize.IBytes(h.Size),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
