package headless

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/bakeops/bakeops/api/pkg/types"
)

// WriteReport renders a headless report for the terminal: a run header, the
// per-interval step table unless the report is condensed, the per-item
// summary and the day's totals.
func WriteReport(w io.Writer, report *types.HeadlessReport) {
	fmt.Fprintf(w, "Simulation %s  date %s  mode %s  algorithm %s  every %d min\n",
		report.SimulationID, report.Date, report.Mode, report.Algorithm, report.IntervalMins)
	if report.AutoAdd {
		fmt.Fprintf(w, "Auto-add on: up to %d proposals per interval at >= %d%% confidence\n",
			report.MaxPerInterval, report.MinConfidence)
	}
	fmt.Fprintln(w)

	if !report.Condensed {
		table := newReportTable(w)
		table.SetHeader([]string{"Time", "Proposals", "Accepted", "Inventory", "Processed", "Missed", "Active Batches"})
		for _, step := range report.Steps {
			table.Append([]string{
				step.Time,
				strconv.Itoa(step.Proposals),
				strconv.Itoa(step.Accepted),
				strconv.Itoa(step.TotalInventory),
				strconv.Itoa(step.ItemsProcessed),
				strconv.Itoa(step.ItemsMissed),
				strconv.Itoa(step.ActiveBatches),
			})
		}
		table.Render()
		fmt.Fprintln(w)
	}

	items := newReportTable(w)
	items.SetHeader([]string{"Item", "Processed", "Missed", "Final Inventory"})
	for _, item := range report.Items {
		items.Append([]string{
			item.DisplayName,
			humanize.Comma(int64(item.ItemsProcessed)),
			humanize.Comma(int64(item.ItemsMissed)),
			humanize.Comma(int64(item.FinalInventory)),
		})
	}
	items.Render()
	fmt.Fprintln(w)

	totals := report.Totals
	fmt.Fprintf(w, "Batches: %s started, %s pulled, %s available",
		humanize.Comma(int64(totals.BatchesStarted)),
		humanize.Comma(int64(totals.BatchesPulled)),
		humanize.Comma(int64(totals.BatchesAvailable)))
	if totals.SuggestionsAccepted > 0 {
		fmt.Fprintf(w, " (%s from suggestions)", humanize.Comma(int64(totals.SuggestionsAccepted)))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Units:   %s processed, %s missed, peak inventory %s, left over %s\n",
		humanize.Comma(int64(totals.ItemsProcessed)),
		humanize.Comma(int64(totals.ItemsMissed)),
		humanize.Comma(int64(totals.PeakInventory)),
		humanize.Comma(int64(totals.FinalInventory)))
	fmt.Fprintf(w, "Ran in %s\n", report.Duration.Round(time.Millisecond))
}

func newReportTable(w io.Writer) *tablewriter.Table {
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
	table.SetTablePadding(" ")
	table.SetNoWhiteSpace(false)
	return table
}
