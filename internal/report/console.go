package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/inteltool/inteltool/internal/ioc"
)

// View selects which report sections Print renders.
type View struct {
	OnlyDuplicates bool
	OnlyTop        bool
}

// Print renders the report as console tables. The default view shows the
// summary, duplicates, and top sections; OnlyDuplicates and OnlyTop
// narrow it to one section.
func Print(w io.Writer, r *ioc.Report, view View) {
	if !view.OnlyDuplicates && !view.OnlyTop {
		writeSummaryTable(w, r)
	}

	if !view.OnlyTop {
		if len(r.Duplicates) > 0 {
			fmt.Fprintf(w, "\nDuplicates\n")
			table := tablewriter.NewWriter(w)
			table.SetHeader([]string{"IOC", "Feeds"})
			for _, val := range sortedDupValues(r.Duplicates) {
				table.Append([]string{val, strings.Join(r.Duplicates[val], ", ")})
			}
			table.Render()
		} else {
			fmt.Fprintln(w, "No correlation between feeds.")
		}
	}

	if !view.OnlyDuplicates {
		recurring := recurringValues(r.TopValues)
		if len(recurring) > 0 {
			fmt.Fprintf(w, "\nTop\n")
			table := tablewriter.NewWriter(w)
			table.SetHeader([]string{"IOC", "Total"})
			for _, vc := range recurring {
				table.Append([]string{vc.Value, strconv.Itoa(vc.Count)})
			}
			table.Render()
		} else if view.OnlyTop {
			fmt.Fprintln(w, "No recurring IOC found.")
		}
	}
}

func writeSummaryTable(w io.Writer, r *ioc.Report) {
	fmt.Fprintf(w, "Summary %s\n", r.Date)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Feed", "Count", "%"})
	sources := make([]string, 0, len(r.BySource))
	for src := range r.BySource {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	for _, src := range sources {
		table.Append([]string{
			src,
			strconv.Itoa(r.BySource[src]),
			fmt.Sprintf("%.1f%%", r.Coverage[src]),
		})
	}
	table.Append([]string{"Total", strconv.Itoa(r.TotalIOCs), "100%"})
	if len(r.MissingFeeds) > 0 {
		table.SetCaption(true, "Missing: "+strings.Join(r.MissingFeeds, ", "))
	}
	table.Render()
}

// recurringValues keeps only top entries seen more than once.
func recurringValues(top []ioc.ValueCount) []ioc.ValueCount {
	var out []ioc.ValueCount
	for _, vc := range top {
		if vc.Count > 1 {
			out = append(out, vc)
		}
	}
	return out
}
