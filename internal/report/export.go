// Package report renders a correlation report to the console and exports
// it to JSON, CSV, TXT, XLSX, and PDF. All writers take the report as
// computed; none of them re-aggregate.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"github.com/inteltool/inteltool/internal/ioc"
)

// SaveJSON writes the full report as indented JSON.
func SaveJSON(r *ioc.Report, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// SaveCSV writes the report's record list with a union-of-keys header in
// sorted order. Records missing a column get an empty cell.
func SaveCSV(r *ioc.Report, path string) error {
	if len(r.IOCs) == 0 {
		return fmt.Errorf("report for %s has no records to export", r.Date)
	}
	rows := flattenAll(r.IOCs)
	header := unionKeys(rows)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		cells := make([]string, len(header))
		for i, key := range header {
			cells[i] = cellString(row[key])
		}
		if err := w.Write(cells); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// SaveTXT writes the console summary table as plain text.
func SaveTXT(r *ioc.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	writeSummaryTable(f, r)
	return nil
}

// SavePDF writes a one-page summary: per-feed counts, the top ranking,
// and the multi-feed duplicates.
func SavePDF(r *ioc.Report, path string) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Report "+r.Date, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 10, "Summary by feed", "", 1, "L", false, 0, "")
	for _, src := range sortedKeys(r.BySource) {
		pdf.CellFormat(0, 8, fmt.Sprintf("%s: %d", src, r.BySource[src]), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 8, fmt.Sprintf("Total: %d", r.TotalIOCs), "", 1, "L", false, 0, "")

	pdf.Ln(4)
	pdf.CellFormat(0, 10, "Top IOCs", "", 1, "L", false, 0, "")
	for _, vc := range r.TopValues {
		pdf.CellFormat(0, 8, fmt.Sprintf("%s - %d", vc.Value, vc.Count), "", 1, "L", false, 0, "")
	}

	if len(r.Duplicates) > 0 {
		pdf.Ln(4)
		pdf.CellFormat(0, 10, "Duplicates", "", 1, "L", false, 0, "")
		for _, val := range sortedDupValues(r.Duplicates) {
			pdf.CellFormat(0, 8, fmt.Sprintf("%s: %s", val, strings.Join(r.Duplicates[val], ", ")), "", 1, "L", false, 0, "")
		}
	}
	return pdf.OutputFileAndClose(path)
}

// SaveXLSX writes a workbook with Summary, By Type, Duplicates, Top, and
// IOC List sheets. The IOC List sheet gets a frozen, filterable header.
func SaveXLSX(r *ioc.Report, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return err
	}
	writeRows(f, summary, append(
		[][]any{{"Feed", "Count"}},
		append(pairRows(r.BySource), []any{"Total", r.TotalIOCs})...,
	))

	if _, err := f.NewSheet("By Type"); err != nil {
		return err
	}
	writeRows(f, "By Type", append([][]any{{"Type", "Count"}}, pairRows(r.ByType)...))

	if _, err := f.NewSheet("Duplicates"); err != nil {
		return err
	}
	dupRows := [][]any{{"IOC", "Feeds"}}
	for _, val := range sortedDupValues(r.Duplicates) {
		dupRows = append(dupRows, []any{val, strings.Join(r.Duplicates[val], ", ")})
	}
	writeRows(f, "Duplicates", dupRows)

	if _, err := f.NewSheet("Top"); err != nil {
		return err
	}
	topRows := [][]any{{"IOC", "Total"}}
	for _, vc := range r.TopValues {
		topRows = append(topRows, []any{vc.Value, vc.Count})
	}
	writeRows(f, "Top", topRows)

	const list = "IOC List"
	if _, err := f.NewSheet(list); err != nil {
		return err
	}
	flat := flattenAll(r.IOCs)
	header := unionKeys(flat)
	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	rows := [][]any{headerRow}
	for _, row := range flat {
		cells := make([]any, len(header))
		for i, key := range header {
			cells[i] = cellString(row[key])
		}
		rows = append(rows, cells)
	}
	writeRows(f, list, rows)

	if len(header) > 0 {
		lastCol, err := excelize.ColumnNumberToName(len(header))
		if err != nil {
			return err
		}
		if err := f.AutoFilter(list, "A1:"+lastCol+"1", nil); err != nil {
			return err
		}
		if err := f.SetColWidth(list, "A", lastCol, 20); err != nil {
			return err
		}
	}
	if err := f.SetPanes(list, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return err
	}

	return f.SaveAs(path)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) {
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = f.SetSheetRow(sheet, cell, &row)
	}
}

// flattenAll projects records into flat maps the way the ledger file
// stores them, so exports and the ledger agree on column names.
func flattenAll(records []ioc.IOC) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

func unionKeys(rows []map[string]any) []string {
	set := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			set[k] = true
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, e := range val {
			parts = append(parts, cellString(e))
		}
		return strings.Join(parts, ", ")
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}

func pairRows(counts map[string]int) [][]any {
	rows := make([][]any, 0, len(counts))
	for _, k := range sortedKeys(counts) {
		rows = append(rows, []any{k, counts[k]})
	}
	return rows
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedDupValues(dups map[string][]string) []string {
	keys := make([]string, 0, len(dups))
	for k := range dups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
