// Command intelreport correlates the alerts ledger into a report and
// renders it to the console or export files (JSON, CSV, TXT, XLSX, PDF).
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/inteltool/inteltool/internal/config"
	"github.com/inteltool/inteltool/internal/correlate"
	"github.com/inteltool/inteltool/internal/ioc"
	"github.com/inteltool/inteltool/internal/ledger"
	"github.com/inteltool/inteltool/internal/report"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to YAML config")
	date := flag.String("date", time.Now().Format("2006-01-02"), "IOC date (YYYY-MM-DD)")
	iocType := flag.String("type", "", "Filter by IOC type")
	source := flag.String("source", "", "Filter by feed")
	value := flag.String("value", "", "Filter by IOC value")
	topCount := flag.Int("top-count", 10, "Number of entries in the top ranking")
	allHistory := flag.Bool("all", false, "Use the full history instead of one date")
	sortByTime := flag.Bool("sort", false, "Sort records by date/time")
	onlyDuplicates := flag.Bool("only-duplicates", false, "Show only the duplicates section")
	onlyTop := flag.Bool("only-top", false, "Show only the top section")
	ledgerPath := flag.String("ledger", "", "Path to the alerts ledger (overrides config)")
	outJSON := flag.String("output-json", "", "Save report as JSON")
	outCSV := flag.String("output-csv", "", "Save report as CSV")
	outTXT := flag.String("output-txt", "", "Save report as TXT")
	outXLSX := flag.String("output-xlsx", "", "Save report as Excel")
	outPDF := flag.String("output-pdf", "", "Save report as PDF")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if *ledgerPath != "" {
		cfg.LedgerPath = *ledgerPath
	}

	led := ledger.Open(cfg.LedgerPath)
	records, err := led.Records()
	if err != nil {
		slog.Error("failed to read ledger", "err", err)
		os.Exit(1)
	}

	rep, err := correlate.Correlate(records, correlate.Options{
		Date:            *date,
		Type:            *iocType,
		Source:          *source,
		Value:           *value,
		AllHistory:      *allHistory,
		SortByTime:      *sortByTime,
		TopCount:        *topCount,
		ExpectedSources: cfg.ExpectedFeeds,
	})
	if err != nil {
		var ese *correlate.EmptyScopeError
		if errors.As(err, &ese) {
			fmt.Println(ese.Error())
			return
		}
		slog.Error("correlation failed", "err", err)
		os.Exit(1)
	}

	report.Print(os.Stdout, rep, report.View{
		OnlyDuplicates: *onlyDuplicates,
		OnlyTop:        *onlyTop,
	})

	exports := []struct {
		path string
		save func(*ioc.Report, string) error
		kind string
	}{
		{*outJSON, report.SaveJSON, "JSON"},
		{*outCSV, report.SaveCSV, "CSV"},
		{*outTXT, report.SaveTXT, "TXT"},
		{*outXLSX, report.SaveXLSX, "XLSX"},
		{*outPDF, report.SavePDF, "PDF"},
	}
	failed := false
	for _, e := range exports {
		if e.path == "" {
			continue
		}
		if err := e.save(rep, e.path); err != nil {
			slog.Error("export failed", "format", e.kind, "err", err)
			failed = true
			continue
		}
		slog.Info("report saved", "format", e.kind, "path", e.path)
	}
	if failed {
		os.Exit(1)
	}
}
