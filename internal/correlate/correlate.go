// Package correlate computes cross-feed statistics over a set of IOC
// records: per-source and per-type counts, multi-source duplicates, top
// values, feed coverage, and missing expected feeds. All functions are
// pure; nothing here mutates persisted state.
package correlate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/inteltool/inteltool/internal/ioc"
)

// DefaultTopCount limits the top-values ranking when none is given.
const DefaultTopCount = 10

// EmptyScopeError reports that no records matched the requested scope.
type EmptyScopeError struct {
	Scope string
}

func (e *EmptyScopeError) Error() string {
	return fmt.Sprintf("no IOCs found for %s", e.Scope)
}

// Options selects and shapes the record set before aggregation.
type Options struct {
	Date   string
	Type   string
	Source string
	Value  string

	// AllHistory skips the date filter.
	AllHistory bool
	// SortByTime orders the returned record set by time (falling back to
	// date); aggregate counts are unaffected.
	SortByTime      bool
	TopCount        int
	ExpectedSources []string
}

func (o Options) scope() string {
	var parts []string
	if !o.AllHistory && o.Date != "" {
		parts = append(parts, "date "+o.Date)
	}
	if o.Type != "" {
		parts = append(parts, "type "+o.Type)
	}
	if o.Source != "" {
		parts = append(parts, "source "+o.Source)
	}
	if o.Value != "" {
		parts = append(parts, "value "+o.Value)
	}
	if len(parts) == 0 {
		return "the full history"
	}
	return strings.Join(parts, ", ")
}

// Filter returns the records matching the exact-match filters in opts.
func Filter(records []ioc.IOC, opts Options) []ioc.IOC {
	var out []ioc.IOC
	for _, rec := range records {
		if !opts.AllHistory && opts.Date != "" && rec.Date != opts.Date {
			continue
		}
		if opts.Type != "" && rec.Type != opts.Type {
			continue
		}
		if opts.Source != "" && rec.Source != opts.Source {
			continue
		}
		if opts.Value != "" && rec.Value != opts.Value {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Correlate aggregates the filtered record set into a Report. It fails
// with *EmptyScopeError when the scope matches nothing.
func Correlate(records []ioc.IOC, opts Options) (*ioc.Report, error) {
	daily := Filter(records, opts)
	if len(daily) == 0 {
		return nil, &EmptyScopeError{Scope: opts.scope()}
	}
	if opts.SortByTime {
		sort.SliceStable(daily, func(i, j int) bool {
			return sortKey(daily[i]) < sortKey(daily[j])
		})
	}

	bySource := make(map[string]int)
	byType := make(map[string]int)
	// occurrences keeps per-value source lists; valueOrder remembers first
	// encounter so top-value ties stay deterministic.
	occurrences := make(map[string][]string)
	var valueOrder []string
	for _, rec := range daily {
		bySource[rec.Source]++
		byType[rec.Type]++
		if _, seen := occurrences[rec.Value]; !seen {
			valueOrder = append(valueOrder, rec.Value)
		}
		occurrences[rec.Value] = append(occurrences[rec.Value], rec.Source)
	}
	total := len(daily)

	duplicates := make(map[string][]string)
	for value, sources := range occurrences {
		distinct := distinctSorted(sources)
		if len(distinct) > 1 {
			duplicates[value] = distinct
		}
	}

	topCount := opts.TopCount
	if topCount <= 0 {
		topCount = DefaultTopCount
	}
	top := make([]ioc.ValueCount, 0, len(valueOrder))
	for _, value := range valueOrder {
		top = append(top, ioc.ValueCount{Value: value, Count: len(occurrences[value])})
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Count > top[j].Count })
	if len(top) > topCount {
		top = top[:topCount]
	}

	coverage := make(map[string]float64, len(bySource))
	for source, cnt := range bySource {
		coverage[source] = round2(float64(cnt) / float64(total) * 100)
	}

	var missing []string
	for _, feed := range opts.ExpectedSources {
		if _, ok := bySource[feed]; !ok {
			missing = append(missing, feed)
		}
	}

	report := &ioc.Report{
		Date:         opts.Date,
		TotalIOCs:    total,
		BySource:     bySource,
		ByType:       byType,
		Duplicates:   duplicates,
		TopValues:    top,
		Coverage:     coverage,
		MissingFeeds: missing,
		IOCs:         daily,
	}
	report.Insights = insights(report, daily)
	return report, nil
}

// insights derives the human-readable summary lines. Purely a function of
// the computed fields.
func insights(r *ioc.Report, daily []ioc.IOC) []string {
	var out []string
	if len(r.BySource) > 0 {
		main, best := "", -1
		// First-encountered source wins ties, matching record order.
		seen := map[string]bool{}
		for _, rec := range daily {
			if seen[rec.Source] {
				continue
			}
			seen[rec.Source] = true
			if cnt := r.BySource[rec.Source]; cnt > best {
				main, best = rec.Source, cnt
			}
		}
		scope := r.Date
		if scope == "" {
			scope = "the selected scope"
		}
		out = append(out, fmt.Sprintf("%s accounts for %.0f%% of the IOCs for %s.", main, r.Coverage[main], scope))
	}
	if len(r.Duplicates) > 0 {
		out = append(out, fmt.Sprintf("%d IOCs were reported by more than one feed.", len(r.Duplicates)))
	} else {
		out = append(out, "No IOC was reported by more than one feed.")
	}
	return out
}

// Record is the per-value correlation result across feeds.
type Record struct {
	Value       string   `json:"ioc_value"`
	Type        string   `json:"ioc_type"`
	Sources     []string `json:"sources"`
	SourceCount int      `json:"source_count"`
	RiskScore   int      `json:"risk_score"`
}

// BuildCorrelation groups records by value and scores each value by the
// number of distinct feeds reporting it (10 points per feed). Results are
// ordered by risk descending, then value.
func BuildCorrelation(records []ioc.IOC) []Record {
	type group struct {
		typ     string
		sources []string
	}
	groups := make(map[string]*group)
	var order []string
	for _, rec := range records {
		g, ok := groups[rec.Value]
		if !ok {
			g = &group{typ: rec.Type}
			groups[rec.Value] = g
			order = append(order, rec.Value)
		}
		g.sources = append(g.sources, rec.Source)
	}

	out := make([]Record, 0, len(order))
	for _, value := range order {
		g := groups[value]
		distinct := distinctSorted(g.sources)
		out = append(out, Record{
			Value:       value,
			Type:        g.typ,
			Sources:     distinct,
			SourceCount: len(distinct),
			RiskScore:   len(distinct) * 10,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func distinctSorted(sources []string) []string {
	set := make(map[string]bool, len(sources))
	for _, s := range sources {
		set[s] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sortKey(rec ioc.IOC) string {
	if rec.Time != "" {
		return rec.Time
	}
	return rec.Date
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
