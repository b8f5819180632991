// Package pipeline orchestrates one collection run: fan out over the
// active collectors, contain per-feed failures, then funnel every batch
// through a single serialized ledger append.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inteltool/inteltool/internal/feeds"
	"github.com/inteltool/inteltool/internal/ioc"
	"github.com/inteltool/inteltool/internal/ledger"
	"github.com/inteltool/inteltool/internal/metrics"
)

// AllFeedsSkippedError aggregates the missing-credential skips when no
// active feed could run at all.
type AllFeedsSkippedError struct {
	Feeds []string
}

func (e *AllFeedsSkippedError) Error() string {
	return fmt.Sprintf("no indicators collected: all active feeds skipped (missing credentials: %s)", strings.Join(e.Feeds, ", "))
}

// RunResult summarizes one collection run.
type RunResult struct {
	RunID     string
	Collected int
	Added     int
	Skipped   []string
	Failed    []string
	Duration  time.Duration
}

// Pipeline wires collectors to the ledger.
type Pipeline struct {
	ledger  *ledger.Ledger
	dataDir string
}

func New(led *ledger.Ledger, dataDir string) *Pipeline {
	return &Pipeline{ledger: led, dataDir: dataDir}
}

// Run executes all collectors in parallel and appends the collected
// records in collector order. Fetch and credential failures are contained
// at the feed boundary; ledger I/O failures propagate.
func (p *Pipeline) Run(ctx context.Context, collectors []feeds.Collector) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{RunID: uuid.New().String()}
	log := slog.With("run_id", result.RunID)

	batches := make([][]ioc.IOC, len(collectors))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, c := range collectors {
		wg.Add(1)
		go func(i int, c feeds.Collector) {
			defer wg.Done()
			records, err := c.Collect(ctx)
			if err != nil {
				var mce *feeds.MissingCredentialError
				if errors.As(err, &mce) {
					log.Warn("feed skipped", "feed", c.Name(), "reason", "missing credential")
					metrics.FeedsSkipped.WithLabelValues(c.Name()).Inc()
					mu.Lock()
					result.Skipped = append(result.Skipped, c.Name())
					mu.Unlock()
					return
				}
				log.Error("feed collection failed", "feed", c.Name(), "err", err)
				metrics.FeedErrors.WithLabelValues(c.Name(), "fetch").Inc()
				mu.Lock()
				result.Failed = append(result.Failed, c.Name())
				mu.Unlock()
				return
			}
			log.Info("feed collected", "feed", c.Name(), "iocs", len(records))
			metrics.IOCsCollected.WithLabelValues(c.Name()).Add(float64(len(records)))
			if err := p.saveDailySnapshot(c.Name(), records); err != nil {
				log.Warn("daily snapshot not written", "feed", c.Name(), "err", err)
			}
			batches[i] = records
		}(i, c)
	}
	wg.Wait()

	if len(result.Skipped) == len(collectors) && len(collectors) > 0 {
		return nil, &AllFeedsSkippedError{Feeds: result.Skipped}
	}

	// Deterministic append order: collector config order, each batch in
	// its own input order.
	var all []ioc.IOC
	for _, batch := range batches {
		all = append(all, batch...)
	}
	result.Collected = len(all)
	if len(all) == 0 {
		log.Info("no indicators collected")
		result.Duration = time.Since(start)
		return result, nil
	}

	added, err := p.ledger.Append(all)
	if err != nil {
		return nil, err
	}
	result.Added = added
	metrics.IOCsAdded.Add(float64(added))
	metrics.IOCsDeduplicated.Add(float64(result.Collected - added))
	if added > 0 {
		log.Info("ledger updated", "added", added)
	} else {
		log.Info("ledger already up to date")
	}

	if records, err := p.ledger.Records(); err == nil {
		metrics.LedgerSize.Set(float64(len(records)))
	}
	if dups, err := p.ledger.DuplicateValues(); err == nil && len(dups) > 0 {
		log.Warn("values reported under multiple types", "values", strings.Join(dups, ", "))
	}

	result.Duration = time.Since(start)
	metrics.RunsCompleted.Inc()
	metrics.RunDuration.Observe(result.Duration.Seconds())
	return result, nil
}

// saveDailySnapshot writes the feed's batch under
// <dataDir>/<feed>/<YYYY-MM-DD>.json.
func (p *Pipeline) saveDailySnapshot(feed string, records []ioc.IOC) error {
	if p.dataDir == "" || len(records) == 0 {
		return nil
	}
	dir := filepath.Join(p.dataDir, feed)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	name := time.Now().UTC().Format("2006-01-02") + ".json"
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}
