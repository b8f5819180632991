// Package feeds holds the per-feed collectors. Each collector fetches raw
// payloads from its external API (or a configured fixture file), maps them
// into canonical IOC records, and contains its own failures: a broken feed
// contributes zero records without aborting the run.
package feeds

import (
	"context"
	"fmt"

	"github.com/inteltool/inteltool/internal/config"
	"github.com/inteltool/inteltool/internal/fetch"
	"github.com/inteltool/inteltool/internal/ioc"
)

// Collector fetches and normalizes indicators from one feed.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]ioc.IOC, error)
}

// MissingCredentialError marks a credential-requiring feed with no key
// configured. The pipeline skips the feed with a warning.
type MissingCredentialError struct {
	Feed string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("no API key configured for feed %s", e.Feed)
}

// Build returns collectors for the active feeds in config order.
func Build(cfg *config.Config, client *fetch.Client) ([]Collector, error) {
	var out []Collector
	for _, name := range cfg.ActiveCollectors {
		switch name {
		case "abuseipdb":
			out = append(out, NewAbuseIPDB(client, cfg))
		case "otx":
			out = append(out, NewOTX(client, cfg.APIKey("otx")))
		case "urlhaus":
			out = append(out, NewURLHaus(client))
		case "threatfox":
			out = append(out, NewThreatFox(client))
		default:
			return nil, fmt.Errorf("unknown collector %q", name)
		}
	}
	return out, nil
}
