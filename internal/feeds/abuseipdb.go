package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/inteltool/inteltool/internal/config"
	"github.com/inteltool/inteltool/internal/fetch"
	"github.com/inteltool/inteltool/internal/ioc"
)

const (
	abuseSourceName   = "AbuseIPDB"
	abuseBlacklistURL = "https://api.abuseipdb.com/api/v2/blacklist"
	abuseCheckURL     = "https://api.abuseipdb.com/api/v2/check"
	abuseReportsURL   = "https://api.abuseipdb.com/api/v2/reports"
)

type abuseCheck struct {
	IPAddress            string `json:"ipAddress"`
	AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
	TotalReports         int    `json:"totalReports"`
	CountryCode          string `json:"countryCode"`
	LastReportedAt       string `json:"lastReportedAt"`
}

// abuseDetail pairs a check result with its recent reports.
type abuseDetail struct {
	Check   abuseCheck       `json:"check"`
	Reports []map[string]any `json:"reports"`
}

// abuseSource supplies detail entries either from the live API or from a
// static fixture file. The fixture path is selected by configuration, so
// tests and rate-limited runs bypass the network entirely.
type abuseSource interface {
	details(ctx context.Context) ([]abuseDetail, error)
}

type abuseLiveSource struct {
	client            *fetch.Client
	apiKey            string
	confidenceMinimum int
	maxAgeInDays      int
	limitDetails      int
}

func (s *abuseLiveSource) headers() map[string]string {
	return map[string]string{"Key": s.apiKey, "Accept": "application/json"}
}

func (s *abuseLiveSource) details(ctx context.Context) ([]abuseDetail, error) {
	params := url.Values{}
	params.Set("confidenceMinimum", strconv.Itoa(s.confidenceMinimum))
	params.Set("days", strconv.Itoa(s.maxAgeInDays))
	body, err := s.client.Get(ctx, abuseBlacklistURL, s.headers(), params)
	if err != nil {
		return nil, err
	}
	var blacklist struct {
		Data []struct {
			IPAddress string `json:"ipAddress"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &blacklist); err != nil {
		return nil, fmt.Errorf("parse blacklist: %w", err)
	}

	entries := blacklist.Data
	if s.limitDetails > 0 && len(entries) > s.limitDetails {
		entries = entries[:s.limitDetails]
	}
	var details []abuseDetail
	for _, entry := range entries {
		if entry.IPAddress == "" {
			continue
		}
		d, err := s.detail(ctx, entry.IPAddress)
		if err != nil {
			// Per-IP failures cost one entry, not the feed.
			continue
		}
		details = append(details, d)
	}
	return details, nil
}

func (s *abuseLiveSource) detail(ctx context.Context, ip string) (abuseDetail, error) {
	params := url.Values{}
	params.Set("ipAddress", ip)
	params.Set("maxAgeInDays", strconv.Itoa(s.maxAgeInDays))

	body, err := s.client.Get(ctx, abuseCheckURL, s.headers(), params)
	if err != nil {
		return abuseDetail{}, err
	}
	var check struct {
		Data abuseCheck `json:"data"`
	}
	if err := json.Unmarshal(body, &check); err != nil {
		return abuseDetail{}, fmt.Errorf("parse check for %s: %w", ip, err)
	}

	params.Set("page", "1")
	body, err = s.client.Get(ctx, abuseReportsURL, s.headers(), params)
	if err != nil {
		return abuseDetail{}, err
	}
	var reports struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &reports); err != nil {
		return abuseDetail{}, fmt.Errorf("parse reports for %s: %w", ip, err)
	}

	return abuseDetail{Check: check.Data, Reports: reports.Data}, nil
}

type abuseFixtureSource struct {
	path string
}

func (s *abuseFixtureSource) details(ctx context.Context) ([]abuseDetail, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", s.path, err)
	}
	var details []abuseDetail
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", s.path, err)
	}
	return details, nil
}

// AbuseIPDB collects high-confidence IPs from the AbuseIPDB blacklist and
// enriches each with its check and report details.
type AbuseIPDB struct {
	source abuseSource
	apiKey string
	mock   bool
	now    func() time.Time
}

// NewAbuseIPDB builds the collector, picking the fixture source when a
// mock file is configured for the feed.
func NewAbuseIPDB(client *fetch.Client, cfg *config.Config) *AbuseIPDB {
	c := &AbuseIPDB{apiKey: cfg.APIKey("abuseipdb"), now: time.Now}
	if mock := cfg.MockFile("abuseipdb"); mock != "" {
		c.mock = true
		c.source = &abuseFixtureSource{path: mock}
		return c
	}
	c.source = &abuseLiveSource{
		client:            client,
		apiKey:            cfg.APIKey("abuseipdb"),
		confidenceMinimum: cfg.ConfidenceMinimum,
		maxAgeInDays:      cfg.MaxAgeInDays,
		limitDetails:      cfg.LimitDetails,
	}
	return c
}

func (c *AbuseIPDB) Name() string { return "abuseipdb" }

func (c *AbuseIPDB) Collect(ctx context.Context) ([]ioc.IOC, error) {
	if !c.mock && c.apiKey == "" {
		return nil, &MissingCredentialError{Feed: abuseSourceName}
	}
	details, err := c.source.details(ctx)
	if err != nil {
		return nil, err
	}
	return normalizeAbuse(details, c.now()), nil
}

// normalizeAbuse maps detail entries into IOC records. Entries without an
// IP are skipped.
func normalizeAbuse(details []abuseDetail, now time.Time) []ioc.IOC {
	var out []ioc.IOC
	for _, d := range details {
		if d.Check.IPAddress == "" {
			continue
		}
		date, ts := deriveWhen("", d.Check.LastReportedAt, now)
		out = append(out, ioc.IOC{
			Date:        date,
			Time:        ts,
			Source:      abuseSourceName,
			Type:        "IP",
			Value:       d.Check.IPAddress,
			Description: fmt.Sprintf("IP with abuse score %d and %d reports.", d.Check.AbuseConfidenceScore, d.Check.TotalReports),
			Tags:        []string{},
			Mitigation:  []string{"Block IP in firewall", "Monitor login attempts from this IP"},
			Extra: map[string]any{
				"abuse_confidence_score": d.Check.AbuseConfidenceScore,
				"totalReports":           d.Check.TotalReports,
				"countryCode":            d.Check.CountryCode,
				"lastReportedAt":         d.Check.LastReportedAt,
				"reports":                d.Reports,
			},
		})
	}
	return out
}
