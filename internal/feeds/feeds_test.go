package feeds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/inteltool/inteltool/internal/config"
	"github.com/inteltool/inteltool/internal/fetch"
)

var testNow = time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)

func TestDeriveWhenFallbackChain(t *testing.T) {
	cases := []struct {
		name     string
		created  string
		modified string
		wantDate string
		wantTime string
	}{
		{"creation wins", "2025-06-10T08:00:00Z", "2025-06-12T08:00:00Z", "2025-06-10", "2025-06-10T08:00:00Z"},
		{"modification fallback", "", "2025-06-12 08:00:00 UTC", "2025-06-12", "2025-06-12T08:00:00Z"},
		{"ingestion fallback", "", "", "2025-06-18", "2025-06-18T12:00:00Z"},
		{"unparseable falls through", "not-a-time", "", "2025-06-18", "2025-06-18T12:00:00Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			date, ts := deriveWhen(tc.created, tc.modified, testNow)
			if date != tc.wantDate || ts != tc.wantTime {
				t.Errorf("deriveWhen() = (%s, %s), want (%s, %s)", date, ts, tc.wantDate, tc.wantTime)
			}
		})
	}
}

func TestNormalizeAbuse(t *testing.T) {
	details := []abuseDetail{
		{Check: abuseCheck{IPAddress: "1.1.1.1", AbuseConfidenceScore: 95, TotalReports: 42, CountryCode: "US"}},
		{Check: abuseCheck{IPAddress: ""}}, // skipped: no usable value
	}

	iocs := normalizeAbuse(details, testNow)
	if len(iocs) != 1 {
		t.Fatalf("got %d records, want 1", len(iocs))
	}
	rec := iocs[0]
	if rec.Source != "AbuseIPDB" || rec.Type != "IP" || rec.Value != "1.1.1.1" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Extra["totalReports"] != 42 {
		t.Errorf("totalReports = %v", rec.Extra["totalReports"])
	}
	if len(rec.Mitigation) == 0 {
		t.Error("mitigation defaults missing")
	}
	if rec.Tags == nil {
		t.Error("tags must default to empty, not nil")
	}
	if rec.Date != "2025-06-18" {
		t.Errorf("date = %s", rec.Date)
	}
}

func TestNormalizeAbuseIsPure(t *testing.T) {
	details := []abuseDetail{{Check: abuseCheck{IPAddress: "1.1.1.1", LastReportedAt: "2025-06-15T03:00:00Z"}}}
	a := normalizeAbuse(details, testNow)
	b := normalizeAbuse(details, testNow)
	if !reflect.DeepEqual(a, b) {
		t.Error("same payload and timestamp produced different records")
	}
	if a[0].Date != "2025-06-15" {
		t.Errorf("lastReportedAt fallback not applied: %s", a[0].Date)
	}
}

func TestNormalizeOTX(t *testing.T) {
	pulses := []otxPulse{{
		ID:   "p1",
		Name: "Campaign X",
		Tags: []string{"apt"},
		Indicators: []struct {
			Type        string `json:"type"`
			Indicator   string `json:"indicator"`
			Description string `json:"description"`
			Created     string `json:"created"`
		}{
			{Type: "IPv4", Indicator: "2.2.2.2", Created: "2025-06-17T09:30:00"},
			{Type: "domain", Indicator: ""}, // skipped
		},
	}}

	iocs := normalizeOTX(pulses, testNow)
	if len(iocs) != 1 {
		t.Fatalf("got %d records, want 1", len(iocs))
	}
	rec := iocs[0]
	if rec.Source != "OTX" || rec.Type != "IPv4" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Description != "Campaign X" {
		t.Errorf("pulse name fallback not applied: %q", rec.Description)
	}
	if rec.Extra["pulse_id"] != "p1" {
		t.Errorf("extra = %v", rec.Extra)
	}
	if rec.Date != "2025-06-17" {
		t.Errorf("indicator creation time ignored: %s", rec.Date)
	}
}

func TestNormalizeURLHaus(t *testing.T) {
	entries := []urlhausEntry{
		{URL: "http://evil.example/payload", Threat: "malware_download", DateAdded: "2025-06-18 05:00:00 UTC", Tags: []string{"exe"}},
		{URL: ""}, // skipped
	}
	iocs := normalizeURLHaus(entries, testNow)
	if len(iocs) != 1 {
		t.Fatalf("got %d records, want 1", len(iocs))
	}
	rec := iocs[0]
	if rec.Type != "URL" || rec.Source != "URLHaus" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Time != "2025-06-18T05:00:00Z" {
		t.Errorf("time = %s", rec.Time)
	}
}

func TestNormalizeThreatFox(t *testing.T) {
	entries := []threatfoxEntry{
		{IOC: "deadbeef", IOCType: "sha256_hash", ThreatTypeDesc: "payload", FirstSeen: "2025-06-16 20:00:00 UTC"},
		{IOC: "nomalware", IOCType: ""}, // skipped: no type
	}
	iocs := normalizeThreatFox(entries, testNow)
	if len(iocs) != 1 {
		t.Fatalf("got %d records, want 1", len(iocs))
	}
	if iocs[0].Type != "sha256_hash" || iocs[0].Date != "2025-06-16" {
		t.Errorf("record = %+v", iocs[0])
	}
}

func TestAbuseFixtureSource(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "abuse.json")
	content := `[{"check": {"ipAddress": "9.9.9.9", "abuseConfidenceScore": 88, "totalReports": 3}, "reports": []}]`
	if err := os.WriteFile(fixture, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg := &config.Config{
		MockFiles: map[string]string{"abuseipdb": fixture},
		APIKeys:   map[string]string{},
	}
	c := NewAbuseIPDB(fetch.New(), cfg)

	iocs, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(iocs) != 1 || iocs[0].Value != "9.9.9.9" {
		t.Errorf("iocs = %+v", iocs)
	}
}

func TestAbuseMissingCredential(t *testing.T) {
	cfg := &config.Config{APIKeys: map[string]string{}, MockFiles: map[string]string{}}
	c := NewAbuseIPDB(fetch.New(), cfg)

	_, err := c.Collect(context.Background())
	var mce *MissingCredentialError
	if !errors.As(err, &mce) {
		t.Fatalf("want *MissingCredentialError, got %v", err)
	}
	if mce.Feed != "AbuseIPDB" {
		t.Errorf("feed = %q", mce.Feed)
	}
}

func TestOTXMissingCredential(t *testing.T) {
	c := NewOTX(fetch.New(), "")
	_, err := c.Collect(context.Background())
	var mce *MissingCredentialError
	if !errors.As(err, &mce) {
		t.Fatalf("want *MissingCredentialError, got %v", err)
	}
}

func TestOTXCollectAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-OTX-API-KEY") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"results": [{"id": "p1", "name": "n", "indicators": [{"type": "URL", "indicator": "http://x"}]}]}`))
	}))
	defer srv.Close()

	c := NewOTX(fetch.New(), "k")
	c.now = func() time.Time { return testNow }
	c.url = srv.URL
	iocs, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(iocs) != 1 || iocs[0].Value != "http://x" {
		t.Errorf("iocs = %+v", iocs)
	}
}

func TestBuildRespectsActiveOrder(t *testing.T) {
	cfg := &config.Config{
		ActiveCollectors: []string{"urlhaus", "threatfox", "otx", "abuseipdb"},
		APIKeys:          map[string]string{},
		MockFiles:        map[string]string{},
	}
	collectors, err := Build(cfg, fetch.New())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var names []string
	for _, c := range collectors {
		names = append(names, c.Name())
	}
	if !reflect.DeepEqual(names, []string{"urlhaus", "threatfox", "otx", "abuseipdb"}) {
		t.Errorf("order = %v", names)
	}

	if _, err := Build(&config.Config{ActiveCollectors: []string{"shodan"}}, fetch.New()); err == nil {
		t.Error("unknown collector accepted")
	}
}
