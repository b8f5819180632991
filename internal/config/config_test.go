package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeConfig(t, "active_collectors: [urlhaus]\n")
	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := l.Config()
	if cfg.ConfidenceMinimum != 80 {
		t.Errorf("confidence_minimum default = %d", cfg.ConfidenceMinimum)
	}
	if cfg.MaxAgeInDays != 1 {
		t.Errorf("max_age_in_days default = %d", cfg.MaxAgeInDays)
	}
	if !reflect.DeepEqual(cfg.ActiveCollectors, []string{"urlhaus"}) {
		t.Errorf("active_collectors = %v", cfg.ActiveCollectors)
	}
	if cfg.LedgerPath != filepath.Join("data", "alerts.json") {
		t.Errorf("ledger_path default = %q", cfg.LedgerPath)
	}
	if cfg.Daemon.ListenAddr != ":8080" {
		t.Errorf("daemon.listen_addr default = %q", cfg.Daemon.ListenAddr)
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	l, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(l.Config().ActiveCollectors, []string{"abuseipdb", "otx", "urlhaus"}) {
		t.Errorf("default collectors = %v", l.Config().ActiveCollectors)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ACTIVE_COLLECTORS", "otx, urlhaus")
	t.Setenv("OTX_API_KEY", "from-env")
	t.Setenv("ABUSE_MOCK_FILE", "/tmp/abuse.json")

	path := writeConfig(t, "api_keys:\n  abuseipdb: from-file\n")
	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := l.Config()
	if !reflect.DeepEqual(cfg.ActiveCollectors, []string{"otx", "urlhaus"}) {
		t.Errorf("env ACTIVE_COLLECTORS not applied: %v", cfg.ActiveCollectors)
	}
	if cfg.APIKey("otx") != "from-env" {
		t.Errorf("otx key = %q", cfg.APIKey("otx"))
	}
	if cfg.APIKey("abuseipdb") != "from-file" {
		t.Errorf("file key overridden: %q", cfg.APIKey("abuseipdb"))
	}
	if cfg.MockFile("abuseipdb") != "/tmp/abuse.json" {
		t.Errorf("mock file = %q", cfg.MockFile("abuseipdb"))
	}
}

func TestFileKeyWinsOverEnv(t *testing.T) {
	t.Setenv("ABUSEIPDB_API_KEY", "env-key")
	path := writeConfig(t, "active_collectors: [abuseipdb]\napi_keys:\n  abuseipdb: file-key\n")
	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := l.Config().APIKey("abuseipdb"); got != "file-key" {
		t.Errorf("key = %q, want file-key", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown collector", func(c *Config) { c.ActiveCollectors = []string{"shodan"} }, true},
		{"confidence out of range", func(c *Config) { c.ConfidenceMinimum = 150 }, true},
		{"negative limit", func(c *Config) { c.LimitDetails = -1 }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			applyDefaults(cfg)
			tc.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestReloadInvokesCallbacks(t *testing.T) {
	path := writeConfig(t, "confidence_minimum: 80\n")
	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var got int
	l.OnChange(func(cfg *Config) { got = cfg.ConfidenceMinimum })

	os.WriteFile(path, []byte("confidence_minimum: 95\n"), 0o644)
	if _, err := l.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got != 95 {
		t.Errorf("callback saw %d, want 95", got)
	}
	if l.Config().ConfidenceMinimum != 95 {
		t.Errorf("config not swapped: %d", l.Config().ConfidenceMinimum)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" abuseipdb, otx ,,urlhaus ")
	if !reflect.DeepEqual(got, []string{"abuseipdb", "otx", "urlhaus"}) {
		t.Errorf("SplitList = %v", got)
	}
}
