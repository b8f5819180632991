package config

// Config is the top-level YAML structure.
type Config struct {
	ConfidenceMinimum    int               `yaml:"confidence_minimum"`
	LimitDetails         int               `yaml:"limit_details"`
	MaxAgeInDays         int               `yaml:"max_age_in_days"`
	ActiveCollectors     []string          `yaml:"active_collectors"`
	ExpectedFeeds        []string          `yaml:"expected_feeds"`
	GenerateRequirements bool              `yaml:"generate_requirements"` // accepted for compatibility, unused
	DataDir              string            `yaml:"data_dir"`
	LedgerPath           string            `yaml:"ledger_path"`
	APIKeys              map[string]string `yaml:"api_keys"`
	MockFiles            map[string]string `yaml:"mock_files"`
	Daemon               DaemonConf        `yaml:"daemon"`
}

// DaemonConf holds settings for the long-running collection mode.
type DaemonConf struct {
	IntervalMinutes int    `yaml:"interval_minutes"`
	ListenAddr      string `yaml:"listen_addr"`
}

// APIKey returns the configured credential for a collector, empty if none.
func (c *Config) APIKey(collector string) string {
	return c.APIKeys[collector]
}

// MockFile returns the fixture path override for a collector, empty if none.
func (c *Config) MockFile(collector string) string {
	return c.MockFiles[collector]
}
