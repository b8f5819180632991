package config

import (
	"fmt"
	"strings"
)

// KnownCollectors enumerates the feed names the pipeline can run.
var KnownCollectors = []string{"abuseipdb", "otx", "urlhaus", "threatfox"}

// Validate checks the config for unknown collector names and nonsensical
// numeric settings.
func Validate(cfg *Config) error {
	var errs []string

	known := make(map[string]bool, len(KnownCollectors))
	for _, name := range KnownCollectors {
		known[name] = true
	}
	for _, name := range cfg.ActiveCollectors {
		if !known[name] {
			errs = append(errs, fmt.Sprintf("unknown collector %q (known: %s)", name, strings.Join(KnownCollectors, ", ")))
		}
	}

	if cfg.ConfidenceMinimum < 0 || cfg.ConfidenceMinimum > 100 {
		errs = append(errs, fmt.Sprintf("confidence_minimum %d out of range 0-100", cfg.ConfidenceMinimum))
	}
	if cfg.LimitDetails < 0 {
		errs = append(errs, "limit_details must not be negative")
	}
	if cfg.MaxAgeInDays < 0 {
		errs = append(errs, "max_age_in_days must not be negative")
	}
	if cfg.Daemon.IntervalMinutes < 0 {
		errs = append(errs, "daemon.interval_minutes must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
