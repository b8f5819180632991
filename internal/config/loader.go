package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads a YAML config file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)
	watcher  *fsnotify.Watcher
}

// NewLoader creates a Loader and performs the initial load. A missing
// config file is not an error: defaults plus env overrides apply.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file
// changes. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					cfg, err := l.load()
					if err != nil {
						// Keep the old config on a bad write.
						continue
					}
					l.swap(cfg)
				}
			case <-w.Errors:
				// Ignore watcher errors.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the config file.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.swap(cfg)
	return cfg, nil
}

func (l *Loader) swap(cfg *Config) {
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
}

func (l *Loader) load() (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.path, err)
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ConfidenceMinimum == 0 {
		cfg.ConfidenceMinimum = 80
	}
	if cfg.LimitDetails == 0 {
		cfg.LimitDetails = 100
	}
	if cfg.MaxAgeInDays == 0 {
		cfg.MaxAgeInDays = 1
	}
	if len(cfg.ActiveCollectors) == 0 {
		cfg.ActiveCollectors = []string{"abuseipdb", "otx", "urlhaus"}
	}
	if len(cfg.ExpectedFeeds) == 0 {
		cfg.ExpectedFeeds = []string{"AbuseIPDB", "OTX", "URLHaus"}
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = filepath.Join(cfg.DataDir, "alerts.json")
	}
	if cfg.APIKeys == nil {
		cfg.APIKeys = make(map[string]string)
	}
	if cfg.MockFiles == nil {
		cfg.MockFiles = make(map[string]string)
	}
	if cfg.Daemon.IntervalMinutes == 0 {
		cfg.Daemon.IntervalMinutes = 60
	}
	if cfg.Daemon.ListenAddr == "" {
		cfg.Daemon.ListenAddr = ":8080"
	}
}

// applyEnvOverrides lets environment variables fill in or override config
// values: ACTIVE_COLLECTORS, <COLLECTOR>_API_KEY, and ABUSE_MOCK_FILE.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ACTIVE_COLLECTORS"); v != "" {
		cfg.ActiveCollectors = SplitList(v)
	}
	for _, name := range cfg.ActiveCollectors {
		env := strings.ToUpper(name) + "_API_KEY"
		if v := os.Getenv(env); v != "" && cfg.APIKeys[name] == "" {
			cfg.APIKeys[name] = v
		}
	}
	if v := os.Getenv("ABUSE_MOCK_FILE"); v != "" {
		cfg.MockFiles["abuseipdb"] = v
	}
}

// SplitList parses a comma-separated list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
