package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration, loaded with priority
// default -> file(s) -> environment -> CLI flags (each stage overrides the
// previous one).
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Timing      TimingConfig    `toml:"timing"`
	Retry       RetryConfig     `toml:"retry"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Limits      LimitsConfig    `toml:"limits"`
	Behavior    BehaviorConfig  `toml:"behavior"`
	Secrets     SecretsConfig   `toml:"secrets"`
	Sources     SourcesConfig   `toml:"sources"`
}

// SourcesConfig carries the host/endpoint addresses of each external
// source, left as configuration per spec.md's note that exact hosts and
// block markers are deployment values, not constants baked into code.
type SourcesConfig struct {
	DiscoveryBaseURL string `toml:"discovery_base_url"` // statistical-agency bulk enumeration API
	RegistryBaseURL  string `toml:"registry_base_url"`  // official company registry REST API
	ScrapedHost      string `toml:"scraped_host"`       // third-party aggregator site host
}

// StorageConfig controls where durable state and side-output artifacts live.
type StorageConfig struct {
	DatabasePath string `toml:"database_path"`  // SQLite job store file path
	StoreRawDocs bool   `toml:"store_raw_docs"` // Persist a side-output copy of fetched documents
	RawDocDir    string `toml:"raw_doc_dir"`    // Content-addressed raw-document side output root
	GzipRawDocs  bool   `toml:"gzip_raw_docs"`  // Compress side-output documents with gzip
}

// LoggingConfig mirrors the teacher's logging configuration (arbor-backed).
type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // e.g. "15:04:05.000"
}

// TimingConfig holds the durations named in spec.md's politeness and
// scheduling requirements.
type TimingConfig struct {
	MinDelay            time.Duration `toml:"min_delay"`             // Minimum delay between requests to the same host
	MaxDelay            time.Duration `toml:"max_delay"`             // Maximum delay between requests to the same host
	RequestTimeout      time.Duration `toml:"request_timeout"`       // Per-HTTP-request timeout
	RegistryMinInterval time.Duration `toml:"registry_min_interval"` // Floor between Bolagsverket requests (~1.5s)
	HeartbeatInterval   time.Duration `toml:"heartbeat_interval"`    // Worker heartbeat write interval
	StaleJobTimeout     time.Duration `toml:"stale_job_timeout"`     // How long before an in-progress job is considered stale
	StageTimeout        time.Duration `toml:"stage_timeout"`         // Per-job, per-stage processing deadline
	BlockCooldown       time.Duration `toml:"block_cooldown"`        // How long a blocked job sits before it is eligible again
	MaintenanceInterval time.Duration `toml:"maintenance_interval"`  // Fallback sweep interval if MaintenanceSchedule doesn't parse
	MaintenanceSchedule string        `toml:"maintenance_schedule"`  // Standard 5-field cron expression for the maintenance sweep
	ActiveHoursStart    string        `toml:"active_hours_start"`    // "HH:MM", empty disables the window (Scraped stage only)
	ActiveHoursEnd      string        `toml:"active_hours_end"`      // "HH:MM"
	SkipWeekends        bool          `toml:"skip_weekends"`         // Pause the Scraped stage on Saturday/Sunday
}

// RetryConfig controls the Polite Fetcher's exponential backoff policy.
type RetryConfig struct {
	MaxRetries     int           `toml:"max_retries"`
	InitialBackoff time.Duration `toml:"initial_backoff"`
	MaxBackoff     time.Duration `toml:"max_backoff"`
	BackoffFactor  float64       `toml:"backoff_factor"`
}

// ConcurrencyConfig sets the worker-pool size per pipeline stage.
type ConcurrencyConfig struct {
	Discovery int `toml:"discovery"`
	Registry  int `toml:"registry"`
	Graph     int `toml:"graph"`
	Scraped   int `toml:"scraped"`
}

// LimitsConfig bounds how much work a single run will take on.
type LimitsConfig struct {
	MaxJobsPerRun        int      `toml:"max_jobs_per_run"` // Default cap for `run` when --max isn't given; 0 = unbounded
	MaxConsecutiveBlocks int      `toml:"max_consecutive_blocks"` // Consecutive 4xx/blocked responses before a host is marked blocked
	MaxBodySize          int      `toml:"max_body_size"`          // Maximum response body size accepted, in bytes
	BatchSize            int      `toml:"batch_size"`             // Jobs claimed per ClaimNext batch
	MinConfidence        float64  `toml:"min_confidence"`         // Minimum extraction confidence accepted without a fallback pass
	StagesEnabled        []string `toml:"stages_enabled"`         // Stages `run` drives when --stage isn't given; empty = all stages
}

// BehaviorConfig holds miscellaneous feature toggles.
type BehaviorConfig struct {
	UserAgent          string   `toml:"user_agent"`
	UserAgentPool      []string `toml:"user_agent_pool"`
	RotateUserAgent    bool     `toml:"rotate_user_agent"`
	RandomPageInterval int      `toml:"random_page_interval"` // Emit a camouflage request every N real requests (0 disables)
	RandomPageProb     float64  `toml:"random_page_prob"`     // Probability of emitting a camouflage request at that interval
	ScrapedUseChromedp bool     `toml:"scraped_use_chromedp"` // Fall back to headless rendering for JS-gated scraped pages
	PersonProfilePass  bool     `toml:"person_profile_pass"`  // Enable the optional second-pass person-profile scrape
	BlockMarkers       []string `toml:"block_markers"`        // Response-body substrings that indicate a block page
}

// SecretsConfig holds credentials. Never logged or dumped.
type SecretsConfig struct {
	RegistryClientID     string `toml:"registry_client_id"`
	RegistryClientSecret string `toml:"registry_client_secret"`
	RegistryTokenURL     string `toml:"registry_token_url"`
	DiscoveryCertPath    string `toml:"discovery_cert_path"`
	DiscoveryCertPass    string `toml:"discovery_cert_pass"`
}

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			DatabasePath: "./data/bolagsradar.db",
			StoreRawDocs: true,
			RawDocDir:    "./data/raw",
			GzipRawDocs:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
		Timing: TimingConfig{
			MinDelay:            3 * time.Second,
			MaxDelay:            8 * time.Second,
			RequestTimeout:      30 * time.Second,
			RegistryMinInterval: 1500 * time.Millisecond,
			HeartbeatInterval:   15 * time.Second,
			StaleJobTimeout:     10 * time.Minute,
			StageTimeout:        5 * time.Minute,
			BlockCooldown:       6 * time.Hour,
			MaintenanceInterval: 1 * time.Minute,
			MaintenanceSchedule: "*/1 * * * *",
			SkipWeekends:        false,
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialBackoff: 5 * time.Second,
			MaxBackoff:     300 * time.Second,
			BackoffFactor:  2.0,
		},
		Concurrency: ConcurrencyConfig{
			Discovery: 1,
			Registry:  1,
			Graph:     1,
			Scraped:   1,
		},
		Limits: LimitsConfig{
			MaxJobsPerRun:        0, // 0 = unbounded
			MaxConsecutiveBlocks: 3,
			MaxBodySize:          10 * 1024 * 1024,
			BatchSize:            50,
			MinConfidence:        0.5,
			StagesEnabled:        []string{"discovery", "registry", "graph", "scraped"},
		},
		Behavior: BehaviorConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			UserAgentPool: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			RotateUserAgent:    true,
			RandomPageInterval: 25,
			RandomPageProb:     0.1,
			ScrapedUseChromedp: false,
			PersonProfilePass:  false,
			BlockMarkers: []string{
				"captcha",
				"access denied",
				"attention required",
				"cf-browser-verification",
				"/cdn-cgi/challenge-platform",
			},
		},
		Sources: SourcesConfig{
			DiscoveryBaseURL: "https://foretagsregistret.scb.se/api/v2",
			RegistryBaseURL:  "https://gw.api.bolagsverket.se/vardefulla-datamangder/v2",
			ScrapedHost:      "www.allabolag.se",
		},
	}
}

// LoadFromFiles loads configuration from multiple TOML files, applied in
// order (later files override earlier ones), on top of the defaults, then
// applies environment variable overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := ValidateMaintenanceSchedule(config.Timing.MaintenanceSchedule); err != nil {
		return nil, fmt.Errorf("timing.maintenance_schedule: %w", err)
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("BOLAGSRADAR_ENV"); env != "" {
		config.Environment = env
	}

	if dbPath := os.Getenv("BOLAGSRADAR_DATABASE_PATH"); dbPath != "" {
		config.Storage.DatabasePath = dbPath
	}
	if rawDir := os.Getenv("BOLAGSRADAR_RAW_DOC_DIR"); rawDir != "" {
		config.Storage.RawDocDir = rawDir
	}

	if level := os.Getenv("BOLAGSRADAR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("BOLAGSRADAR_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("BOLAGSRADAR_LOG_OUTPUT"); output != "" {
		outputs := make([]string, 0)
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if delay := os.Getenv("BOLAGSRADAR_MIN_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			config.Timing.MinDelay = d
		}
	}
	if delay := os.Getenv("BOLAGSRADAR_MAX_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			config.Timing.MaxDelay = d
		}
	}

	if discovery := os.Getenv("BOLAGSRADAR_CONCURRENCY_DISCOVERY"); discovery != "" {
		if c, err := strconv.Atoi(discovery); err == nil {
			config.Concurrency.Discovery = c
		}
	}
	if registry := os.Getenv("BOLAGSRADAR_CONCURRENCY_REGISTRY"); registry != "" {
		if c, err := strconv.Atoi(registry); err == nil {
			config.Concurrency.Registry = c
		}
	}
	if scraped := os.Getenv("BOLAGSRADAR_CONCURRENCY_SCRAPED"); scraped != "" {
		if c, err := strconv.Atoi(scraped); err == nil {
			config.Concurrency.Scraped = c
		}
	}

	// Secrets are env-only in practice (never written to a committed TOML file).
	if v := os.Getenv("BOLAGSRADAR_REGISTRY_CLIENT_ID"); v != "" {
		config.Secrets.RegistryClientID = v
	}
	if v := os.Getenv("BOLAGSRADAR_REGISTRY_CLIENT_SECRET"); v != "" {
		config.Secrets.RegistryClientSecret = v
	}
	if v := os.Getenv("BOLAGSRADAR_REGISTRY_TOKEN_URL"); v != "" {
		config.Secrets.RegistryTokenURL = v
	}
	if v := os.Getenv("BOLAGSRADAR_DISCOVERY_CERT_PATH"); v != "" {
		config.Secrets.DiscoveryCertPath = v
	}
	if v := os.Getenv("BOLAGSRADAR_DISCOVERY_CERT_PASS"); v != "" {
		config.Secrets.DiscoveryCertPass = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides, which take
// precedence over everything else.
func ApplyFlagOverrides(config *Config, dbPath string) {
	if dbPath != "" {
		config.Storage.DatabasePath = dbPath
	}
}

// ValidateMaintenanceSchedule validates a cron schedule expression used for
// the orchestrator's maintenance sweep, enforcing a minimum 1-minute interval.
func ValidateMaintenanceSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// DeepCloneConfig creates a deep copy of the Config struct so callers can
// mutate it without affecting the shared instance.
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}
	clone := *c

	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}
	if len(c.Behavior.UserAgentPool) > 0 {
		clone.Behavior.UserAgentPool = make([]string, len(c.Behavior.UserAgentPool))
		copy(clone.Behavior.UserAgentPool, c.Behavior.UserAgentPool)
	}
	if len(c.Limits.StagesEnabled) > 0 {
		clone.Limits.StagesEnabled = make([]string, len(c.Limits.StagesEnabled))
		copy(clone.Limits.StagesEnabled, c.Limits.StagesEnabled)
	}

	return &clone
}
