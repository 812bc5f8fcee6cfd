package stakingd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

const (
	// ScopeAdmin gates configuration of the staking program.
	ScopeAdmin = "stake:admin"
	// ScopeHolder is required for every holder-initiated operation.
	ScopeHolder = "stake:holder"

	StorageMemory  = "mem"
	StorageBolt    = "bolt"
	StorageLevelDB = "leveldb"

	CustodyMemory = "memory"
	CustodyEVM    = "evm"
)

// Config captures the runtime configuration for stakingd.
type Config struct {
	ListenAddress string                     `yaml:"listen"`
	ParamsPath    string                     `yaml:"params"`
	Bootstrap     bool                       `yaml:"bootstrap"`
	Storage       StorageConfig              `yaml:"storage"`
	Auth          AuthConfig                 `yaml:"auth"`
	RateLimits    map[string]RateLimitConfig `yaml:"rate_limits"`
	Custody       CustodyConfig              `yaml:"custody"`
	Journal       JournalConfig              `yaml:"journal"`
	Webhook       WebhookConfig              `yaml:"webhook"`
	Rewards       RewardsConfig              `yaml:"rewards"`
	Logging       LoggingConfig              `yaml:"logging"`
	Telemetry     TelemetryConfig            `yaml:"telemetry"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	Backend      string `yaml:"backend"`
	Path         string `yaml:"path"`
	AllowMigrate bool   `yaml:"allow_migrate"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	Disabled         bool     `yaml:"disabled"`
	JWTSecret        string   `yaml:"jwt_secret"`
	JWTSecretFile    string   `yaml:"jwt_secret_file"`
	JWTSecretEnv     string   `yaml:"jwt_secret_env"`
	Issuer           string   `yaml:"issuer"`
	Audience         string   `yaml:"audience"`
	ScopeClaim       string   `yaml:"scope_claim"`
	ClockSkew        Duration `yaml:"clock_skew"`
	DevSubjectHeader string   `yaml:"dev_subject_header"`
}

// RateLimitConfig bounds requests for one route group.
type RateLimitConfig struct {
	RatePerSecond float64 `yaml:"rps"`
	Burst         int     `yaml:"burst"`
}

// CustodyConfig selects and configures the custody adapter.
type CustodyConfig struct {
	Driver           string   `yaml:"driver"`
	Endpoint         string   `yaml:"endpoint"`
	Contract         string   `yaml:"contract"`
	Keystore         string   `yaml:"keystore"`
	PassphraseEnv    string   `yaml:"passphrase_env"`
	PassphraseFile   string   `yaml:"passphrase_file"`
	PollInterval     Duration `yaml:"poll_interval"`
	GasMultiplierPct uint64   `yaml:"gas_multiplier_pct"`
	// SeedFile lists items minted into the memory driver at startup.
	SeedFile string `yaml:"seed_file"`
}

// JournalConfig configures the SQL event journal. An empty DSN disables it.
type JournalConfig struct {
	DSN    string `yaml:"dsn"`
	DSNEnv string `yaml:"dsn_env"`
}

// WebhookConfig configures claim delivery to the payout system. An empty
// endpoint disables delivery.
type WebhookConfig struct {
	Endpoint    string   `yaml:"endpoint"`
	Secret      string   `yaml:"secret"`
	SecretFile  string   `yaml:"secret_file"`
	SecretEnv   string   `yaml:"secret_env"`
	MaxAttempts int      `yaml:"max_attempts"`
	MinBackoff  Duration `yaml:"min_backoff"`
	MaxBackoff  Duration `yaml:"max_backoff"`
}

// RewardsConfig controls conversion of points into reward base units.
type RewardsConfig struct {
	Decimals uint8 `yaml:"decimals"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	SampleRatio float64           `yaml:"sample_ratio"`
	Metrics     bool              `yaml:"metrics"`
	Traces      bool              `yaml:"traces"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return cfg, fmt.Errorf("auth: %w", err)
	}
	if err := cfg.Journal.normalise(); err != nil {
		return cfg, fmt.Errorf("journal: %w", err)
	}
	if err := cfg.Webhook.normalise(); err != nil {
		return cfg, fmt.Errorf("webhook: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.ParamsPath == "" {
		cfg.ParamsPath = "services/stakingd/params.toml"
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageBolt
	}
	if cfg.Storage.Path == "" && cfg.Storage.Backend != StorageMemory {
		cfg.Storage.Path = "data/stakingd.db"
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]RateLimitConfig{
			"holders": {RatePerSecond: 2, Burst: 5},
			"locks":   {RatePerSecond: 2, Burst: 5},
			"claim":   {RatePerSecond: 1, Burst: 2},
		}
	}
	cfg.Custody.Driver = strings.ToLower(strings.TrimSpace(cfg.Custody.Driver))
	if cfg.Custody.Driver == "" {
		cfg.Custody.Driver = CustodyMemory
	}
	cfg.Custody.SeedFile = strings.TrimSpace(cfg.Custody.SeedFile)
	if cfg.Custody.PollInterval.Duration == 0 {
		cfg.Custody.PollInterval.Duration = 2 * time.Second
	}
	if cfg.Webhook.MaxAttempts <= 0 {
		cfg.Webhook.MaxAttempts = 5
	}
	if cfg.Webhook.MinBackoff.Duration == 0 {
		cfg.Webhook.MinBackoff.Duration = 2 * time.Second
	}
	if cfg.Webhook.MaxBackoff.Duration == 0 {
		cfg.Webhook.MaxBackoff.Duration = 30 * time.Second
	}
	if cfg.Rewards.Decimals == 0 {
		cfg.Rewards.Decimals = 9
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1
	}
}

func validateConfig(cfg Config) error {
	switch cfg.Storage.Backend {
	case StorageMemory, StorageBolt, StorageLevelDB:
	default:
		return fmt.Errorf("storage backend %q not supported", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend != StorageMemory && strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage path must be configured")
	}
	if !cfg.Auth.Disabled && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret must be configured unless auth is disabled")
	}
	for name, limit := range cfg.RateLimits {
		if limit.RatePerSecond <= 0 || limit.Burst <= 0 {
			return fmt.Errorf("rate limit %s must have positive rps and burst", name)
		}
	}
	switch cfg.Custody.Driver {
	case CustodyMemory:
	case CustodyEVM:
		if cfg.Custody.SeedFile != "" {
			return fmt.Errorf("custody seed_file is only supported by the memory driver")
		}
		if strings.TrimSpace(cfg.Custody.Endpoint) == "" {
			return fmt.Errorf("custody endpoint must be configured for evm driver")
		}
		if strings.TrimSpace(cfg.Custody.Contract) == "" {
			return fmt.Errorf("custody contract must be configured for evm driver")
		}
		if strings.TrimSpace(cfg.Custody.Keystore) == "" {
			return fmt.Errorf("custody keystore must be configured for evm driver")
		}
	default:
		return fmt.Errorf("custody driver %q not supported", cfg.Custody.Driver)
	}
	if cfg.Webhook.Endpoint != "" && cfg.Webhook.Secret == "" {
		return fmt.Errorf("webhook secret must be configured when endpoint is set")
	}
	if cfg.Webhook.MinBackoff.Duration > cfg.Webhook.MaxBackoff.Duration {
		return fmt.Errorf("webhook min_backoff exceeds max_backoff")
	}
	if cfg.Rewards.Decimals > 18 {
		return fmt.Errorf("reward decimals must not exceed 18")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample_ratio must be within [0,1]")
	}
	return nil
}

func (a *AuthConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("auth configuration missing")
	}
	secret, err := resolveSecret(a.JWTSecret, a.JWTSecretEnv, a.JWTSecretFile, "jwt_secret")
	if err != nil {
		return err
	}
	a.JWTSecret = secret
	a.Issuer = strings.TrimSpace(a.Issuer)
	a.Audience = strings.TrimSpace(a.Audience)
	a.DevSubjectHeader = strings.TrimSpace(a.DevSubjectHeader)
	return nil
}

func (j *JournalConfig) normalise() error {
	if j == nil {
		return fmt.Errorf("journal configuration missing")
	}
	dsn, err := resolveSecret(j.DSN, j.DSNEnv, "", "dsn")
	if err != nil {
		return err
	}
	j.DSN = dsn
	return nil
}

func (w *WebhookConfig) normalise() error {
	if w == nil {
		return fmt.Errorf("webhook configuration missing")
	}
	w.Endpoint = strings.TrimSpace(w.Endpoint)
	secret, err := resolveSecret(w.Secret, w.SecretEnv, w.SecretFile, "secret")
	if err != nil {
		return err
	}
	w.Secret = secret
	return nil
}

// resolveSecret returns the inline value, or the value named by the env
// variable, or the file contents, in that order.
func resolveSecret(inline, envVar, path, field string) (string, error) {
	value := strings.TrimSpace(inline)
	if value != "" {
		return value, nil
	}
	envVar = strings.TrimSpace(envVar)
	path = strings.TrimSpace(path)
	switch {
	case envVar != "":
		value = strings.TrimSpace(os.Getenv(envVar))
		if value == "" {
			return "", fmt.Errorf("%s_env %s is empty", field, envVar)
		}
		return value, nil
	case path != "":
		contents, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s_file: %w", field, err)
		}
		return strings.TrimSpace(string(contents)), nil
	}
	return "", nil
}
