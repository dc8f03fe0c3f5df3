// Package config loads the daemon's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level daemon configuration.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`
	LogLevel      string `toml:"LogLevel"`
	Owner         string `toml:"Owner"`
	Custody       string `toml:"Custody"`

	Engine    EngineConfig    `toml:"engine"`
	Oracle    OracleConfig    `toml:"oracle"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Telemetry TelemetryConfig `toml:"telemetry"`

	Tokens []TokenConfig `toml:"tokens"`
	Feeds  []FeedConfig  `toml:"feeds"`
}

// EngineConfig tunes the mint/burn engine.
type EngineConfig struct {
	ToleranceBps uint64 `toml:"ToleranceBps"`
}

// OracleConfig tunes price feed freshness.
type OracleConfig struct {
	FreshnessWindow duration `toml:"FreshnessWindow"`
}

// GatewayConfig tunes the HTTP surface.
type GatewayConfig struct {
	AuthEnabled    bool     `toml:"AuthEnabled"`
	AuthSecret     string   `toml:"AuthSecret"`
	AuthSecretEnv  string   `toml:"AuthSecretEnv"`
	Issuer         string   `toml:"Issuer"`
	Audience       string   `toml:"Audience"`
	MintPerMinute  float64  `toml:"MintPerMinute"`
	BurnPerMinute  float64  `toml:"BurnPerMinute"`
	Burst          int      `toml:"Burst"`
	AllowedOrigins []string `toml:"AllowedOrigins"`
	LogRequests    bool     `toml:"LogRequests"`
}

// TelemetryConfig tunes OTLP export.
type TelemetryConfig struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// TokenConfig registers one external collateral token with the local ledger.
type TokenConfig struct {
	Address  string `toml:"Address"`
	Symbol   string `toml:"Symbol"`
	Decimals uint8  `toml:"Decimals"`
}

// FeedConfig binds one price feed to a collateral token. Endpoint takes
// precedence; Price configures a manual feed for test and incident use.
type FeedConfig struct {
	Token    string `toml:"Token"`
	Decimals uint8  `toml:"Decimals"`
	Endpoint string `toml:"Endpoint"`
	Price    string `toml:"Price"`
}

// duration wraps time.Duration for TOML string decoding ("1h", "90s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// FreshnessOrDefault returns the configured window, or zero to signal the
// adapter default.
func (o OracleConfig) FreshnessOrDefault() time.Duration {
	return o.FreshnessWindow.Duration
}

// ResolveAuthSecret returns the shared secret, preferring the environment
// variable indirection when configured.
func (g GatewayConfig) ResolveAuthSecret() string {
	if env := strings.TrimSpace(g.AuthSecretEnv); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(g.AuthSecret)
}

// Load reads the configuration at path, writing a commented default file when
// none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./art-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if cfg.Gateway.MintPerMinute <= 0 {
		cfg.Gateway.MintPerMinute = 60
	}
	if cfg.Gateway.BurnPerMinute <= 0 {
		cfg.Gateway.BurnPerMinute = 60
	}
	if cfg.Gateway.Burst <= 0 {
		cfg.Gateway.Burst = 10
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./art-data",
		Environment:   "dev",
		LogLevel:      "info",
	}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
