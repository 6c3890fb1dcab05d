// Package config holds the facilitator configuration and builds its logger.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/raid-guild/hive-x402-facilitator-go/clients"
	"github.com/raid-guild/hive-x402-facilitator-go/hive"
	"github.com/raid-guild/hive-x402-facilitator-go/ratelimit"
	"github.com/raid-guild/hive-x402-facilitator-go/store"
)

// Default configuration values.
const (
	DefaultListen       = ":4020"
	DefaultLogLevel     = "info"
	DefaultBadgerDir    = "data/nonces"
	DefaultMaxBodyBytes = 64 << 10
	EnvPrefix           = "X402"
)

// HiveConfig configures the ledger gateway.
type HiveConfig struct {
	Nodes   []string      `mapstructure:"nodes"`
	Timeout time.Duration `mapstructure:"timeout"`
	ChainID string        `mapstructure:"chain_id"`
}

// RateLimitConfig configures the admission filter.
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Max     int           `mapstructure:"max"`
	Window  time.Duration `mapstructure:"window"`
}

// AuthConfig configures API key authentication. At most one of the two may be set.
type AuthConfig struct {
	StaticKey   string `mapstructure:"static_key"`
	DatabaseURL string `mapstructure:"database_url"`
}

// EventsConfig configures settlement event publishing. Publishing is off
// without an AMQP url.
type EventsConfig struct {
	AMQPURL    string `mapstructure:"amqp_url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

// Config contains all the configuration properties of a facilitator.
type Config struct {
	Listen       string          `mapstructure:"listen"`
	LogLevel     string          `mapstructure:"log_level"`
	MaxBodyBytes int64           `mapstructure:"max_body_bytes"`
	Hive         HiveConfig      `mapstructure:"hive"`
	Nonce        store.Config    `mapstructure:"nonce"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
	Auth         AuthConfig      `mapstructure:"auth"`
	Events       EventsConfig    `mapstructure:"events"`

	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For
	// header is believed. Empty trusts none and uses the socket address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Listen:       DefaultListen,
		LogLevel:     DefaultLogLevel,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Hive: HiveConfig{
			Nodes:   append([]string(nil), clients.DefaultNodes...),
			Timeout: clients.DefaultTimeout,
			ChainID: hive.MainnetChainID,
		},
		Nonce: store.Config{
			Backend:   store.BackendBadger,
			BadgerDir: DefaultBadgerDir,
			Retention: store.DefaultRetention,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Max:     ratelimit.DefaultMax,
			Window:  ratelimit.DefaultWindow,
		},
	}
}

// SetDefaults registers the defaults with v so environment variables can
// override keys that are not set by a flag or a file.
func SetDefaults(v *viper.Viper) {
	d := NewDefaultConfig()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("max_body_bytes", d.MaxBodyBytes)
	v.SetDefault("trusted_proxies", []string{})
	v.SetDefault("hive.nodes", d.Hive.Nodes)
	v.SetDefault("hive.timeout", d.Hive.Timeout)
	v.SetDefault("hive.chain_id", d.Hive.ChainID)
	v.SetDefault("nonce.backend", d.Nonce.Backend)
	v.SetDefault("nonce.badger_dir", d.Nonce.BadgerDir)
	v.SetDefault("nonce.redis_url", "")
	v.SetDefault("nonce.postgres_url", "")
	v.SetDefault("nonce.retention", d.Nonce.Retention)
	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.max", d.RateLimit.Max)
	v.SetDefault("rate_limit.window", d.RateLimit.Window)
	v.SetDefault("auth.static_key", "")
	v.SetDefault("auth.database_url", "")
	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "")
	v.SetDefault("events.routing_key", "")
}

// Load reads the configuration from v: flags bound to v, then X402_*
// environment variables, then the config file, then defaults.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Listen has no default here so a bare port can stand in for it
	if err := v.BindEnv("listen"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("port", "FACILITATOR_PORT", EnvPrefix+"_PORT"); err != nil {
		return nil, err
	}

	c := NewDefaultConfig()
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if v.GetString("listen") == "" {
		c.Listen = DefaultListen
		if port := v.GetString("port"); port != "" {
			c.Listen = ":" + port
		}
	}

	// Environment variables hold lists as comma separated strings
	c.Hive.Nodes = splitList(strings.Join(c.Hive.Nodes, ","))
	c.TrustedProxies = splitList(strings.Join(c.TrustedProxies, ","))

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration for values the facilitator cannot run with.
func (c *Config) Validate() error {
	if len(c.Hive.Nodes) == 0 {
		return fmt.Errorf("at least one hive node is required")
	}
	if _, err := hive.ParseChainID(c.Hive.ChainID); err != nil {
		return err
	}
	if c.Auth.StaticKey != "" && c.Auth.DatabaseURL != "" {
		return fmt.Errorf("auth.static_key and auth.database_url are mutually exclusive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}
	for _, proxy := range c.TrustedProxies {
		if net.ParseIP(proxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(proxy); err != nil {
			return fmt.Errorf("invalid trusted proxy %q", proxy)
		}
	}
	return nil
}

// ChainID returns the parsed chain id.
func (c *Config) ChainID() hive.ChainID {
	id, _ := hive.ParseChainID(c.Hive.ChainID)
	return id
}

// Logger returns a formatted logrus Entry, with prefix set to "facilitator".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = &prefixed.TextFormatter{FullTimestamp: true}
	}
	return c.logger.WithField("prefix", "facilitator")
}

// SetLogger replaces the logger, e.g. with a test logger.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	level, err := logrus.ParseLevel(l)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
