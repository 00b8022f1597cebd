package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Version string `yaml:"version" env-default:"v1"`
	Server  Server `yaml:"server"`
	Source  Source `yaml:"source"`
	Cache   Cache  `yaml:"cache"`
	Log     Log    `yaml:"log"`
}

type Server struct {
	Address            string `yaml:"address"              env:"SERVER_ADDR"              env-default:":8080"`
	ReadTimeoutSec     int    `yaml:"read_timeout_sec"     env:"SERVER_READ_TIMEOUT"      env-default:"15"`
	WriteTimeoutSec    int    `yaml:"write_timeout_sec"    env:"SERVER_WRITE_TIMEOUT"     env-default:"15"`
	IdleTimeoutSec     int    `yaml:"idle_timeout_sec"     env:"SERVER_IDLE_TIMEOUT"      env-default:"60"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec" env:"SERVER_SHUTDOWN_TIMEOUT"  env-default:"15"`
}

type Source struct {
	URL             string   `yaml:"url"               env:"SOURCE_URL"               env-default:"https://a.cewe.pro/data.json"`
	Timeout         string   `yaml:"timeout"           env:"SOURCE_TIMEOUT"           env-default:"30s"`
	UserAgent       string   `yaml:"user_agent"        env:"SOURCE_USER_AGENT"        env-default:"datacache/1.0"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"    env:"SOURCE_MAX_BODY_BYTES"    env-default:"33554432"`
	DisableDNSCache bool     `yaml:"disable_dns_cache" env:"SOURCE_DISABLE_DNS_CACHE"`
	DNSRefresh      string   `yaml:"dns_refresh"       env:"SOURCE_DNS_REFRESH"       env-default:"5m"`
	RequiredFields  []string `yaml:"required_fields"   env:"SOURCE_REQUIRED_FIELDS"   env-separator:","`
}

type Cache struct {
	TTL         string `yaml:"ttl"           env:"CACHE_TTL"           env-default:"24h"`
	WarmOnStart bool   `yaml:"warm_on_start" env:"CACHE_WARM_ON_START"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// FinalConfig is a validated Config with durations resolved.
type FinalConfig struct {
	Server Server `yaml:"server"`
	Source Source `yaml:"source"`
	Cache  Cache  `yaml:"cache"`
	Log    Log    `yaml:"log"`

	ttl           time.Duration
	sourceTimeout time.Duration
	dnsRefresh    time.Duration
}

// TTL is how long a fetched value stays fresh.
func (fc *FinalConfig) TTL() time.Duration { return fc.ttl }

// SourceTimeout bounds a single upstream request.
func (fc *FinalConfig) SourceTimeout() time.Duration { return fc.sourceTimeout }

// DNSRefresh is the resolver refresh interval.
func (fc *FinalConfig) DNSRefresh() time.Duration { return fc.dnsRefresh }

// Load reads a config file, or inline YAML content, and applies env overrides.
func Load(pathOrContent string) (*Config, error) {
	var cfg Config

	if fi, err := os.Stat(pathOrContent); err == nil && !fi.IsDir() {
		if err := cleanenv.ReadConfig(pathOrContent, &cfg); err != nil {
			return nil, fmt.Errorf("read config %q: %w", pathOrContent, err)
		}
		return &cfg, nil
	}

	if looksInline(pathOrContent) {
		if err := yaml.Unmarshal([]byte(pathOrContent), &cfg); err != nil {
			return nil, fmt.Errorf("parse config content: %w", err)
		}
	} else {
		abs := pathOrContent
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(".", abs)
		}
		if err := cleanenv.ReadConfig(abs, &cfg); err != nil {
			return nil, fmt.Errorf("read config %q: %w", pathOrContent, err)
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, nil
}

// LoadEnv builds a Config from defaults and environment variables only.
func LoadEnv() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, nil
}

func looksInline(s string) bool {
	return strings.Contains(s, "\n") ||
		strings.Contains(s, "source:") ||
		strings.Contains(s, "server:") ||
		strings.Contains(s, "cache:")
}

// Build loads and validates the configuration.
func Build(configPath string) (*FinalConfig, error) {
	raw, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	return Finalize(raw)
}

// Finalize validates raw and resolves its durations.
func Finalize(raw *Config) (*FinalConfig, error) {
	fc := &FinalConfig{
		Server: raw.Server,
		Source: raw.Source,
		Cache:  raw.Cache,
		Log:    raw.Log,
	}

	if err := validateURL(raw.Source.URL); err != nil {
		return nil, fmt.Errorf("source.url: %w", err)
	}

	var err error
	if fc.ttl, err = ParseDuration(raw.Cache.TTL); err != nil {
		return nil, fmt.Errorf("cache.ttl: %w", err)
	}
	if fc.sourceTimeout, err = ParseDuration(raw.Source.Timeout); err != nil {
		return nil, fmt.Errorf("source.timeout: %w", err)
	}
	if fc.dnsRefresh, err = ParseDuration(raw.Source.DNSRefresh); err != nil {
		return nil, fmt.Errorf("source.dns_refresh: %w", err)
	}
	if raw.Source.MaxBodyBytes <= 0 {
		return nil, fmt.Errorf("source.max_body_bytes: must be positive, got %d", raw.Source.MaxBodyBytes)
	}
	if _, err := log.ParseLevel(strings.ToLower(raw.Log.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	return fc, nil
}

// ParseDuration accepts Go duration strings ("90s", "24h") or whole seconds.
// The result must be positive.
func ParseDuration(val string) (time.Duration, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, errors.New("empty duration")
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		secs, convErr := strconv.Atoi(val)
		if convErr != nil {
			return 0, fmt.Errorf("invalid duration %q", val)
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", val)
	}
	return d, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// Pretty renders the config as YAML for startup logging.
func (fc *FinalConfig) Pretty() (string, error) {
	b, err := yaml.Marshal(fc)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(b), nil
}
