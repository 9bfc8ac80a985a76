// Package config loads client settings from a YAML file, the environment
// (optionally seeded from a .env file) and command line flags, in that order.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

const (
	DefaultPollInterval   = 30 * time.Second
	DefaultRequestTimeout = 15 * time.Second
	DefaultCurrency       = "XOF"
	DefaultDataDir        = "./wal"
	DefaultWebAddr        = "127.0.0.1:8089"
)

// Environment variables read by Load.
const (
	EnvAPIURL    = "BOOMKIT_API_URL"
	EnvStreamURL = "BOOMKIT_STREAM_URL"
	EnvToken     = "BOOMKIT_TOKEN"
	EnvCurrency  = "BOOMKIT_CURRENCY"
	EnvDataDir   = "BOOMKIT_DATA_DIR"
	EnvLogFile   = "BOOMKIT_LOG_FILE"
	EnvLogLevel  = "BOOMKIT_LOG_LEVEL"
	EnvRetries   = "BOOMKIT_READ_RETRIES"
)

type Config struct {
	APIURL    string
	StreamURL string
	// Token is the bearer token of an already authenticated session.
	Token string

	Currency       string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	ReadRetries    int

	DataDir  string
	WebAddr  string
	LogFile  string
	LogLevel string
	Dev      bool

	Constants domain.CapitalizationConstants
}

// ConfigTmp mirrors the YAML layout; monetary values are strings parsed with decimal.
type ConfigTmp struct {
	APIURL         string        `yaml:"api_url"`
	StreamURL      string        `yaml:"stream_url"`
	Token          string        `yaml:"token"`
	Currency       string        `yaml:"currency"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ReadRetries    *int          `yaml:"read_retries,omitempty"`
	DataDir        string        `yaml:"data_dir"`
	WebAddr        string        `yaml:"web_addr"`
	LogFile        string        `yaml:"log_file"`
	LogLevel       string        `yaml:"log_level"`
	Dev            bool          `yaml:"dev"`
	Capitalization struct {
		Floor           string `yaml:"floor,omitempty"`
		Ceil            string `yaml:"ceil,omitempty"`
		Spread          string `yaml:"spread,omitempty"`
		PalierThreshold string `yaml:"palier_threshold,omitempty"`
		PalierCount     int64  `yaml:"palier_count,omitempty"`
		MicroImpactRate string `yaml:"micro_impact_rate,omitempty"`
	} `yaml:"capitalization"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Currency:       DefaultCurrency,
		PollInterval:   DefaultPollInterval,
		RequestTimeout: DefaultRequestTimeout,
		ReadRetries:    2,
		DataDir:        DefaultDataDir,
		WebAddr:        DefaultWebAddr,
		LogLevel:       "info",
		Constants:      domain.DefaultCapitalizationConstants(),
	}
}

// Load builds the config from defaults, the YAML file at path (optional) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeYaml(path); err != nil {
			return Config{}, err
		}
	}

	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return errors.Wrap(godotenv.Load(), "load .env")
}

func (c *Config) mergeYaml(path string) error {
	f, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return errors.Wrap(err, "parse config file")
	}

	setString(&c.APIURL, tmp.APIURL)
	setString(&c.StreamURL, tmp.StreamURL)
	setString(&c.Token, tmp.Token)
	setString(&c.Currency, tmp.Currency)
	setString(&c.DataDir, tmp.DataDir)
	setString(&c.WebAddr, tmp.WebAddr)
	setString(&c.LogFile, tmp.LogFile)
	setString(&c.LogLevel, tmp.LogLevel)
	c.Dev = c.Dev || tmp.Dev

	if tmp.PollInterval > 0 {
		c.PollInterval = tmp.PollInterval
	}
	if tmp.RequestTimeout > 0 {
		c.RequestTimeout = tmp.RequestTimeout
	}
	if tmp.ReadRetries != nil {
		c.ReadRetries = *tmp.ReadRetries
	}

	capCfg := tmp.Capitalization
	for _, field := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"floor", capCfg.Floor, &c.Constants.Floor},
		{"ceil", capCfg.Ceil, &c.Constants.Ceil},
		{"spread", capCfg.Spread, &c.Constants.Spread},
		{"palier_threshold", capCfg.PalierThreshold, &c.Constants.PalierThreshold},
		{"micro_impact_rate", capCfg.MicroImpactRate, &c.Constants.MicroImpactRate},
	} {
		if field.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(field.raw)
		if err != nil {
			return errors.Wrapf(err, "incorrect 'capitalization.%s' param in yaml config (must be a decimal)", field.name)
		}
		*field.dst = v
	}
	if capCfg.PalierCount > 0 {
		c.Constants.PalierCount = capCfg.PalierCount
	}

	return nil
}

func (c *Config) mergeEnv() error {
	setString(&c.APIURL, os.Getenv(EnvAPIURL))
	setString(&c.StreamURL, os.Getenv(EnvStreamURL))
	setString(&c.Token, os.Getenv(EnvToken))
	setString(&c.Currency, os.Getenv(EnvCurrency))
	setString(&c.DataDir, os.Getenv(EnvDataDir))
	setString(&c.LogFile, os.Getenv(EnvLogFile))
	setString(&c.LogLevel, os.Getenv(EnvLogLevel))

	if raw := os.Getenv(EnvRetries); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Wrapf(err, "incorrect %s (must be an integer)", EnvRetries)
		}
		c.ReadRetries = n
	}
	return nil
}

// Validate checks the settings needed to talk to the backend.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return errors.Errorf("api url is required (yaml 'api_url', %s or --api-url)", EnvAPIURL)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.ReadRetries < 0 {
		return errors.New("read retries must not be negative")
	}
	if c.Constants.PalierCount <= 0 || !c.Constants.PalierThreshold.IsPositive() {
		return errors.New("palier threshold and count must be positive")
	}
	if c.Constants.Floor.IsNegative() || c.Constants.Ceil.LessThan(c.Constants.Floor) {
		return errors.New("capitalization floor must be in [0, ceil]")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
