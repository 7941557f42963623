package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fetch modes.
const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"
)

// Config holds the full application configuration.
type Config struct {
	Poll    PollConfig    `yaml:"poll" mapstructure:"poll"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Target  TargetConfig  `yaml:"target" mapstructure:"target"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Rules   RulesConfig   `yaml:"rules" mapstructure:"rules"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// PollConfig bounds one query's polling session.
type PollConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`
	PerCallTimeout time.Duration `yaml:"per_call_timeout" mapstructure:"per_call_timeout"`
}

// FetchConfig selects and tunes the document fetcher.
type FetchConfig struct {
	Mode            string        `yaml:"mode" mapstructure:"mode"`
	UserAgent       string        `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec      float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	CircuitFailures int           `yaml:"circuit_failures" mapstructure:"circuit_failures"`
	CircuitReset    time.Duration `yaml:"circuit_reset" mapstructure:"circuit_reset"`
}

// BrowserConfig configures the headless browser used in browser mode.
type BrowserConfig struct {
	Headless       bool          `yaml:"headless" mapstructure:"headless"`
	Settle         time.Duration `yaml:"settle" mapstructure:"settle"`
	BinPath        string        `yaml:"bin_path" mapstructure:"bin_path"`
	LaunchAttempts int           `yaml:"launch_attempts" mapstructure:"launch_attempts"`
}

// EndpointConfig is a named URL template containing {query}.
type EndpointConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	URL  string `yaml:"url" mapstructure:"url"`
}

// TargetConfig lists the endpoints tried for every query, in order.
type TargetConfig struct {
	Endpoints []EndpointConfig `yaml:"endpoints" mapstructure:"endpoints"`
}

// ExtractConfig configures the extraction chain.
type ExtractConfig struct {
	PrimarySelectors []string `yaml:"primary_selectors" mapstructure:"primary_selectors"`
	// Strategies limits the chain to these strategies. Empty enables all.
	Strategies []string `yaml:"strategies" mapstructure:"strategies"`
}

// RulesConfig points at an optional YAML file extending the rule tables.
type RulesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// BatchConfig configures the batch command.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	CORSOrigins  []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An empty file looks
// for config.yaml in the working directory and tolerates its absence.
func Load(file string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("QUICKANSWER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("poll.max_attempts", 10)
	v.SetDefault("poll.interval", 2*time.Second)
	v.SetDefault("poll.per_call_timeout", 1500*time.Millisecond)
	v.SetDefault("fetch.mode", FetchModeHTTP)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("fetch.rate_per_sec", 2.0)
	v.SetDefault("fetch.max_body_bytes", 2<<20)
	v.SetDefault("fetch.circuit_failures", 5)
	v.SetDefault("fetch.circuit_reset", 30*time.Second)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.settle", 750*time.Millisecond)
	v.SetDefault("browser.launch_attempts", 3)
	v.SetDefault("target.endpoints", []map[string]any{
		{"name": "bing", "url": "https://www.bing.com/search?q={query}&form=QBRE"},
	})
	v.SetDefault("extract.primary_selectors", []string{".b_ans", ".b_focusTextLarge", "#answer", "[data-answer]"})
	v.SetDefault("batch.concurrency", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate checks settings that cannot be defaulted away.
func (c *Config) Validate() error {
	p := c.Poll
	if p.MaxAttempts <= 0 {
		return eris.Errorf("config: poll.max_attempts must be positive, got %d", p.MaxAttempts)
	}
	if p.Interval < 0 {
		return eris.Errorf("config: poll.interval must not be negative, got %s", p.Interval)
	}
	if p.PerCallTimeout <= 0 {
		return eris.Errorf("config: poll.per_call_timeout must be positive, got %s", p.PerCallTimeout)
	}
	if p.Interval > 0 && p.PerCallTimeout >= p.Interval {
		return eris.Errorf("config: poll.per_call_timeout (%s) must be less than poll.interval (%s)",
			p.PerCallTimeout, p.Interval)
	}

	switch c.Fetch.Mode {
	case FetchModeHTTP, FetchModeBrowser:
	default:
		return eris.Errorf("config: fetch.mode must be %q or %q, got %q", FetchModeHTTP, FetchModeBrowser, c.Fetch.Mode)
	}
	if c.Fetch.RatePerSec < 0 {
		return eris.Errorf("config: fetch.rate_per_sec must not be negative, got %v", c.Fetch.RatePerSec)
	}

	if len(c.Target.Endpoints) == 0 {
		return eris.New("config: target.endpoints must list at least one endpoint")
	}
	if c.Batch.Concurrency <= 0 {
		return eris.Errorf("config: batch.concurrency must be positive, got %d", c.Batch.Concurrency)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port out of range: %d", c.Server.Port)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return eris.Errorf("config: log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)
	// Results go to stdout; keep logs off it.
	zapCfg.OutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
