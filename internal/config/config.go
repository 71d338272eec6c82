package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	FIS       FISConfig       `yaml:"fis" mapstructure:"fis"`
	Inventory InventoryConfig `yaml:"inventory" mapstructure:"inventory"`
	Agent     AgentConfig     `yaml:"agent" mapstructure:"agent"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DataConfig configures where roster snapshots and reports are written.
type DataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// StoreConfig configures the audit database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// FISConfig configures the faculty information system export ingest.
type FISConfig struct {
	Path      string `yaml:"path" mapstructure:"path"`
	SheetName string `yaml:"sheet_name" mapstructure:"sheet_name"`
	SkipRows  int    `yaml:"skip_rows" mapstructure:"skip_rows"`
}

// InventoryConfig points at the department inventory file.
type InventoryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// AgentConfig configures the browser-automation extraction agent.
type AgentConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Key         string `yaml:"key" mapstructure:"key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// MatchConfig tunes identity resolution.
type MatchConfig struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
}

// ExtractConfig configures extraction pass behavior.
type ExtractConfig struct {
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxConcurrent int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	Refresh       bool    `yaml:"refresh" mapstructure:"refresh"`
}

// ServerConfig configures the report server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ROSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a meaningful default still get an empty one so
	// environment overrides bind.
	v.SetDefault("data.dir", "data")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/roster.db")
	v.SetDefault("fis.path", "")
	v.SetDefault("fis.sheet_name", "")
	v.SetDefault("fis.skip_rows", 0)
	v.SetDefault("inventory.path", "departments.yaml")
	v.SetDefault("agent.base_url", "")
	v.SetDefault("agent.key", "")
	v.SetDefault("agent.timeout_secs", 120)
	v.SetDefault("match.fuzzy_threshold", 0.85)
	v.SetDefault("extract.rate_per_sec", 0.34)
	v.SetDefault("extract.max_concurrent", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
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

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
