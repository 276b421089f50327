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
	Backend  BackendConfig  `yaml:"backend" mapstructure:"backend"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Fallback FallbackConfig `yaml:"fallback" mapstructure:"fallback"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// BackendConfig configures the remote analysis backend.
type BackendConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	AuthToken    string  `yaml:"auth_token" mapstructure:"auth_token"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// StoreConfig configures the durable local history.
type StoreConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	Capacity   int    `yaml:"capacity" mapstructure:"capacity"`
	BytesLimit int64  `yaml:"bytes_limit" mapstructure:"bytes_limit"`
}

// FallbackConfig configures the offline synthesizer. The delays preserve
// the perceived-processing pause of the original client.
type FallbackConfig struct {
	AnalyzeDelaySecs int `yaml:"analyze_delay_secs" mapstructure:"analyze_delay_secs"`
	VideoDelaySecs   int `yaml:"video_delay_secs" mapstructure:"video_delay_secs"`
}

// ServerConfig configures the local bridge server.
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
	v.SetEnvPrefix("SOILTALES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

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

// Defaults returns the full default table. The config init command uses
// it to write a starter config.yaml.
func Defaults() map[string]any {
	return map[string]any{
		"backend.base_url":            "http://localhost:5000",
		"backend.timeout_secs":        30,
		"backend.rate_limit_rps":      5.0,
		"store.path":                  "soiltales.db",
		"store.capacity":              50,
		"store.bytes_limit":           int64(5 * 1024 * 1024),
		"fallback.analyze_delay_secs": 2,
		"fallback.video_delay_secs":   3,
		"server.port":                 8080,
		"log.level":                   "info",
		"log.format":                  "console",
	}
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
