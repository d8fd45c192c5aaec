package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Detection DetectionConfig `yaml:"detection" envconfig:"DETECTION"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output string `yaml:"output" envconfig:"OUTPUT" default:"console"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	OutDir  string `yaml:"out_dir" envconfig:"OUT_DIR" default:"out"`
}

// DetectionConfig holds the default detection parameters. Each request
// may override any of them; these are the fallbacks the original service
// shipped with.
type DetectionConfig struct {
	Center       string  `yaml:"center" envconfig:"CENTER" default:"NPM"`
	AbsThreshold float64 `yaml:"abs_threshold" envconfig:"ABS_THRESHOLD" default:"5000000"`
	PctThreshold float64 `yaml:"pct_threshold" envconfig:"PCT_THRESHOLD" default:"0.25"`
	ZThreshold   float64 `yaml:"z_threshold" envconfig:"Z_THRESHOLD" default:"3.0"`
	TopN         int     `yaml:"top_n" envconfig:"TOP_N" default:"20"`
	SourcePath   string  `yaml:"source_path" envconfig:"SOURCE_PATH" default:"data/sample_summary.csv"`
	ArtifactPath string  `yaml:"artifact_path" envconfig:"ARTIFACT_PATH" default:"out/outliers_rules.csv"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process("MARGINWATCH", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Load from config file if exists
	configFile := configFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func configFilePath() string {
	if path := os.Getenv("MARGINWATCH_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs overlays file config on top of env config; fields set in
// the file win.
func mergeConfigs(fileConfig, envConfig Config) Config {
	if fileConfig.Server.Port != 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if fileConfig.Logging.Level != "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if fileConfig.Logging.Format != "" {
		envConfig.Logging.Format = fileConfig.Logging.Format
	}
	if fileConfig.Paths.DataDir != "" {
		envConfig.Paths.DataDir = fileConfig.Paths.DataDir
	}
	if fileConfig.Paths.OutDir != "" {
		envConfig.Paths.OutDir = fileConfig.Paths.OutDir
	}
	if fileConfig.Detection.Center != "" {
		envConfig.Detection.Center = fileConfig.Detection.Center
	}
	if fileConfig.Detection.TopN != 0 {
		envConfig.Detection.TopN = fileConfig.Detection.TopN
	}
	if fileConfig.Detection.AbsThreshold != 0 {
		envConfig.Detection.AbsThreshold = fileConfig.Detection.AbsThreshold
	}
	if fileConfig.Detection.PctThreshold != 0 {
		envConfig.Detection.PctThreshold = fileConfig.Detection.PctThreshold
	}
	if fileConfig.Detection.ZThreshold != 0 {
		envConfig.Detection.ZThreshold = fileConfig.Detection.ZThreshold
	}

	return envConfig
}

// validate checks configuration invariants before the application starts
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Detection.TopN <= 0 {
		return fmt.Errorf("detection top_n must be positive, got %d", c.Detection.TopN)
	}
	if c.Detection.AbsThreshold < 0 || c.Detection.PctThreshold < 0 || c.Detection.ZThreshold < 0 {
		return fmt.Errorf("detection thresholds must be non-negative")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}
	return nil
}
