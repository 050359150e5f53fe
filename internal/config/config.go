package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Timers        TimersConfig        `mapstructure:"timers"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress    string `mapstructure:"bind_address"`
	APIPort        int    `mapstructure:"api_port"`
	APIEnabled     bool   `mapstructure:"api_enabled"`
	MetricsPort    int    `mapstructure:"metrics_port"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type        string      `mapstructure:"type"` // "bolt", "redis" or "sqlite"
	Path        string      `mapstructure:"path"`
	Key         string      `mapstructure:"key"`
	SaveTimeout string      `mapstructure:"save_timeout"`
	Redis       RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig defines tick engine settings
type EngineConfig struct {
	TickInterval  string `mapstructure:"tick_interval"`
	CatchUp       bool   `mapstructure:"catch_up"`
	RetryInterval string `mapstructure:"retry_interval"`
}

// TimersConfig defines timer defaults
type TimersConfig struct {
	DefaultCategories []string `mapstructure:"default_categories"`
}

// NotificationsConfig defines notification delivery
type NotificationsConfig struct {
	Buffer int  `mapstructure:"buffer"`
	Log    bool `mapstructure:"log"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetEnvPrefix("KTIMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, use defaults and environment variables
		}
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns a viper instance holding only the default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.api_enabled", true)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.metrics_enabled", true)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/ktimer/ktimer.bolt")
	v.SetDefault("storage.key", "timerState")
	v.SetDefault("storage.save_timeout", "5s")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Engine defaults
	v.SetDefault("engine.tick_interval", "1s")
	v.SetDefault("engine.catch_up", true)
	v.SetDefault("engine.retry_interval", "1s")

	// Timer defaults
	v.SetDefault("timers.default_categories", []string{"Work", "Study", "Exercise", "Break"})

	// Notification defaults
	v.SetDefault("notifications.buffer", 16)
	v.SetDefault("notifications.log", true)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIEnabled && (cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535) {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsEnabled && (cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535) {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}
	switch cfg.Storage.Type {
	case "bolt", "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if strings.TrimSpace(cfg.Storage.Key) == "" {
		return fmt.Errorf("storage key is required")
	}

	durations := map[string]string{
		"storage.save_timeout":  cfg.Storage.SaveTimeout,
		"engine.tick_interval":  cfg.Engine.TickInterval,
		"engine.retry_interval": cfg.Engine.RetryInterval,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", key)
		}
	}
	// timers count whole seconds; a slower poll would fall behind
	if Duration(cfg.Engine.TickInterval, time.Second) > time.Second {
		return fmt.Errorf("invalid engine.tick_interval: must not exceed 1s")
	}

	switch cfg.Logging.Format {
	case "json", "console", "text":
	default:
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	if cfg.Notifications.Buffer <= 0 {
		cfg.Notifications.Buffer = 1
	}

	return nil
}

// Duration parses a duration that validate has already checked.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
