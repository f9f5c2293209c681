package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	InternalAPIKey string        `mapstructure:"internal_api_key"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the queue store connection configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// QueueConfig holds retry and retention tuning
type QueueConfig struct {
	MaxAttempts        int           `mapstructure:"max_attempts"`
	InitialDelay       time.Duration `mapstructure:"initial_delay"`
	BackoffMultiplier  float64       `mapstructure:"backoff_multiplier"`
	MaxDelay           time.Duration `mapstructure:"max_delay"`
	ProcessingTimeout  time.Duration `mapstructure:"processing_timeout"`
	CompletedRetention time.Duration `mapstructure:"completed_retention"`
	DeadRetention      time.Duration `mapstructure:"dead_retention"`
	PromoteInterval    time.Duration `mapstructure:"promote_interval"`
	ReclaimInterval    time.Duration `mapstructure:"reclaim_interval"`
	PurgeInterval      time.Duration `mapstructure:"purge_interval"`
}

// WorkerConfig holds the generation loop tuning
type WorkerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	WorkerID      string        `mapstructure:"worker_id"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	InterJobDelay time.Duration `mapstructure:"inter_job_delay"`
}

// GeneratorConfig holds the external generation provider configuration
type GeneratorConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := loadEnvFile(); err != nil {
		// .env is optional, log but don't fail
		log.Warn().Err(err).Msg("Warning: .env file not loaded")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("CONTENT_SERVICE")

	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// loadEnvFile loads the first .env file found near the working directory
func loadEnvFile() error {
	envPaths := []string{".", "./config"}

	for _, path := range envPaths {
		envFile := fmt.Sprintf("%s/.env", path)
		if _, err := os.Stat(envFile); err == nil {
			if err := loadDotEnvFile(envFile); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile reads a .env file and sets environment variables
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			value = strings.Trim(value, "\"'")
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.url", "DATABASE_URL")

	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.internal_api_key", "INTERNAL_API_KEY")

	v.BindEnv("generator.base_url", "GENERATOR_BASE_URL")
	v.BindEnv("generator.api_key", "GENERATOR_API_KEY")

	v.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	v.BindEnv("logging.level", "LOG_LEVEL")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.initial_delay", 5*time.Second)
	v.SetDefault("queue.backoff_multiplier", 2.0)
	v.SetDefault("queue.max_delay", 5*time.Minute)
	v.SetDefault("queue.processing_timeout", 30*time.Minute)
	v.SetDefault("queue.completed_retention", 24*time.Hour)
	v.SetDefault("queue.dead_retention", 30*24*time.Hour)
	v.SetDefault("queue.promote_interval", 5*time.Second)
	v.SetDefault("queue.reclaim_interval", time.Minute)
	v.SetDefault("queue.purge_interval", time.Hour)

	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.worker_id", "worker-1")
	v.SetDefault("worker.poll_interval", 5*time.Second)
	v.SetDefault("worker.inter_job_delay", 2*time.Second)

	v.SetDefault("generator.timeout", 2*time.Minute)
	v.SetDefault("generator.requests_per_second", 2.0)
	v.SetDefault("generator.burst", 1)

	v.SetDefault("telemetry.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// QueuePolicy converts the queue section into runtime policy constants,
// filling anything unset with the production defaults.
func (c *Config) QueuePolicy() PolicyValues {
	return PolicyValues{
		MaxAttempts:        c.Queue.MaxAttempts,
		InitialDelay:       c.Queue.InitialDelay,
		BackoffMultiplier:  c.Queue.BackoffMultiplier,
		MaxDelay:           c.Queue.MaxDelay,
		ProcessingTimeout:  c.Queue.ProcessingTimeout,
		CompletedRetention: c.Queue.CompletedRetention,
		DeadRetention:      c.Queue.DeadRetention,
	}
}

// PolicyValues mirrors the queue policy without importing the queue package,
// so config stays a leaf dependency.
type PolicyValues struct {
	MaxAttempts        int
	InitialDelay       time.Duration
	BackoffMultiplier  float64
	MaxDelay           time.Duration
	ProcessingTimeout  time.Duration
	CompletedRetention time.Duration
	DeadRetention      time.Duration
}
