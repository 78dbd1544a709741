package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuongbtq/dep-queue-worker/internal/worker/domain"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultRabbitMQPort is the standard AMQP port
	DefaultRabbitMQPort = 5672
)

// Config represents the complete application configuration
type Config struct {
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Worker   WorkerConfig   `yaml:"worker"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Ops      OpsConfig      `yaml:"ops"`
}

// RabbitMQConfig holds broker connection and queue settings.
// Its connection keys match the legacy rabbitmq.json, which Load also
// accepts as a whole file.
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name    string `yaml:"name"`
	Durable *bool  `yaml:"durable"`
}

// IsDurable reports whether the queue is declared durable (default true)
func (q QueueConfig) IsDurable() bool {
	return q.Durable == nil || *q.Durable
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// WorkerConfig holds simulation and supervisor settings
type WorkerConfig struct {
	Binary          string        `yaml:"binary"`
	BinaryArgs      []string      `yaml:"binary_args"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	KillGrace       time.Duration `yaml:"kill_grace"`
	RestartCooldown time.Duration `yaml:"restart_cooldown"`
	ErrorRoot       string        `yaml:"error_root"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// DatabaseConfig holds the optional failure ledger connection.
// The ledger is disabled when Host is empty.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// Enabled reports whether the failure ledger should be used
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// OpsConfig holds the optional health/metrics HTTP server settings.
// The server is disabled when Port is 0.
type OpsConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file, then applies defaults
// and environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	config.applyEnv()

	return config, nil
}

// LoadRabbitMQ re-reads only the broker section of the configuration file
func LoadRabbitMQ(configPath string) (*RabbitMQConfig, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	return &cfg.RabbitMQ, nil
}

// parse decodes either the full layout or a flat legacy rabbitmq.json
// object with host/port/vhost/user/password at the top level
func parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	var top map[string]any
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	_, hasSection := top["rabbitmq"]
	_, hasHost := top["host"]
	if hasHost && !hasSection {
		if err := yaml.Unmarshal(data, &config.RabbitMQ); err != nil {
			return nil, err
		}
	}

	return &config, nil
}

// ApplyDefaults fills unset fields with the worker's defaults
func (c *Config) ApplyDefaults() {
	if c.RabbitMQ.Port == 0 {
		c.RabbitMQ.Port = DefaultRabbitMQPort
	}
	if c.RabbitMQ.VHost == "" {
		c.RabbitMQ.VHost = "/"
	}
	if c.RabbitMQ.Queue.Name == "" {
		c.RabbitMQ.Queue.Name = domain.DefaultQueueName
	}
	if c.RabbitMQ.Consumer.PrefetchCount == 0 {
		c.RabbitMQ.Consumer.PrefetchCount = domain.DefaultPrefetchCount
	}
	if c.RabbitMQ.Connection.RetryAttempts == 0 {
		c.RabbitMQ.Connection.RetryAttempts = 1
	}
	if c.RabbitMQ.Connection.RetryInterval == 0 {
		c.RabbitMQ.Connection.RetryInterval = 5 * time.Second
	}
	if c.RabbitMQ.Connection.Heartbeat == 0 {
		c.RabbitMQ.Connection.Heartbeat = 10 * time.Second
	}
	if c.RabbitMQ.Connection.ConnectionTimeout == 0 {
		c.RabbitMQ.Connection.ConnectionTimeout = 30 * time.Second
	}

	if c.Worker.Binary == "" {
		c.Worker.Binary = domain.DefaultBinary
	}
	if c.Worker.JobTimeout == 0 {
		c.Worker.JobTimeout = domain.DefaultJobTimeout
	}
	if c.Worker.KillGrace == 0 {
		c.Worker.KillGrace = 5 * time.Second
	}
	if c.Worker.RestartCooldown == 0 {
		c.Worker.RestartCooldown = domain.DefaultRestartCooldown
	}
	if c.Worker.ErrorRoot == "" {
		c.Worker.ErrorRoot = "/"
	}

	if c.App.Name == "" {
		c.App.Name = "dep-queue-worker"
	}

	if c.Database.Enabled() {
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
		if c.Database.MaxOpenConns == 0 {
			c.Database.MaxOpenConns = 4
		}
		if c.Database.MaxIdleConns == 0 {
			c.Database.MaxIdleConns = 2
		}
	}

	if c.Ops.ShutdownTimeout == 0 {
		c.Ops.ShutdownTimeout = 5 * time.Second
	}
}

// applyEnv lets secrets come from the environment instead of the file
func (c *Config) applyEnv() {
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		c.RabbitMQ.Password = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
}

// ValidateWorkerConfig checks if the configuration is valid for the queue worker
func (c *Config) ValidateWorkerConfig() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.RabbitMQ.Consumer.PrefetchCount < 0 {
		return fmt.Errorf("rabbitmq prefetch_count must not be negative")
	}

	if c.Worker.Binary == "" {
		return fmt.Errorf("worker binary is required")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.RestartCooldown < 0 {
		return fmt.Errorf("worker restart_cooldown must not be negative")
	}

	if c.Database.Enabled() {
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Ops.Port != 0 && (c.Ops.Port < MinPort || c.Ops.Port > MaxPort) {
		return fmt.Errorf("invalid ops port: %d (must be between %d and %d)", c.Ops.Port, MinPort, MaxPort)
	}

	return nil
}
