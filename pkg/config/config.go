// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Kafka, Azure, upstream clients, Redis, Postgres, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server            ServerConfig     `yaml:"server"`
	Kafka             KafkaConfig      `yaml:"kafka"`
	Azure             AzureConfig      `yaml:"azure"`
	Inntektskomponent UpstreamConfig   `yaml:"inntektskomponent"`
	Popp              UpstreamConfig   `yaml:"popp"`
	HTTPClient        HTTPClientConfig `yaml:"httpClient"`
	Redis             RedisConfig      `yaml:"redis"`
	Postgres          PostgresConfig   `yaml:"postgres"`
	Logging           LoggingConfig    `yaml:"logging"`
	Tracing           TracingConfig    `yaml:"tracing"`
}

// ServerConfig holds settings for the actuator HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// KafkaConfig holds Kafka broker, topic and consumer-group settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
	// Threads is the number of partition processors in the engine.
	Threads int            `yaml:"threads"`
	TLS     KafkaTLSConfig `yaml:"tls"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Inntekter string `yaml:"inntekter"`
}

// KafkaTLSConfig points at the client certificate material mounted by the
// platform. TLS is enabled when all three paths are set.
type KafkaTLSConfig struct {
	CertificatePath string `yaml:"certificatePath"`
	PrivateKeyPath  string `yaml:"privateKeyPath"`
	CAPath          string `yaml:"caPath"`
}

// Enabled reports whether every certificate path is configured.
func (t KafkaTLSConfig) Enabled() bool {
	return t.CertificatePath != "" && t.PrivateKeyPath != "" && t.CAPath != ""
}

// AzureConfig holds the client-credentials settings for Azure AD.
type AzureConfig struct {
	TokenEndpoint string `yaml:"tokenEndpoint"`
	ClientID      string `yaml:"clientId"`
	ClientSecret  string `yaml:"clientSecret"`
	// TokenCacheTTLSkew is subtracted from expires_in before caching.
	TokenCacheTTLSkew time.Duration `yaml:"tokenCacheTtlSkew"`
}

// UpstreamConfig describes one income upstream.
type UpstreamConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Scope   string `yaml:"scope"`
	// Filter and Formaal are only used by inntektskomponenten.
	Filter       string  `yaml:"filter"`
	Formaal      string  `yaml:"formaal"`
	RateLimitRPS float64 `yaml:"rateLimitRps"`
}

// HTTPClientConfig holds transport timeouts and the retry policy shared by
// the upstream clients.
type HTTPClientConfig struct {
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	SocketTimeout  time.Duration `yaml:"socketTimeout"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

// RetryConfig controls the bounded exponential backoff applied to upstream
// calls.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// RedisConfig holds Redis connection parameters. Redis backs the shared
// token cache and is optional.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// PostgresConfig holds PostgreSQL connection parameters for the failure
// ledger. The ledger is disabled unless Enabled is set.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name. A configured URL wins.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
// SecurePath is the file receiving personal data and raw upstream bodies.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	SecurePath string `yaml:"securePath"`
}

// TracingConfig toggles logging of enrichment span trees.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate reports every missing setting the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required"))
	}
	if c.Kafka.Topics.Inntekter == "" {
		errs = append(errs, errors.New("kafka.topics.inntekter is required"))
	}
	if c.Kafka.ConsumerGroup == "" {
		errs = append(errs, errors.New("kafka.consumerGroup is required"))
	}
	if c.Kafka.Threads <= 0 {
		errs = append(errs, fmt.Errorf("kafka.threads must be positive, got %d", c.Kafka.Threads))
	}
	if c.Inntektskomponent.BaseURL == "" {
		errs = append(errs, errors.New("inntektskomponent.baseUrl is required"))
	}
	if c.Popp.BaseURL == "" {
		errs = append(errs, errors.New("popp.baseUrl is required"))
	}
	if c.Azure.TokenEndpoint == "" {
		errs = append(errs, errors.New("azure.tokenEndpoint is required"))
	}
	if c.HTTPClient.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("httpClient.retry.maxAttempts must be positive, got %d", c.HTTPClient.Retry.MaxAttempts))
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "aap-inntekt",
			Topics: KafkaTopics{
				Inntekter: "aap.inntekter.v1",
			},
			Threads: 1,
		},
		Azure: AzureConfig{
			TokenCacheTTLSkew: time.Minute,
		},
		Inntektskomponent: UpstreamConfig{
			BaseURL: "http://localhost:8091",
			Filter:  "ArbeidsavklaringspengerA-inntekt",
			Formaal: "Arbeidsavklaringspenger",
		},
		Popp: UpstreamConfig{
			BaseURL: "http://localhost:8092",
		},
		HTTPClient: HTTPClientConfig{
			ConnectTimeout: 5 * time.Second,
			SocketTimeout:  30 * time.Second,
			RequestTimeout: 60 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:  4,
				InitialDelay: 500 * time.Millisecond,
				MaxDelay:     10 * time.Second,
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "inntekt",
			User:            "inntekt",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyEnvOverrides reads the platform environment variables and overrides
// the corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}
	if v := os.Getenv("KAFKA_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Kafka.Threads = n
		}
	}
	if v := os.Getenv("KAFKA_CERTIFICATE_PATH"); v != "" {
		cfg.Kafka.TLS.CertificatePath = v
	}
	if v := os.Getenv("KAFKA_PRIVATE_KEY_PATH"); v != "" {
		cfg.Kafka.TLS.PrivateKeyPath = v
	}
	if v := os.Getenv("KAFKA_CA_PATH"); v != "" {
		cfg.Kafka.TLS.CAPath = v
	}
	if v := os.Getenv("AZURE_OPENID_CONFIG_TOKEN_ENDPOINT"); v != "" {
		cfg.Azure.TokenEndpoint = v
	}
	if v := os.Getenv("AZURE_APP_CLIENT_ID"); v != "" {
		cfg.Azure.ClientID = v
	}
	if v := os.Getenv("AZURE_APP_CLIENT_SECRET"); v != "" {
		cfg.Azure.ClientSecret = v
	}
	if v := os.Getenv("INNTEKTSKOMPONENT_BASE_URL"); v != "" {
		cfg.Inntektskomponent.BaseURL = v
	}
	if v := os.Getenv("INNTEKTSKOMPONENT_SCOPE"); v != "" {
		cfg.Inntektskomponent.Scope = v
	}
	if v := os.Getenv("POPP_BASE_URL"); v != "" {
		cfg.Popp.BaseURL = v
	}
	if v := os.Getenv("POPP_SCOPE"); v != "" {
		cfg.Popp.Scope = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SECURE_LOG_PATH"); v != "" {
		cfg.Logging.SecurePath = v
	}
}
