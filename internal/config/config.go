package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type AppConfig struct {
	Name            string        `yaml:"name"`
	Port            string        `yaml:"port"`
	Env             string        `yaml:"env"`
	LogLevel        string        `yaml:"log_level"`
	StorageDriver   string        `yaml:"storage_driver"`
	CheckoutTimeout time.Duration `yaml:"checkout_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"`
}

// DSN builds a keyword/value connection string understood by pgx.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CartTTL  time.Duration `yaml:"cart_ttl"`
}

type KafkaConfig struct {
	Brokers        []string      `yaml:"brokers"`
	Topic          string        `yaml:"topic"`
	RelayInterval  time.Duration `yaml:"relay_interval"`
	RelayBatchSize int           `yaml:"relay_batch_size"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// NewConfig reads .env (if present), then the YAML file named by CONFIG_FILE
// (if set), then environment variables. Later sources win.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			Name:            "checkout-service",
			Port:            "8080",
			Env:             "prod",
			LogLevel:        "info",
			StorageDriver:   StorageDriverPostgres,
			CheckoutTimeout: 5 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Port:            "5432",
			SSLMode:         "disable",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MigrateOnStart:  true,
		},
		Redis: RedisConfig{
			CartTTL: 72 * time.Hour,
		},
		Kafka: KafkaConfig{
			Topic:          "orders",
			RelayInterval:  time.Second,
			RelayBatchSize: 100,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.App.Env, "APP_ENV")
	setString(&cfg.App.LogLevel, "LOG_LEVEL")
	setString(&cfg.App.StorageDriver, "STORAGE_DRIVER")

	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")

	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok && v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}

	var errs []error
	errs = append(errs,
		setDuration(&cfg.App.CheckoutTimeout, "CHECKOUT_TIMEOUT"),
		setDuration(&cfg.App.ShutdownTimeout, "SHUTDOWN_TIMEOUT"),
		setInt32(&cfg.Postgres.MaxConns, "DB_MAX_CONNS"),
		setInt32(&cfg.Postgres.MinConns, "DB_MIN_CONNS"),
		setDuration(&cfg.Postgres.MaxConnLifetime, "DB_MAX_CONN_LIFETIME"),
		setBool(&cfg.Postgres.MigrateOnStart, "DB_MIGRATE"),
		setInt(&cfg.Redis.DB, "REDIS_DB"),
		setDuration(&cfg.Redis.CartTTL, "CART_TTL"),
		setDuration(&cfg.Kafka.RelayInterval, "OUTBOX_RELAY_INTERVAL"),
		setInt(&cfg.Kafka.RelayBatchSize, "OUTBOX_BATCH_SIZE"),
	)

	return errors.Join(errs...)
}

// Validate checks the settings required by the selected storage driver.
func (c *Config) Validate() error {
	switch c.App.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.Postgres.Host == "" {
			return errors.New("DB_HOST is required")
		}
		if c.Postgres.User == "" {
			return errors.New("DB_USER is required")
		}
		if c.Postgres.DBName == "" {
			return errors.New("DB_NAME is required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.App.StorageDriver)
	}

	if c.App.CheckoutTimeout <= 0 {
		return errors.New("checkout timeout must be positive")
	}
	if c.Kafka.RelayBatchSize <= 0 {
		return errors.New("outbox batch size must be positive")
	}
	if c.Kafka.RelayInterval <= 0 {
		return errors.New("outbox relay interval must be positive")
	}

	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt32(dst *int32, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = int32(n)
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
