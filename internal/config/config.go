// Package config loads orderdesk settings from defaults, an optional YAML
// file, a .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendREST     = "rest"

	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

type Config struct {
	HTTP     HTTPConfig
	Store    StoreConfig
	REST     RESTConfig
	Cache    CacheConfig
	Kafka    KafkaConfig
	Breaker  BreakerConfig
	Log      LogConfig
	Instance string
}

type HTTPConfig struct {
	Port string
}

type StoreConfig struct {
	Backend string
	DSN     string
}

type RESTConfig struct {
	URL     string
	Key     string
	Table   string
	Timeout time.Duration
}

type CacheConfig struct {
	Backend  string
	TTL      time.Duration
	RedisURL string
}

type KafkaConfig struct {
	Brokers string
	Topic   string
	Group   string
}

func (k KafkaConfig) Enabled() bool {
	return strings.TrimSpace(k.Brokers) != ""
}

type BreakerConfig struct {
	MaxFailures int
	Timeout     time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("rest.url", "")
	v.SetDefault("rest.key", "")
	v.SetDefault("rest.table", "orders")
	v.SetDefault("rest.timeout", "10s")
	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "orders.changed")
	v.SetDefault("kafka.group", "orderdesk")
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("instance.id", "")
}

// Load reads the configuration. path names an optional YAML file; a missing
// .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		HTTP: HTTPConfig{Port: v.GetString("http.port")},
		Store: StoreConfig{
			Backend: strings.ToLower(v.GetString("store.backend")),
			DSN:     v.GetString("store.dsn"),
		},
		REST: RESTConfig{
			URL:     v.GetString("rest.url"),
			Key:     v.GetString("rest.key"),
			Table:   v.GetString("rest.table"),
			Timeout: v.GetDuration("rest.timeout"),
		},
		Cache: CacheConfig{
			Backend:  strings.ToLower(v.GetString("cache.backend")),
			TTL:      v.GetDuration("cache.ttl"),
			RedisURL: v.GetString("redis.url"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetString("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
			Group:   v.GetString("kafka.group"),
		},
		Breaker: BreakerConfig{
			MaxFailures: v.GetInt("breaker.max_failures"),
			Timeout:     v.GetDuration("breaker.timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Instance: v.GetString("instance.id"),
	}
	if cfg.Instance == "" {
		cfg.Instance = uuid.NewString()
	}
	return cfg
}

// Validate reports every setting that would stop the service from starting.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite, BackendPostgres, BackendMySQL:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the %s backend", c.Store.Backend))
		}
	case BackendREST:
		if c.REST.URL == "" {
			errs = append(errs, errors.New("rest.url is required for the rest backend"))
		}
		if c.REST.Key == "" {
			errs = append(errs, errors.New("rest.key is required for the rest backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
