package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr           string        `yaml:"addr" env:"GRPC_ADDR"`
	DefaultTimeout time.Duration `yaml:"defaultTimeout" env:"GRPC_DEFAULT_TIMEOUT"`
}

type HTTP struct {
	Addr           string        `yaml:"addr" env:"HTTP_ADDR"`
	ReadTimeout    time.Duration `yaml:"readTimeout" env:"HTTP_READ_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"requestTimeout" env:"HTTP_REQUEST_TIMEOUT"`
	IdleTimeout    time.Duration `yaml:"idleTimeout" env:"HTTP_IDLE_TIMEOUT"`
	AllowedOrigins []string      `yaml:"allowedOrigins" env:"HTTP_ALLOWED_ORIGINS"`
}

type Logging struct {
	Env       string `yaml:"env" env:"APP_ENV"`              // dev|stage|prod
	Service   string `yaml:"service" env:"LOG_SERVICE"`      // chat-service
	Version   string `yaml:"version" env:"APP_VERSION"`      // v0.1.0
	Backend   string `yaml:"backend" env:"LOG_BACKEND"`      // std|zap
	Level     string `yaml:"level" env:"LOG_LEVEL"`          // debug|info|warn|error
	AddSource bool   `yaml:"addSource" env:"LOG_ADD_SOURCE"` // false|true
	Debug     bool   `yaml:"debug" env:"LOG_DEBUG"`          // false|true
}

type Postgres struct {
	DSN             string        `yaml:"dsn" env:"POSTGRES_DSN"`
	MaxConns        int32         `yaml:"maxConns" env:"POSTGRES_MAX_CONNS"`
	MinConns        int32         `yaml:"minConns" env:"POSTGRES_MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime" env:"POSTGRES_MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime" env:"POSTGRES_MAX_CONN_IDLE_TIME"`
	Migrate         bool          `yaml:"migrate" env:"POSTGRES_MIGRATE"`
}

type Badger struct {
	Dir      string `yaml:"dir" env:"BADGER_DIR"`
	InMemory bool   `yaml:"inMemory" env:"BADGER_IN_MEMORY"`
}

// Redis — хранилище присутствия. Пустой URL отключает presence.
type Redis struct {
	URL         string        `yaml:"url" env:"REDIS_URL"`
	PresenceTTL time.Duration `yaml:"presenceTTL" env:"REDIS_PRESENCE_TTL"`
}

type JWT struct {
	PublicKeyPath string        `yaml:"publicKeyPath" env:"JWT_PUBLIC_KEY_PATH"`
	Issuer        string        `yaml:"issuer" env:"JWT_ISSUER"`
	Audience      string        `yaml:"audience" env:"JWT_AUDIENCE"`
	ClockSkew     time.Duration `yaml:"clockSkew" env:"JWT_CLOCK_SKEW"`
}

type Chat struct {
	MaxContentLength int `yaml:"maxContentLength" env:"CHAT_MAX_CONTENT_LENGTH"`
	DefaultPageSize  int `yaml:"defaultPageSize" env:"CHAT_DEFAULT_PAGE_SIZE"`
	MaxPageSize      int `yaml:"maxPageSize" env:"CHAT_MAX_PAGE_SIZE"`
}

type WS struct {
	PingInterval   time.Duration `yaml:"pingInterval" env:"WS_PING_INTERVAL"`
	WriteTimeout   time.Duration `yaml:"writeTimeout" env:"WS_WRITE_TIMEOUT"`
	SendBuffer     int           `yaml:"sendBuffer" env:"WS_SEND_BUFFER"`
	ReadLimit      int64         `yaml:"readLimit" env:"WS_READ_LIMIT"`
	AllowedOrigins []string      `yaml:"allowedOrigins" env:"WS_ALLOWED_ORIGINS"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Badger   Badger   `yaml:"badger"`
	Redis    Redis    `yaml:"redis"`
	JWT      JWT      `yaml:"jwt"`
	Chat     Chat     `yaml:"chat"`
	WS       WS       `yaml:"ws"`
}

// LoadConfig читает YAML из CONFIG_PATH, поверх него — переменные окружения.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.JWT.PublicKeyPath == "" {
		return errors.New("jwt.publicKeyPath is required")
	}
	if !c.Badger.InMemory && c.Badger.Dir == "" {
		return errors.New("badger.dir is required unless badger.inMemory is set")
	}
	if c.Chat.MaxPageSize < 0 || c.Chat.DefaultPageSize < 0 || c.Chat.MaxContentLength < 0 {
		return errors.New("chat limits must not be negative")
	}
	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "chat-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	c.HTTP.ReadTimeout = durationOr(c.HTTP.ReadTimeout, 10*time.Second)
	c.HTTP.RequestTimeout = durationOr(c.HTTP.RequestTimeout, 30*time.Second)
	c.HTTP.IdleTimeout = durationOr(c.HTTP.IdleTimeout, 60*time.Second)
	c.GRPC.DefaultTimeout = durationOr(c.GRPC.DefaultTimeout, 10*time.Second)
	c.Redis.PresenceTTL = durationOr(c.Redis.PresenceTTL, time.Minute)
	c.JWT.ClockSkew = durationOr(c.JWT.ClockSkew, 30*time.Second)
	return nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
