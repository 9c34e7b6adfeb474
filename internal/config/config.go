package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		TLS            struct {
			Enabled  bool   `yaml:"enabled"`
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"server"`

	Database struct {
		MySQL struct {
			DSN string `yaml:"dsn"` // Data Source Name
		} `yaml:"mysql"`
	} `yaml:"database"`

	JWT struct {
		Secret string `yaml:"secret"`
		Expire int    `yaml:"expire"` // hours
	} `yaml:"jwt"`

	Redis struct {
		Host              string `yaml:"host"`
		Port              int    `yaml:"port"`
		Password          string `yaml:"password"`
		DB                int    `yaml:"db"`
		RevocationChannel string `yaml:"revocation_channel"`
	} `yaml:"redis"`

	Session struct {
		SendBuffer     int           `yaml:"send_buffer"`
		DropLimit      int           `yaml:"drop_limit"`
		MaxMessageSize int64         `yaml:"max_message_size"`
		HandlerTimeout time.Duration `yaml:"handler_timeout"`
		WriteWait      time.Duration `yaml:"write_wait"`
		PongWait       time.Duration `yaml:"pong_wait"`
		RateLimit      float64       `yaml:"rate_limit"` // requests per second, 0 disables
		RateBurst      int           `yaml:"rate_burst"`
	} `yaml:"session"`

	Social struct {
		MaxMessageLength int `yaml:"max_message_length"`
	} `yaml:"social"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// GlobalConfig is the process-wide configuration.
var GlobalConfig = Default()

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8082
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Server.TLS.CertFile = "./certs/server.crt"
	cfg.Server.TLS.KeyFile = "./certs/server.key"
	cfg.Database.MySQL.DSN = "root:123456@tcp(127.0.0.1:3306)/messer?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.JWT.Secret = "default_secret_key_for_development"
	cfg.JWT.Expire = 24
	cfg.Redis.Host = "127.0.0.1"
	cfg.Redis.Port = 6379
	cfg.Redis.RevocationChannel = "auth:revoked"
	cfg.Session.SendBuffer = 256
	cfg.Session.DropLimit = 32
	cfg.Session.MaxMessageSize = 16 * 1024
	cfg.Session.HandlerTimeout = 10 * time.Second
	cfg.Session.WriteWait = 10 * time.Second
	cfg.Session.PongWait = 60 * time.Second
	cfg.Session.RateLimit = 20
	cfg.Session.RateBurst = 40
	cfg.Social.MaxMessageLength = 200
	cfg.Log.Level = "info"
	return cfg
}

// Init loads path into GlobalConfig. A missing file keeps the defaults.
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

// Load reads the YAML file at path on top of the defaults, then applies
// .env and MESSER_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("MESSER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MESSER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("MESSER_MYSQL_DSN"); v != "" {
		cfg.Database.MySQL.DSN = v
	}
	if v := os.Getenv("MESSER_JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}
	if v := os.Getenv("MESSER_REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("MESSER_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MESSER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if os.Getenv("ENABLE_TLS") == "true" {
		cfg.Server.TLS.Enabled = true
	}
	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		cfg.Server.TLS.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		cfg.Server.TLS.KeyFile = v
	}
	return nil
}

// fillDefaults repairs zero values a partial file may leave behind.
func (c *Config) fillDefaults() {
	def := Default()
	if c.JWT.Secret == "" {
		c.JWT.Secret = def.JWT.Secret
	}
	if c.JWT.Expire <= 0 {
		c.JWT.Expire = def.JWT.Expire
	}
	if c.Redis.Host == "" {
		c.Redis.Host = def.Redis.Host
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = def.Redis.Port
	}
	if c.Redis.RevocationChannel == "" {
		c.Redis.RevocationChannel = def.Redis.RevocationChannel
	}
	if c.Session.SendBuffer <= 0 {
		c.Session.SendBuffer = def.Session.SendBuffer
	}
	if c.Session.DropLimit <= 0 {
		c.Session.DropLimit = def.Session.DropLimit
	}
	if c.Session.MaxMessageSize <= 0 {
		c.Session.MaxMessageSize = def.Session.MaxMessageSize
	}
	if c.Session.HandlerTimeout <= 0 {
		c.Session.HandlerTimeout = def.Session.HandlerTimeout
	}
	if c.Session.WriteWait <= 0 {
		c.Session.WriteWait = def.Session.WriteWait
	}
	if c.Session.PongWait <= 0 {
		c.Session.PongWait = def.Session.PongWait
	}
	if c.Social.MaxMessageLength <= 0 {
		c.Social.MaxMessageLength = def.Social.MaxMessageLength
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// RedisAddr returns host:port of the Redis server.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
