// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	AdminDB struct {
		URL string `yaml:"url"`
	} `yaml:"admin_db"`

	Query struct {
		MaxResultRows int           `yaml:"max_result_rows"`
		Timeout       time.Duration `yaml:"timeout"`
		MaxRetries    int           `yaml:"max_retries"`
	} `yaml:"query"`

	Pool struct {
		MinConns        int           `yaml:"min_conns"`
		MaxConns        int           `yaml:"max_conns"`
		CheckoutTimeout time.Duration `yaml:"checkout_timeout"`
		IdleTTL         time.Duration `yaml:"idle_ttl"`
	} `yaml:"pool"`

	Directory struct {
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"directory"`

	LLM struct {
		APIKey  string        `yaml:"api_key"`
		BaseURL string        `yaml:"base_url"`
		Model   string        `yaml:"model"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"llm"`

	Audit struct {
		QueueSize int    `yaml:"queue_size"`
		AMQPURL   string `yaml:"amqp_url"`
	} `yaml:"audit"`

	Auth struct {
		Required  bool   `yaml:"required"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	RateLimit struct {
		PerSecond float64 `yaml:"per_second"`
		Burst     int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// LoadConfig reads the YAML config file. A .env file, if present, is loaded
// first so that ${VAR} references in the YAML (secrets, connection strings)
// resolve against it.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	if cfg.AdminDB.URL == "" {
		return nil, fmt.Errorf("admin_db.url is required")
	}
	if cfg.Auth.Required && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required when auth.required is true")
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Query.MaxResultRows <= 0 {
		c.Query.MaxResultRows = 1000
	}
	if c.Query.Timeout <= 0 {
		c.Query.Timeout = 30 * time.Second
	}
	if c.Query.MaxRetries <= 0 {
		c.Query.MaxRetries = 5
	}
	if c.Pool.MinConns <= 0 {
		c.Pool.MinConns = 1
	}
	if c.Pool.MaxConns <= 0 {
		c.Pool.MaxConns = 5
	}
	if c.Pool.CheckoutTimeout <= 0 {
		c.Pool.CheckoutTimeout = 5 * time.Second
	}
	if c.Pool.IdleTTL <= 0 {
		c.Pool.IdleTTL = 10 * time.Minute
	}
	if c.Directory.CacheTTL <= 0 {
		c.Directory.CacheTTL = time.Minute
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 15 * time.Second
	}
	if c.Audit.QueueSize <= 0 {
		c.Audit.QueueSize = 256
	}
	if c.RateLimit.PerSecond <= 0 {
		c.RateLimit.PerSecond = 5
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
}
