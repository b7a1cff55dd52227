package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Langfuse  LangfuseConfig  `yaml:"langfuse"`
	Mode      string          `yaml:"mode"` // "readonly" (default) or "readwrite"
	Server    ServerConfig    `yaml:"server"`
	Audit     AuditConfig     `yaml:"audit"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Response  ResponseConfig  `yaml:"response"`
}

type LangfuseConfig struct {
	BaseURL          string        `yaml:"base_url"`
	PublicKey        string        `yaml:"public_key"`
	SecretKey        string        `yaml:"secret_key"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxResponseBytes int64         `yaml:"max_response_bytes"`
}

type ServerConfig struct {
	Transport    string        `yaml:"transport"` // "stdio" or "http"
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	APIKeyHash   string        `yaml:"api_key_hash"` // bcrypt hash; empty disables bearer auth
	MetricsAddr  string        `yaml:"metrics_addr"` // stdio only: optional listener for /health and /metrics

	AllowedOrigins []string `yaml:"allowed_origins"`
}

type AuditConfig struct {
	Sink          string        `yaml:"sink"` // "log", "file" or "postgres"
	Path          string        `yaml:"path"`
	DatabaseURL   string        `yaml:"database_url"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type RateLimitConfig struct {
	Default int           `yaml:"default"`
	Window  time.Duration `yaml:"window"`
}

type ResponseConfig struct {
	MaxBytes int `yaml:"max_bytes"`
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := expandEnvVars(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Langfuse: LangfuseConfig{
			BaseURL:          "https://cloud.langfuse.com",
			Timeout:          30 * time.Second,
			MaxResponseBytes: 10 * 1024 * 1024,
		},
		Mode: "readonly",
		Server: ServerConfig{
			Transport:    "stdio",
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 2 * time.Minute,
		},
		Audit: AuditConfig{
			Sink:          "log",
			BatchSize:     50,
			FlushInterval: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			Default: 120,
			Window:  time.Minute,
		},
		Response: ResponseConfig{
			MaxBytes: 200_000,
		},
	}
}

func expandEnvVars(s string) string {
	return os.ExpandEnv(s)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LANGFUSE_PUBLIC_KEY"); v != "" {
		cfg.Langfuse.PublicKey = v
	}
	if v := os.Getenv("LANGFUSE_SECRET_KEY"); v != "" {
		cfg.Langfuse.SecretKey = v
	}
	if v := os.Getenv("LANGFUSE_BASEURL"); v != "" {
		cfg.Langfuse.BaseURL = v
	}
	if v := os.Getenv("LANGFUSE_TIMEOUT"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Langfuse.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("LANGFUSE_MCP_MODE"); v != "" {
		cfg.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("LANGFUSE_MCP_TRANSPORT"); v != "" {
		cfg.Server.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("LANGFUSE_MCP_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LANGFUSE_MCP_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LANGFUSE_MCP_API_KEY_HASH"); v != "" {
		cfg.Server.APIKeyHash = v
	}
	if v := os.Getenv("LANGFUSE_MCP_AUDIT_SINK"); v != "" {
		cfg.Audit.Sink = strings.ToLower(v)
	}
	if v := os.Getenv("LANGFUSE_MCP_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}
	if v := os.Getenv("LANGFUSE_MCP_DATABASE_URL"); v != "" {
		cfg.Audit.DatabaseURL = v
	}
	if v := os.Getenv("LANGFUSE_MCP_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, o)
			}
		}
	}
	if v := os.Getenv("LANGFUSE_MCP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks the settings that do not depend on the Langfuse
// credentials. Credentials and the https invariant are checked when the
// endpoint is resolved.
func (c *Config) Validate() error {
	switch c.Mode {
	case "readonly", "readwrite":
	default:
		return fmt.Errorf("mode must be readonly or readwrite, got %q", c.Mode)
	}
	if c.Langfuse.Timeout <= 0 {
		return fmt.Errorf("langfuse.timeout must be positive")
	}
	if c.Langfuse.MaxResponseBytes <= 0 {
		return fmt.Errorf("langfuse.max_response_bytes must be positive")
	}

	switch c.Server.Transport {
	case "stdio":
	case "http":
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
		}
		if c.Server.ReadTimeout <= 0 {
			return fmt.Errorf("server.read_timeout must be positive")
		}
	default:
		return fmt.Errorf("server.transport must be stdio or http, got %q", c.Server.Transport)
	}

	switch c.Audit.Sink {
	case "log":
	case "file":
		if c.Audit.Path == "" {
			return fmt.Errorf("audit.path is required for the file sink")
		}
	case "postgres":
		if c.Audit.DatabaseURL == "" {
			return fmt.Errorf("audit.database_url is required for the postgres sink")
		}
		if c.Audit.BatchSize <= 0 {
			return fmt.Errorf("audit.batch_size must be positive")
		}
		if c.Audit.FlushInterval <= 0 {
			return fmt.Errorf("audit.flush_interval must be positive")
		}
	default:
		return fmt.Errorf("audit.sink must be log, file or postgres, got %q", c.Audit.Sink)
	}

	if c.RateLimit.Default < 0 {
		return fmt.Errorf("rate_limit.default must not be negative")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if c.Response.MaxBytes <= 0 {
		return fmt.Errorf("response.max_bytes must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) MigrationsSource() string {
	return "file://migrations"
}

func (c *Config) DatabaseURLForMigrate() string {
	url := c.Audit.DatabaseURL
	if !strings.Contains(url, "sslmode=") {
		if strings.Contains(url, "?") {
			url += "&sslmode=disable"
		} else {
			url += "?sslmode=disable"
		}
	}
	return url
}
