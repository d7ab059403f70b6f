package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is the software version written into every audit log entry.
const Version = "0.2.0"

// SecretCount is the number of #SECRETn# placeholders in the registry query templates.
const SecretCount = 5

type Config struct {
	ServerConfig    ServerConfig    `json:"server"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RegistryConfig  RegistryConfig  `json:"registry"`
	RateLimitConfig RateLimitConfig `json:"rate_limit"`
	RedisConfig     RedisConfig     `json:"redis"`
	VaultConfig     VaultConfig     `json:"vault"`
	LoggingConfig   LoggingConfig   `json:"logging"`
	ProviderConfig  ProviderConfig  `json:"provider"`
	Route           string          `json:"route"` // RTE tag written to audit logs
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `json:"port"`
	Host            string        `json:"host"`
	ProductionMode  bool          `json:"production_mode"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DatabaseConfig holds the persistent store connection. The URI scheme selects
// the driver: postgres:// (pgx) or mongodb:// / mongodb+srv:// (mongo-driver).
type DatabaseConfig struct {
	URI      string `json:"uri"`
	Database string `json:"database"` // Mongo database name, ignored for Postgres
}

// RegistryConfig holds the outbound vehicle registry settings
type RegistryConfig struct {
	HostURL     string              `json:"host_url"`
	ProxyURL    string              `json:"proxy_url"` // forward proxy with embedded credentials
	Timeout     time.Duration       `json:"timeout"`
	TemplateDir string              `json:"template_dir"` // empty = embedded templates
	Secrets     [SecretCount]string `json:"-"`
}

// RateLimitConfig holds the per-client request ceiling
type RateLimitConfig struct {
	RequestsPerHour int `json:"requests_per_hour"`
}

// RedisConfig holds Redis configuration for rate limiting counters
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV v2 mount
	SecretPath string `json:"secret_path"` // holds secret1..secret5
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	JSONFormat bool   `json:"json_format"` // false = console writer
}

// ProviderConfig holds the payment provider credentials used by the request builder
type ProviderConfig struct {
	Account string `json:"account"`
	Secret  string `json:"secret"`
}

// Load reads .env files into the process environment (real environment
// variables win) and builds the configuration. Missing required values are all
// reported in a single error.
func Load() (*Config, error) {
	loadDotEnv(".env", filepath.Join("..", ".env"))
	return FromViper(newViper())
}

func loadDotEnv(paths ...string) {
	for _, p := range paths {
		// godotenv.Load never overrides variables that are already set
		_ = godotenv.Load(p)
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("DATABASE_NAME", "vehicles")
	v.SetDefault("REGISTRY_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("LOG_JSON", true)
	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("VAULT_ENABLED", false)
	v.SetDefault("VAULT_ADDR", "http://localhost:8200")
	v.SetDefault("VAULT_MOUNT_PATH", "secret")
	v.SetDefault("VAULT_SECRET_PATH", "vehicle-lookup/registry")
	return v
}

// FromViper builds and validates a Config from an already prepared viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var missing []string
	required := func(keys ...string) string {
		for _, k := range keys {
			if val := strings.TrimSpace(v.GetString(k)); val != "" {
				return val
			}
		}
		missing = append(missing, keys[0])
		return ""
	}

	cfg := &Config{}

	cfg.DatabaseConfig.URI = required("DATABASE_URL", "MONGODB_URI")
	cfg.DatabaseConfig.Database = v.GetString("DATABASE_NAME")

	cfg.RegistryConfig.HostURL = required("MAIN_HOST_URL")
	cfg.RegistryConfig.ProxyURL = required("FIXIE_URL")
	cfg.RegistryConfig.Timeout = v.GetDuration("REGISTRY_TIMEOUT")
	cfg.RegistryConfig.TemplateDir = v.GetString("TEMPLATE_DIR")

	cfg.VaultConfig.Enabled = v.GetBool("VAULT_ENABLED")
	cfg.VaultConfig.Address = v.GetString("VAULT_ADDR")
	cfg.VaultConfig.Token = v.GetString("VAULT_TOKEN")
	cfg.VaultConfig.MountPath = v.GetString("VAULT_MOUNT_PATH")
	cfg.VaultConfig.SecretPath = v.GetString("VAULT_SECRET_PATH")

	for i := range cfg.RegistryConfig.Secrets {
		key := fmt.Sprintf("SECRET%d", i+1)
		if cfg.VaultConfig.Enabled {
			// filled from Vault at startup, env value is only a fallback
			cfg.RegistryConfig.Secrets[i] = v.GetString(key)
			continue
		}
		cfg.RegistryConfig.Secrets[i] = required(key)
	}

	rate := required("REQUEST_RATE")
	port := required("PORT")
	cfg.Route = required("RTE")

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	var err error
	if cfg.RateLimitConfig.RequestsPerHour, err = strconv.Atoi(rate); err != nil || cfg.RateLimitConfig.RequestsPerHour <= 0 {
		return nil, fmt.Errorf("REQUEST_RATE must be a positive integer, got %q", rate)
	}
	if cfg.ServerConfig.Port, err = strconv.Atoi(port); err != nil || cfg.ServerConfig.Port <= 0 {
		return nil, fmt.Errorf("PORT must be a positive integer, got %q", port)
	}
	if err := validateURL("MAIN_HOST_URL", cfg.RegistryConfig.HostURL, false); err != nil {
		return nil, err
	}
	if err := validateURL("FIXIE_URL", cfg.RegistryConfig.ProxyURL, true); err != nil {
		return nil, err
	}
	if cfg.RegistryConfig.Timeout <= 0 {
		return nil, fmt.Errorf("REGISTRY_TIMEOUT must be positive")
	}

	cfg.ServerConfig.Host = v.GetString("HOST")
	cfg.ServerConfig.ProductionMode = v.GetString("GIN_MODE") == "release"
	cfg.ServerConfig.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.ServerConfig.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.ServerConfig.ShutdownTimeout = v.GetDuration("SHUTDOWN_TIMEOUT")

	cfg.RedisConfig.Enabled = v.GetBool("REDIS_ENABLED")
	cfg.RedisConfig.Address = v.GetString("REDIS_ADDR")
	cfg.RedisConfig.Password = v.GetString("REDIS_PASSWORD")
	cfg.RedisConfig.DB = v.GetInt("REDIS_DB")
	cfg.RedisConfig.PoolSize = v.GetInt("REDIS_POOL_SIZE")

	cfg.LoggingConfig.Level = v.GetString("LOG_LEVEL")
	cfg.LoggingConfig.JSONFormat = v.GetBool("LOG_JSON")

	cfg.ProviderConfig.Account = v.GetString("PROVIDER_ACCOUNT")
	cfg.ProviderConfig.Secret = v.GetString("PROVIDER_SECRET")

	return cfg, nil
}

// ValidateSecrets reports the template secrets that are still empty. Called
// after Vault had its chance to supply them.
func (c *Config) ValidateSecrets() error {
	var missing []string
	for i, s := range c.RegistryConfig.Secrets {
		if s == "" {
			missing = append(missing, fmt.Sprintf("SECRET%d", i+1))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing template secrets: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Addr returns the listen address for the HTTP server
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func validateURL(name, raw string, requireHost bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme == "" || (requireHost && u.Host == "") {
		return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
	}
	return nil
}
