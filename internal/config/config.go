package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. TASKHUB_SERVER_ADDR.
const EnvPrefix = "TASKHUB"

// DevJWTSecret is the placeholder secret of the default config.
const DevJWTSecret = "dev-secret-change-me"

// Config is the full taskhub configuration.
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Search SearchConfig `yaml:"search" mapstructure:"search"`
	Auth   AuthConfig   `yaml:"auth" mapstructure:"auth"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr        string   `yaml:"addr" mapstructure:"addr"`
	StaticDir   string   `yaml:"static_dir" mapstructure:"static_dir"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// StoreConfig selects and configures the task store.
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	SQLitePath    string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
}

// CacheConfig configures the read cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// SearchConfig configures free-text search.
type SearchConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

// Durations are written as "30s" rather than nanosecond integers.

func (c CacheConfig) MarshalYAML() (any, error) {
	return map[string]string{"ttl": c.TTL.String()}, nil
}

func (c SearchConfig) MarshalYAML() (any, error) {
	return map[string]string{"debounce": c.Debounce.String()}, nil
}

func (c AuthConfig) MarshalYAML() (any, error) {
	return struct {
		JWTSecret string `yaml:"jwt_secret"`
		TokenTTL  string `yaml:"token_ttl"`
	}{c.JWTSecret, c.TokenTTL.String()}, nil
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			StaticDir:   "web/dist",
			CORSOrigins: []string{"*"},
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "data/taskhub.db",
			RedisAddr:  "localhost:6379",
		},
		Cache:  CacheConfig{TTL: 30 * time.Second},
		Search: SearchConfig{Debounce: 300 * time.Millisecond},
		Auth: AuthConfig{
			JWTSecret: DevJWTSecret,
			TokenTTL:  24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"addr":      "server.addr",
	"static":    "server.static_dir",
	"store":     "store.driver",
	"db":        "store.sqlite_path",
	"redis":     "store.redis_addr",
	"log-level": "log.level",
}

// Load merges defaults, the YAML file at path (optional; a missing file is
// ignored), TASKHUB_* environment variables and any changed flags, in
// increasing precedence.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment variables can override
// keys that appear in no file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.static_dir", d.Server.StaticDir)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	v.SetDefault("store.redis_addr", d.Store.RedisAddr)
	v.SetDefault("store.redis_password", d.Store.RedisPassword)
	v.SetDefault("store.redis_db", d.Store.RedisDB)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("search.debounce", d.Search.Debounce)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (want sqlite or redis)", c.Store.Driver)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Search.Debounce < 0 {
		return fmt.Errorf("search.debounce must not be negative")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteDefault writes the default configuration to path. An existing file is
// left alone unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	data, err := DefaultConfig().Marshal()
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
