// Package config loads settings for the sync client and the chat server from
// defaults, an optional config file, a .env file and NEXTCHAT_* variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "NEXTCHAT"

type RemoteConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type SyncConfig struct {
	GuardIntervalMS int  `mapstructure:"guard_interval_ms"`
	SettleDelayMS   int  `mapstructure:"settle_delay_ms"`
	MirrorStat      bool `mapstructure:"mirror_stat"`
}

type PathConfig struct {
	Path string `mapstructure:"path"`
}

// Client configures the chatsync process.
type Client struct {
	Remote      RemoteConfig `mapstructure:"remote"`
	Sync        SyncConfig   `mapstructure:"sync"`
	State       PathConfig   `mapstructure:"state"`
	Credentials PathConfig   `mapstructure:"credentials"`
	Listen      string       `mapstructure:"listen"`
	LogLevel    string       `mapstructure:"log_level"`
	LogFormat   string       `mapstructure:"log_format"`
}

func (c Client) RequestTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

func (c Client) GuardInterval() time.Duration {
	return time.Duration(c.Sync.GuardIntervalMS) * time.Millisecond
}

func (c Client) SettleDelay() time.Duration {
	return time.Duration(c.Sync.SettleDelayMS) * time.Millisecond
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	TokenTTLHours int    `mapstructure:"token_ttl_hours"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// AdminConfig is the account created by the seed command.
type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Server configures the chatserver process.
type Server struct {
	Port          string         `mapstructure:"port"`
	LogLevel      string         `mapstructure:"log_level"`
	LogFormat     string         `mapstructure:"log_format"`
	Database      DatabaseConfig `mapstructure:"database"`
	Auth          AuthConfig     `mapstructure:"auth"`
	EncryptionKey string         `mapstructure:"encryption_key"`
	AllowRegister bool           `mapstructure:"allow_register"`
	CORS          CORSConfig     `mapstructure:"cors"`
	Admin         AdminConfig    `mapstructure:"admin"`
}

func (s Server) TokenTTL() time.Duration {
	return time.Duration(s.Auth.TokenTTLHours) * time.Hour
}

// Validate reports settings the server cannot start without.
func (s Server) Validate() error {
	if strings.TrimSpace(s.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if strings.TrimSpace(s.EncryptionKey) == "" {
		return errors.New("encryption_key is required")
	}
	switch s.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("database.driver %q is not supported", s.Database.Driver)
	}
	if strings.TrimSpace(s.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	return nil
}

func clientDefaults(v *viper.Viper) {
	v.SetDefault("remote.base_url", "http://localhost:5001")
	v.SetDefault("remote.timeout_seconds", 30)
	v.SetDefault("sync.guard_interval_ms", 2000)
	v.SetDefault("sync.settle_delay_ms", 1000)
	v.SetDefault("sync.mirror_stat", false)
	v.SetDefault("state.path", ".nextchat/state.json")
	v.SetDefault("credentials.path", ".nextchat/credentials.json")
	v.SetDefault("listen", "127.0.0.1:5002")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

func serverDefaults(v *viper.Viper) {
	v.SetDefault("port", "5001")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "nextchat.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_hours", 168)
	v.SetDefault("encryption_key", "")
	v.SetDefault("allow_register", true)
	v.SetDefault("cors.allow_origins", []string{"*"})
	v.SetDefault("admin.email", "")
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "")
}

// LoadClient reads client settings. file may be empty.
func LoadClient(file string) (Client, error) {
	var cfg Client
	v, err := newViper(file, clientDefaults)
	if err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Remote.BaseURL), "/")
	if cfg.Remote.TimeoutSeconds <= 0 {
		cfg.Remote.TimeoutSeconds = 30
	}
	if cfg.Sync.GuardIntervalMS <= 0 {
		cfg.Sync.GuardIntervalMS = 2000
	}
	if cfg.Sync.SettleDelayMS <= 0 {
		cfg.Sync.SettleDelayMS = 1000
	}
	cfg.LogLevel = fallback(cfg.LogLevel, "info")
	return cfg, nil
}

// LoadServer reads server settings. file may be empty.
func LoadServer(file string) (Server, error) {
	var cfg Server
	v, err := newViper(file, serverDefaults)
	if err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.Port = fallback(cfg.Port, "5001")
	cfg.LogLevel = fallback(cfg.LogLevel, "info")
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Auth.TokenTTLHours <= 0 {
		cfg.Auth.TokenTTLHours = 168
	}
	origins := cfg.CORS.AllowOrigins[:0]
	for _, o := range cfg.CORS.AllowOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cfg.CORS.AllowOrigins = origins
	return cfg, nil
}

func newViper(file string, defaults func(*viper.Viper)) (*viper.Viper, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		return v, nil
	}
	v.SetConfigName("nextchat")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func fallback(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
