package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "COLLABNOTES"
	defaultHTTPAddress       = "0.0.0.0:4000"
	defaultDatabasePath      = "collabnotes.db"
	defaultLogLevel          = "info"
	defaultTokenTTLHours     = 168
	defaultTypingQuietMillis = 2000
	defaultAllowedOrigins    = "http://localhost:3000"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	AuthSigningSecret string
	DatabasePath      string
	LogLevel          string
	TokenTTL          time.Duration
	TypingQuietPeriod time.Duration
	AllowedOrigins    []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_hours", defaultTokenTTLHours)
	configViper.SetDefault("realtime.typing_quiet_ms", defaultTypingQuietMillis)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		AuthSigningSecret: configViper.GetString("auth.signing_secret"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		TokenTTL:          time.Duration(configViper.GetInt("auth.token_ttl_hours")) * time.Hour,
		TypingQuietPeriod: time.Duration(configViper.GetInt("realtime.typing_quiet_ms")) * time.Millisecond,
		AllowedOrigins:    splitOrigins(configViper.GetString("http.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_hours must be positive")
	}
	if c.TypingQuietPeriod <= 0 {
		return fmt.Errorf("realtime.typing_quiet_ms must be positive")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("http.allowed_origins is required")
	}
	return nil
}
