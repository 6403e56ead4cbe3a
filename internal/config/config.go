package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "PHRASAL"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabasePath        = "phrasal.db"
	defaultLogLevel            = "info"
	defaultTokenTTLMinutes     = 43200 // 30 days
	defaultContributionBaseURL = "https://play.phrasal.app/contribute"
	defaultContributionTTL     = 48
	defaultContributionUses    = 3
	defaultSweepSchedule       = "*/15 * * * *"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	DatabasePath         string
	LogLevel             string
	SigningSecret        string
	TokenTTL             time.Duration
	RedisAddress         string
	ContributionBaseURL  string
	ContributionTTLHours int
	ContributionMaxUses  int
	SweepSchedule        string
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("contribution.base_url", defaultContributionBaseURL)
	configViper.SetDefault("contribution.ttl_hours", defaultContributionTTL)
	configViper.SetDefault("contribution.max_uses", defaultContributionUses)
	configViper.SetDefault("jobs.sweep_schedule", defaultSweepSchedule)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		SigningSecret:        configViper.GetString("auth.signing_secret"),
		TokenTTL:             time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		RedisAddress:         configViper.GetString("redis.address"),
		ContributionBaseURL:  configViper.GetString("contribution.base_url"),
		ContributionTTLHours: configViper.GetInt("contribution.ttl_hours"),
		ContributionMaxUses:  configViper.GetInt("contribution.max_uses"),
		SweepSchedule:        configViper.GetString("jobs.sweep_schedule"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.ContributionTTLHours <= 0 {
		return fmt.Errorf("contribution.ttl_hours must be positive")
	}
	if c.ContributionMaxUses <= 0 {
		return fmt.Errorf("contribution.max_uses must be positive")
	}
	if strings.TrimSpace(c.ContributionBaseURL) == "" {
		return fmt.Errorf("contribution.base_url is required")
	}
	return nil
}
