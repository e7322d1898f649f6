package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
	Logger    Logger    `mapstructure:"logger"`
	Quotes    Quotes    `mapstructure:"quotes"`
	Refresher Refresher `mapstructure:"refresher"`
	Auth      Auth      `mapstructure:"auth"`
	Mail      Mail      `mapstructure:"mail"`
}

// Server holds the configuration for the HTTP server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Quotes holds the configuration for the market quote providers.
// Providers lists provider names in fallback order; the first entry is
// tried first on every fetch.
type Quotes struct {
	Providers      []string      `mapstructure:"providers"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	HistoryRange   string        `mapstructure:"history_range"`
}

// Refresher holds the configuration for the background price refresher.
// Mode is either "interval" (dedicated ticker loop) or "on-demand"
// (refresh coalesced onto feed requests).
type Refresher struct {
	Mode           string        `mapstructure:"mode"`
	Interval       time.Duration `mapstructure:"interval"`
	ThrottleWindow time.Duration `mapstructure:"throttle_window"`
}

// Auth holds the configuration for token issuance and the seeded admin.
type Auth struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	OTPTTL     time.Duration `mapstructure:"otp_ttl"`
	AdminEmail string        `mapstructure:"admin_email"`
}

// Mail holds the configuration for outbound notification email.
type Mail struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("server.port", 5000)
	viper.SetDefault("quotes.providers", []string{"yahoo", "stooq"})
	viper.SetDefault("quotes.timeout", 5*time.Second)
	viper.SetDefault("quotes.rate_limit", 5) // requests per second
	viper.SetDefault("quotes.rate_limit_burst", 2)
	viper.SetDefault("quotes.history_range", "1y")
	viper.SetDefault("refresher.mode", "interval")
	viper.SetDefault("refresher.interval", time.Second)
	viper.SetDefault("refresher.throttle_window", time.Second)
	viper.SetDefault("auth.token_ttl", 24*time.Hour)
	viper.SetDefault("auth.otp_ttl", time.Hour)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
