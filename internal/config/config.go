package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	RefreshToken string `mapstructure:"refresh_token"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	DeviceID     int64  `mapstructure:"device_id"`
	TokenFile    string `mapstructure:"token_file"`

	OAuthURL   string `mapstructure:"oauth_url"`
	TicketURL  string `mapstructure:"ticket_url"`
	DevicesURL string `mapstructure:"devices_url"`
	SignalURL  string `mapstructure:"signal_url"`

	ICEWait          time.Duration `mapstructure:"ice_wait"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	KeepAliveTimeout time.Duration `mapstructure:"keepalive_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`
}

var keys = []string{
	"refresh_token", "username", "password", "device_id", "token_file",
	"oauth_url", "ticket_url", "devices_url", "signal_url",
	"ice_wait", "ping_interval", "keepalive_timeout", "handshake_timeout",
	"metrics_addr", "log_level",
}

// Load reads configuration from a .env file (if present) and RING_*
// environment variables. Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ring")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	v.SetDefault("token_file", "data/token.json")
	v.SetDefault("ice_wait", "1s")
	v.SetDefault("ping_interval", "5s")
	v.SetDefault("keepalive_timeout", "30s")
	v.SetDefault("handshake_timeout", "10s")
	v.SetDefault("log_level", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields the live stream needs.
func (c *Config) Validate() error {
	if c.RefreshToken == "" && (c.Username == "" || c.Password == "") && !c.hasStoredToken() {
		return fmt.Errorf("RING_REFRESH_TOKEN, RING_USERNAME and RING_PASSWORD, or a token in %q are required", c.TokenFile)
	}
	if c.ICEWait <= 0 {
		return fmt.Errorf("RING_ICE_WAIT must be positive")
	}
	return nil
}

func (c *Config) hasStoredToken() bool {
	if c.TokenFile == "" {
		return false
	}
	info, err := os.Stat(c.TokenFile)
	return err == nil && !info.IsDir() && info.Size() > 0
}
