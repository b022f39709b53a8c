package venued

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for venued.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Platform PlatformConfig `toml:"platform"`
	Modules  ModulesConfig  `toml:"modules"`
}

// ServerConfig defines shared daemon settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for the broadcast channel.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds broadcast channel credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// PlatformConfig holds backend platform access.
type PlatformConfig struct {
	DSN         string `toml:"dsn"`
	SignerURL   string `toml:"signer_url"`
	SignerToken string `toml:"signer_token"`
	Token       string `toml:"token"`
	TokenSecret string `toml:"token_secret"`
}

// ModulesConfig holds module configurations.
type ModulesConfig struct {
	EmbeddedBroker EmbeddedBrokerConfig `toml:"embedded_broker"`
	VenuePlayer    VenuePlayerConfig    `toml:"venue_player"`
	AnnounceFeed   AnnounceFeedConfig   `toml:"announce_feed"`
}

// EmbeddedBrokerConfig configures the in-process MQTT broker.
type EmbeddedBrokerConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// VenuePlayerConfig configures the venue playback module.
type VenuePlayerConfig struct {
	Enabled     bool    `toml:"enabled"`
	AccountID   string  `toml:"account_id"`
	VenueID     string  `toml:"venue_id"`
	VenueName   string  `toml:"venue_name"`
	RegionCode  string  `toml:"region_code"`
	Pipeline    string  `toml:"pipeline"`
	Device      string  `toml:"device"`
	CrossfadeMS int64   `toml:"crossfade_ms"`
	Volume      float64 `toml:"volume"`
}

// AnnounceFeedConfig configures the announcement feed module.
type AnnounceFeedConfig struct {
	Enabled        bool   `toml:"enabled"`
	AccountID      string `toml:"account_id"`
	FeedURL        string `toml:"feed_url"`
	RefreshMinutes int64  `toml:"refresh_minutes"`
	MaxItems       int    `toml:"max_items"`
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "venuecast", "venued.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "venuecast", "venued.toml"), nil
}
