package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds venuectl configuration from config.toml.
type Config struct {
	AccountID   string `toml:"account_id"`
	Broker      string `toml:"broker"`
	TopicBase   string `toml:"topic_base"`
	DSN         string `toml:"dsn"`
	Token       string `toml:"token"`
	TokenSecret string `toml:"token_secret"`
	User        string `toml:"user"`
	Pass        string `toml:"pass"`
	TLSCA       string `toml:"tls_ca"`
	TLSCert     string `toml:"tls_cert"`
	TLSKey      string `toml:"tls_key"`
}

// Load loads config.toml if present. Missing file returns an empty config.
func Load() (Config, error) {
	path, err := configPath()
	if err != nil {
		return Config{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
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

func configPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "venuecast", "config.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "venuecast", "config.toml"), nil
}
