package venueplayer

import (
	"testing"

	"go.uber.org/zap"
)

func validConfig() Config {
	return Config{
		AccountID:   "acct-1",
		VenueID:     "venue-1",
		PlatformDSN: "postgres://vc:vc@localhost/vc?sslmode=disable",
		SignerURL:   "http://localhost:8080",
		BrokerURL:   "mqtt://127.0.0.1:1883",
	}
}

func TestNewModuleDefaults(t *testing.T) {
	module, err := NewModule(zap.NewNop(), validConfig())
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	if module.config.ClientID != "venue-venue-1" {
		t.Fatalf("unexpected client id %q", module.config.ClientID)
	}
	if module.config.VenueName != "venue-1" {
		t.Fatalf("unexpected venue name %q", module.config.VenueName)
	}
	if module.config.TopicBase != "vc/v1" {
		t.Fatalf("unexpected topic base %q", module.config.TopicBase)
	}
}

func TestNewModuleValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing account", func(c *Config) { c.AccountID = "" }},
		{"missing venue", func(c *Config) { c.VenueID = "" }},
		{"missing dsn", func(c *Config) { c.PlatformDSN = "" }},
		{"missing signer", func(c *Config) { c.SignerURL = "" }},
		{"missing broker", func(c *Config) { c.BrokerURL = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			if _, err := NewModule(zap.NewNop(), cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
