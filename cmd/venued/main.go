package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"venuecast/internal/adapters/mqtt"
	"venuecast/internal/modules/announcefeed"
	"venuecast/internal/modules/embeddedbroker"
	"venuecast/internal/modules/venueplayer"
	"venuecast/internal/venued"
	"venuecast/pkg/vc"
)

func main() {
	var (
		configPath  string
		broker      string
		topicBase   string
		logLevel    string
		logFormat   string
		moduleOnly  string
		printConfig bool
		dryRun      bool
	)

	defaultConfig, err := venued.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (json|console)")
	flag.StringVar(&moduleOnly, "module", "", "limit to a single module")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	// Secrets live in the environment, optionally loaded from a local .env.
	_ = godotenv.Load()

	cfg, err := venued.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, broker, topicBase, logLevel, logFormat)
	applyEnv(&cfg)

	if printConfig {
		fmt.Fprintf(os.Stdout, "broker=%s topic_base=%s log_level=%s log_format=%s modules=%v\n",
			cfg.Server.Broker, cfg.Server.TopicBase, cfg.Server.LogLevel, cfg.Server.LogFormat, enabledModules(cfg))
		return
	}
	if dryRun {
		return
	}

	logger := venued.NewLogger(venued.LogConfig{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	})
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	skipEmbedded := false
	if moduleOnly != "embedded_broker" && cfg.Modules.EmbeddedBroker.Enabled && cfg.Server.Broker == embeddedURL(cfg) {
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			logger.Error("embedded broker failed", zap.Error(err))
			os.Exit(1)
		}
		skipEmbedded = true
	}

	if cfg.Server.Broker == "" && !(moduleOnly == "embedded_broker" && cfg.Modules.EmbeddedBroker.Enabled) {
		logger.Error("broker is required")
		os.Exit(1)
	}

	logger.Info("venued starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.Strings("modules", enabledModules(cfg)))

	modules, err := buildModules(cfg, logger, moduleOnly, skipEmbedded)
	if err != nil {
		logger.Error("failed to build modules", zap.Error(err))
		os.Exit(1)
	}

	supervisor := venued.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

func applyOverrides(cfg *venued.Config, broker, topicBase, logLevel, logFormat string) {
	if broker != "" {
		cfg.Server.Broker = broker
	}
	if topicBase != "" {
		cfg.Server.TopicBase = topicBase
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = vc.BaseTopic
	}
	if cfg.Server.Broker == "" && cfg.Modules.EmbeddedBroker.Enabled {
		cfg.Server.Broker = embeddedURL(*cfg)
	}
}

func applyEnv(cfg *venued.Config) {
	if v := os.Getenv("VENUECAST_DSN"); v != "" {
		cfg.Platform.DSN = v
	}
	if v := os.Getenv("VENUECAST_TOKEN"); v != "" {
		cfg.Platform.Token = v
	}
	if v := os.Getenv("VENUECAST_TOKEN_SECRET"); v != "" {
		cfg.Platform.TokenSecret = v
	}
	if v := os.Getenv("VENUECAST_SIGNER_TOKEN"); v != "" {
		cfg.Platform.SignerToken = v
	}
	if v := os.Getenv("VENUECAST_BROKER_PASS"); v != "" {
		cfg.Server.Auth.Pass = v
	}
}

func embeddedURL(cfg venued.Config) string {
	listen := cfg.Modules.EmbeddedBroker.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	tlsEnabled := cfg.Modules.EmbeddedBroker.TLSCert != "" ||
		cfg.Modules.EmbeddedBroker.TLSKey != "" ||
		cfg.Modules.EmbeddedBroker.TLSCA != ""
	return embeddedbroker.BrokerURL(listen, tlsEnabled)
}

func buildModules(cfg venued.Config, logger *zap.Logger, moduleOnly string, skipEmbedded bool) ([]venued.ModuleRunner, error) {
	modules := []venued.ModuleRunner{}

	if cfg.Modules.EmbeddedBroker.Enabled && !skipEmbedded {
		if moduleOnly == "" || moduleOnly == "embedded_broker" {
			mod, err := embeddedbroker.NewModule(logger.With(zap.String("module", "embedded_broker")), embeddedbroker.Config{
				Listen:         cfg.Modules.EmbeddedBroker.Listen,
				AllowAnonymous: cfg.Modules.EmbeddedBroker.AllowAnonymous,
				Username:       cfg.Modules.EmbeddedBroker.Username,
				Password:       cfg.Modules.EmbeddedBroker.Password,
				TLSCA:          cfg.Modules.EmbeddedBroker.TLSCA,
				TLSCert:        cfg.Modules.EmbeddedBroker.TLSCert,
				TLSKey:         cfg.Modules.EmbeddedBroker.TLSKey,
			})
			if err != nil {
				return nil, err
			}
			modules = append(modules, venued.ModuleRunner{Name: "embedded_broker", Run: mod.Run})
		}
	}

	if cfg.Modules.VenuePlayer.Enabled {
		if moduleOnly == "" || moduleOnly == "venue_player" {
			crossfade := time.Duration(cfg.Modules.VenuePlayer.CrossfadeMS) * time.Millisecond
			mod, err := venueplayer.NewModule(logger.With(zap.String("module", "venue_player")), venueplayer.Config{
				AccountID:   cfg.Modules.VenuePlayer.AccountID,
				VenueID:     cfg.Modules.VenuePlayer.VenueID,
				VenueName:   cfg.Modules.VenuePlayer.VenueName,
				RegionCode:  cfg.Modules.VenuePlayer.RegionCode,
				PlatformDSN: cfg.Platform.DSN,
				SignerURL:   cfg.Platform.SignerURL,
				SignerToken: cfg.Platform.SignerToken,
				Token:       cfg.Platform.Token,
				TokenSecret: cfg.Platform.TokenSecret,
				BrokerURL:   cfg.Server.Broker,
				Username:    cfg.Server.Auth.User,
				Password:    cfg.Server.Auth.Pass,
				TLSCA:       cfg.Server.TLS.CA,
				TLSCert:     cfg.Server.TLS.Cert,
				TLSKey:      cfg.Server.TLS.Key,
				TopicBase:   cfg.Server.TopicBase,
				Pipeline:    cfg.Modules.VenuePlayer.Pipeline,
				Device:      cfg.Modules.VenuePlayer.Device,
				Crossfade:   crossfade,
				Volume:      cfg.Modules.VenuePlayer.Volume,
			})
			if err != nil {
				return nil, err
			}
			modules = append(modules, venued.ModuleRunner{Name: "venue_player", Run: mod.Run})
		}
	}

	if cfg.Modules.AnnounceFeed.Enabled {
		if moduleOnly == "" || moduleOnly == "announce_feed" {
			mod, err := newAnnounceFeed(cfg, logger)
			if err != nil {
				return nil, err
			}
			modules = append(modules, venued.ModuleRunner{Name: "announce_feed", Run: mod.Run})
		}
	}

	if moduleOnly != "" && len(modules) == 0 {
		return nil, errors.New("no modules enabled")
	}
	return modules, nil
}

func newAnnounceFeed(cfg venued.Config, logger *zap.Logger) (*announcefeed.Module, error) {
	publisher, err := connectBroker(cfg, "announce-feed")
	if err != nil {
		return nil, err
	}
	refresh := time.Duration(cfg.Modules.AnnounceFeed.RefreshMinutes) * time.Minute
	return announcefeed.NewModule(logger.With(zap.String("module", "announce_feed")), publisher, announcefeed.Config{
		AccountID:       cfg.Modules.AnnounceFeed.AccountID,
		FeedURL:         cfg.Modules.AnnounceFeed.FeedURL,
		RefreshInterval: refresh,
		MaxItems:        cfg.Modules.AnnounceFeed.MaxItems,
	})
}

func connectBroker(cfg venued.Config, role string) (*mqtt.Client, error) {
	return mqtt.NewClient(mqtt.Options{
		BrokerURL: cfg.Server.Broker,
		ClientID:  fmt.Sprintf("venued-%s-%d", role, time.Now().UnixNano()),
		Username:  cfg.Server.Auth.User,
		Password:  cfg.Server.Auth.Pass,
		TLSCA:     cfg.Server.TLS.CA,
		TLSCert:   cfg.Server.TLS.Cert,
		TLSKey:    cfg.Server.TLS.Key,
		TopicBase: cfg.Server.TopicBase,
	})
}

func startEmbeddedBroker(ctx context.Context, cfg venued.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	mod, err := embeddedbroker.NewModule(logger.With(zap.String("module", "embedded_broker")), embeddedbroker.Config{
		Listen:         cfg.Modules.EmbeddedBroker.Listen,
		AllowAnonymous: cfg.Modules.EmbeddedBroker.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedBroker.Username,
		Password:       cfg.Modules.EmbeddedBroker.Password,
		TLSCA:          cfg.Modules.EmbeddedBroker.TLSCA,
		TLSCert:        cfg.Modules.EmbeddedBroker.TLSCert,
		TLSKey:         cfg.Modules.EmbeddedBroker.TLSKey,
	})
	if err != nil {
		return err
	}
	go func() {
		if err := mod.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded broker exited", zap.Error(err))
			cancel()
		}
	}()

	listen := cfg.Modules.EmbeddedBroker.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	return waitForListen(listen, 3*time.Second)
}

func waitForListen(listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("embedded broker not ready at %s", addr)
}

func enabledModules(cfg venued.Config) []string {
	out := []string{}
	if cfg.Modules.EmbeddedBroker.Enabled {
		out = append(out, "embedded_broker")
	}
	if cfg.Modules.VenuePlayer.Enabled {
		out = append(out, "venue_player")
	}
	if cfg.Modules.AnnounceFeed.Enabled {
		out = append(out, "announce_feed")
	}
	return out
}
