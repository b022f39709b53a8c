// Package venueplayer is the per-venue playback module. It wires the local
// engine, the session coordinator, the play-history recorder, and the
// broadcast channel into one long-running unit.
package venueplayer

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"venuecast/internal/adapters/identity"
	"venuecast/internal/adapters/mqtt"
	"venuecast/internal/adapters/sessiondb"
	"venuecast/internal/adapters/signer"
	"venuecast/internal/history"
	"venuecast/internal/player"
	"venuecast/internal/state"
	vsync "venuecast/internal/sync"
	"venuecast/pkg/vc"
)

// Config configures the venue player module.
type Config struct {
	AccountID  string
	VenueID    string
	VenueName  string
	RegionCode string

	// Platform access.
	PlatformDSN string
	SignerURL   string
	SignerToken string

	// Venue service identity; the token carries admin capabilities when
	// the venue is allowed to take control itself.
	Token       string
	TokenSecret string

	// Broadcast channel.
	BrokerURL  string
	ClientID   string
	Username   string
	Password   string
	TLSCA      string
	TLSCert    string
	TLSKey     string
	TopicBase  string

	// Audio output.
	Pipeline  string
	Device    string
	Crossfade time.Duration
	Volume    float64
}

// Module runs one venue's synchronized player.
type Module struct {
	log    *zap.Logger
	config Config

	// Set by tests to avoid the real audio stack.
	driver player.Driver
}

// NewModule creates a venue player module.
func NewModule(log *zap.Logger, cfg Config) (*Module, error) {
	if strings.TrimSpace(cfg.AccountID) == "" {
		return nil, errors.New("account_id required")
	}
	if strings.TrimSpace(cfg.VenueID) == "" {
		return nil, errors.New("venue_id required")
	}
	if strings.TrimSpace(cfg.PlatformDSN) == "" {
		return nil, errors.New("platform_dsn required")
	}
	if strings.TrimSpace(cfg.SignerURL) == "" {
		return nil, errors.New("signer_url required")
	}
	if strings.TrimSpace(cfg.BrokerURL) == "" {
		return nil, errors.New("broker_url required")
	}
	if strings.TrimSpace(cfg.VenueName) == "" {
		cfg.VenueName = cfg.VenueID
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		cfg.ClientID = "venue-" + cfg.VenueID
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = vc.BaseTopic
	}
	return &Module{log: log, config: cfg}, nil
}

// Run connects the venue and plays until the context is cancelled.
func (m *Module) Run(ctx context.Context) error {
	cfg := m.config

	store, err := sessiondb.Open(cfg.PlatformDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	mode, err := store.PlaybackMode(ctx, cfg.AccountID)
	if err != nil {
		return err
	}

	var caps identity.Capabilities
	userID := cfg.ClientID
	userName := cfg.VenueName
	if cfg.Token != "" {
		caps, err = identity.ParseToken(cfg.Token, []byte(cfg.TokenSecret))
		if err != nil {
			return err
		}
		userID = caps.UserID
		if caps.Name != "" {
			userName = caps.Name
		}
	}

	resolver, err := signer.New(signer.Options{
		BaseURL: cfg.SignerURL,
		Token:   cfg.SignerToken,
		Logger:  m.log,
	})
	if err != nil {
		return err
	}

	resume, err := player.OpenResumeStore()
	if err != nil {
		return err
	}

	recorder := history.NewRecorder(history.Options{
		Appender:   store,
		AccountID:  cfg.AccountID,
		UserID:     userID,
		RegionCode: cfg.RegionCode,
		Logger:     m.log,
	})

	driver := m.driver
	if driver == nil {
		driver, err = player.NewGstDriver(cfg.Pipeline, cfg.Device, cfg.Crossfade)
		if err != nil {
			resume.Close()
			return err
		}
	}

	engine := player.NewEngine(player.Options{
		Driver:    driver,
		Resolver:  resolver,
		Resume:    resume,
		Logger:    m.log,
		Listeners: []player.Listener{recorder},
	})
	if cfg.Volume > 0 {
		if err := engine.SetVolume(cfg.Volume); err != nil {
			m.log.Warn("initial volume rejected", zap.Error(err))
		}
	}

	var (
		coord  *vsync.Coordinator
		client *mqtt.Client
	)
	client, err = mqtt.NewClient(mqtt.Options{
		BrokerURL: cfg.BrokerURL,
		ClientID:  cfg.ClientID,
		Username:  cfg.Username,
		Password:  cfg.Password,
		TLSCA:     cfg.TLSCA,
		TLSCert:   cfg.TLSCert,
		TLSKey:    cfg.TLSKey,
		TopicBase: cfg.TopicBase,
		OnConnect: func() {
			if coord != nil {
				coord.HandleConnected(context.Background())
				status := coord.Status()
				m.log.Info("session channel connected",
					zap.String("role", string(status.Role)),
					zap.Int64("session_version", status.SessionVersion))
			}
			m.publishPresence(context.Background(), client)
		},
		OnConnectionLost: func(err error) {
			if coord != nil {
				coord.HandleConnectionLost(err)
			}
			m.log.Warn("session channel lost", zap.Error(err))
		},
	})
	if err != nil {
		engine.Close()
		recorder.Close()
		return err
	}
	defer client.Close()

	coord = vsync.NewCoordinator(vsync.Options{
		Store:      store,
		Broker:     client,
		Engine:     engine,
		Capability: caps,
		AccountID:  cfg.AccountID,
		UserID:     userID,
		UserName:   userName,
		ClientID:   cfg.ClientID,
		Mode:       mode,
		Logger:     m.log,
	})
	engine.SetOnChange(func(st state.State) {
		coord.HandleLocalChange(context.Background(), st)
	})

	if err := coord.Start(ctx); err != nil {
		m.log.Warn("session coordination unavailable", zap.Error(err))
	}
	m.publishPresence(ctx, client)

	m.log.Info("venue player running",
		zap.String("account", cfg.AccountID),
		zap.String("venue", cfg.VenueID),
		zap.String("mode", mode))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			recorder.Close()
			if err := engine.Close(); err != nil {
				m.log.Warn("engine shutdown", zap.Error(err))
			}
			return nil
		case <-ticker.C:
			engine.Tick(ctx)
			coord.TickPosition(ctx)
		}
	}
}

func (m *Module) publishPresence(ctx context.Context, client *mqtt.Client) {
	if client == nil {
		return
	}
	presence := vc.Presence{
		AccountID: m.config.AccountID,
		VenueID:   m.config.VenueID,
		Name:      m.config.VenueName,
		ClientID:  m.config.ClientID,
		TS:        time.Now().Unix(),
	}
	if err := client.PublishPresence(ctx, presence); err != nil {
		m.log.Warn("presence publish failed", zap.Error(err))
	}
}
