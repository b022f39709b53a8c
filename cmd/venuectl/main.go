package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"venuecast/internal/adapters/config"
	"venuecast/internal/adapters/identity"
	"venuecast/internal/adapters/idgen"
	"venuecast/internal/adapters/mqtt"
	"venuecast/internal/adapters/output"
	"venuecast/internal/adapters/sessiondb"
	"venuecast/internal/core"
	"venuecast/pkg/vc"
)

type app struct {
	service   core.Service
	printer   output.Printer
	accountID string
	timeout   time.Duration

	store  *sessiondb.Store
	broker *mqtt.Client
}

func main() {
	root := &cobra.Command{
		Use:          "venuectl",
		Short:        "Venuecast control CLI",
		SilenceUsage: true,
	}

	var (
		accountID   string
		broker      string
		topicBase   string
		dsn         string
		token       string
		tokenSecret string
		timeout     time.Duration
		jsonOut     bool
		userOpt     string
		passOpt     string
		tlsCA       string
		tlsCert     string
		tlsKey      string
	)

	root.PersistentFlags().StringVarP(&accountID, "account", "a", "", "account id")
	root.PersistentFlags().StringVarP(&broker, "broker", "b", "", "MQTT broker URL")
	root.PersistentFlags().StringVar(&topicBase, "topic-base", vc.BaseTopic, "MQTT topic base")
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "platform database DSN")
	root.PersistentFlags().StringVar(&token, "token", "", "capability token")
	root.PersistentFlags().StringVar(&tokenSecret, "token-secret", "", "capability token secret")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "command timeout")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().StringVar(&userOpt, "user", "", "MQTT username")
	root.PersistentFlags().StringVar(&passOpt, "pass", "", "MQTT password")
	root.PersistentFlags().StringVar(&tlsCA, "tls-ca", "", "TLS CA path")
	root.PersistentFlags().StringVar(&tlsCert, "tls-cert", "", "TLS cert path")
	root.PersistentFlags().StringVar(&tlsKey, "tls-key", "", "TLS key path")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if accountID == "" {
			accountID = cfg.AccountID
		}
		if broker == "" {
			broker = cfg.Broker
		}
		if topicBase == vc.BaseTopic && cfg.TopicBase != "" {
			topicBase = cfg.TopicBase
		}
		if dsn == "" {
			dsn = cfg.DSN
		}
		if dsn == "" {
			dsn = os.Getenv("VENUECAST_DSN")
		}
		if token == "" {
			token = cfg.Token
		}
		if tokenSecret == "" {
			tokenSecret = cfg.TokenSecret
		}
		if tokenSecret == "" {
			tokenSecret = os.Getenv("VENUECAST_TOKEN_SECRET")
		}
		if userOpt == "" {
			userOpt = cfg.User
		}
		if passOpt == "" {
			passOpt = cfg.Pass
		}
		if tlsCA == "" {
			tlsCA = cfg.TLSCA
		}
		if tlsCert == "" {
			tlsCert = cfg.TLSCert
		}
		if tlsKey == "" {
			tlsKey = cfg.TLSKey
		}

		if accountID == "" {
			return errors.New("account is required (set --account or config)")
		}
		if dsn == "" {
			return errors.New("dsn is required (set --dsn, config, or VENUECAST_DSN)")
		}

		var caps identity.Capabilities
		userID := ""
		userName := ""
		if token != "" {
			caps, err = identity.ParseToken(token, []byte(tokenSecret))
			if err != nil {
				return err
			}
			userID = caps.UserID
			userName = caps.Name
			if userName == "" {
				userName = userID
			}
		}

		store, err := sessiondb.Open(dsn)
		if err != nil {
			return err
		}

		clientID := "venuectl-" + idgen.Generator{}.NewID()
		var brokerClient *mqtt.Client
		if broker != "" {
			brokerClient, err = mqtt.NewClient(mqtt.Options{
				BrokerURL: broker,
				ClientID:  clientID,
				Username:  userOpt,
				Password:  passOpt,
				TLSCA:     tlsCA,
				TLSCert:   tlsCert,
				TLSKey:    tlsKey,
				TopicBase: topicBase,
				Timeout:   timeout,
			})
			if err != nil {
				store.Close()
				return err
			}
		}

		service := core.Service{
			Store:    store,
			Caps:     caps,
			UserID:   userID,
			UserName: userName,
			ClientID: clientID,
		}
		if brokerClient != nil {
			service.Broker = brokerClient
		}

		var printer output.Printer
		if jsonOut {
			printer = output.JSONPrinter{}
		} else {
			printer = output.HumanPrinter{}
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			service:   service,
			printer:   printer,
			accountID: accountID,
			timeout:   timeout,
			store:     store,
			broker:    brokerClient,
		}))
		return nil
	}

	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if a := fromContext(cmd); a != nil {
			if a.broker != nil {
				a.broker.Close()
			}
			if a.store != nil {
				a.store.Close()
			}
		}
	}

	root.AddCommand(statusCommand())
	root.AddCommand(takeCommand())
	root.AddCommand(releaseCommand())
	root.AddCommand(playCommand())
	root.AddCommand(pauseCommand())
	root.AddCommand(nextCommand())
	root.AddCommand(prevCommand())
	root.AddCommand(seekCommand())
	root.AddCommand(stopCommand())
	root.AddCommand(historyCommand())
	root.AddCommand(announceCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(core.ExitCode(err))
	}
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}
