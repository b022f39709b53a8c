package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"venuecast/pkg/vc"
)

// Options configures the MQTT client.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	TopicBase string
	Timeout   time.Duration

	// OnConnect fires on every successful (re)connect, after subscriptions
	// are restored. OnConnectionLost fires when the broker link drops.
	OnConnect        func()
	OnConnectionLost func(err error)
}

// Client is an MQTT adapter implementing the Broker port.
type Client struct {
	client    paho.Client
	topicBase string
	timeout   time.Duration

	mu              sync.Mutex
	sessionHandlers map[string]func(vc.SessionState)
}

// NewClient creates and connects an MQTT client.
func NewClient(opts Options) (*Client, error) {
	if opts.TopicBase == "" {
		opts.TopicBase = vc.BaseTopic
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}

	c := &Client{
		topicBase:       opts.TopicBase,
		timeout:         opts.Timeout,
		sessionHandlers: map[string]func(vc.SessionState){},
	}

	clientOpts := paho.NewClientOptions().AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetOnConnectHandler(func(client paho.Client) {
		c.resubscribe(client)
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
	})
	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		if opts.OnConnectionLost != nil {
			opts.OnConnectionLost(err)
		}
	})

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	tlsConfig, err := buildTLSConfig(opts.TLSCA, opts.TLSCert, opts.TLSKey)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	c.client = paho.NewClient(clientOpts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return c, nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

// PublishSession publishes session state retained so late joiners and
// reconnecting venues receive the latest snapshot immediately.
func (c *Client) PublishSession(ctx context.Context, state vc.SessionState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	topic := vc.TopicSession(c.topicBase, state.AccountID)
	return c.publish(ctx, topic, payload, true)
}

// SubscribeSession subscribes to retained session state for an account. The
// subscription survives reconnects.
func (c *Client) SubscribeSession(accountID string, handler func(vc.SessionState)) error {
	topic := vc.TopicSession(c.topicBase, accountID)

	c.mu.Lock()
	c.sessionHandlers[topic] = handler
	c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		var state vc.SessionState
		if err := json.Unmarshal(msg.Payload(), &state); err != nil {
			return
		}
		handler(state)
	})
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// PublishPresence publishes retained venue presence.
func (c *Client) PublishPresence(ctx context.Context, presence vc.Presence) error {
	payload, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	topic := vc.TopicPresence(c.topicBase, presence.AccountID, presence.VenueID)
	return c.publish(ctx, topic, payload, true)
}

// PublishAnnouncements publishes the retained announcement list for an account.
func (c *Client) PublishAnnouncements(ctx context.Context, list vc.AnnouncementList) error {
	payload, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal announcements: %w", err)
	}
	topic := vc.TopicAnnouncements(c.topicBase, list.AccountID)
	return c.publish(ctx, topic, payload, true)
}

// GetSession returns the retained session state for an account, if any.
func (c *Client) GetSession(ctx context.Context, accountID string) (vc.SessionState, error) {
	stateCh := make(chan vc.SessionState, 1)
	handler := func(_ paho.Client, msg paho.Message) {
		var state vc.SessionState
		if err := json.Unmarshal(msg.Payload(), &state); err != nil {
			return
		}
		select {
		case stateCh <- state:
		default:
		}
	}

	topic := vc.TopicSession(c.topicBase, accountID)
	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		return vc.SessionState{}, token.Error()
	}
	defer func() {
		token := c.client.Unsubscribe(topic)
		token.Wait()
	}()

	select {
	case <-ctx.Done():
		return vc.SessionState{}, ctx.Err()
	case state := <-stateCh:
		return state, nil
	case <-time.After(c.timeout):
		return vc.SessionState{}, errors.New("timeout waiting for session state")
	}
}

// ListPresence collects retained presence messages for an account's venues.
func (c *Client) ListPresence(ctx context.Context, accountID string) ([]vc.Presence, error) {
	collect := make(map[string]vc.Presence)
	muLock := sync.Mutex{}

	handler := func(_ paho.Client, msg paho.Message) {
		var presence vc.Presence
		if err := json.Unmarshal(msg.Payload(), &presence); err != nil {
			return
		}
		muLock.Lock()
		collect[presence.VenueID] = presence
		muLock.Unlock()
	}

	topic := vc.TopicPresenceWildcard(c.topicBase, accountID)
	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	defer func() {
		token := c.client.Unsubscribe(topic)
		token.Wait()
	}()

	wait := time.NewTimer(250 * time.Millisecond)
	select {
	case <-ctx.Done():
		wait.Stop()
	case <-wait.C:
	}

	muLock.Lock()
	defer muLock.Unlock()
	out := make([]vc.Presence, 0, len(collect))
	for _, presence := range collect {
		out = append(out, presence)
	}
	return out, nil
}

// GetAnnouncements returns the retained announcement list for an account.
func (c *Client) GetAnnouncements(ctx context.Context, accountID string) (vc.AnnouncementList, error) {
	listCh := make(chan vc.AnnouncementList, 1)
	handler := func(_ paho.Client, msg paho.Message) {
		var list vc.AnnouncementList
		if err := json.Unmarshal(msg.Payload(), &list); err != nil {
			return
		}
		select {
		case listCh <- list:
		default:
		}
	}

	topic := vc.TopicAnnouncements(c.topicBase, accountID)
	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		return vc.AnnouncementList{}, token.Error()
	}
	defer func() {
		token := c.client.Unsubscribe(topic)
		token.Wait()
	}()

	select {
	case <-ctx.Done():
		return vc.AnnouncementList{}, ctx.Err()
	case list := <-listCh:
		return list, nil
	case <-time.After(c.timeout):
		return vc.AnnouncementList{}, errors.New("timeout waiting for announcements")
	}
}

func (c *Client) publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	token := c.client.Publish(topic, 1, retained, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}

func (c *Client) resubscribe(client paho.Client) {
	c.mu.Lock()
	topics := make(map[string]func(vc.SessionState), len(c.sessionHandlers))
	for topic, handler := range c.sessionHandlers {
		topics[topic] = handler
	}
	c.mu.Unlock()

	for topic, handler := range topics {
		h := handler
		token := client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
			var state vc.SessionState
			if err := json.Unmarshal(msg.Payload(), &state); err != nil {
				return
			}
			h(state)
		})
		token.Wait()
	}
}

func buildTLSConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	if caPath == "" && certPath == "" && keyPath == "" {
		return nil, nil
	}

	config := &tls.Config{}
	if caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse CA bundle")
		}
		config.RootCAs = pool
	}

	if certPath != "" || keyPath != "" {
		if certPath == "" || keyPath == "" {
			return nil, errors.New("both tls cert and key are required")
		}
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, err
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}
