package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultLifetime is the signed-URL lifetime requested from the platform.
	DefaultLifetime = 3600 * time.Second
	// renewAfter is the cache age past which an entry must be renewed before
	// being served again. 50 of 60 minutes leaves headroom for long tracks.
	renewAfter = 50 * time.Minute
)

// ErrEmptyRef indicates a missing storage reference.
var ErrEmptyRef = errors.New("storage reference is empty")

// Options configures the signer client.
type Options struct {
	BaseURL  string
	Token    string
	Lifetime time.Duration
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Client exchanges opaque storage references for time-limited URLs and
// caches them per reference.
type Client struct {
	baseURL  string
	token    string
	lifetime time.Duration
	http     *http.Client
	log      *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]entry
}

type entry struct {
	url      string
	issuedAt time.Time
}

// New creates a signer client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("signer base url required")
	}
	if opts.Lifetime == 0 {
		opts.Lifetime = DefaultLifetime
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		lifetime: opts.Lifetime,
		http:     &http.Client{Timeout: opts.Timeout},
		log:      opts.Logger,
		now:      time.Now,
		cache:    map[string]entry{},
	}, nil
}

// ResolveURL returns a playable URL for a storage reference, from cache when
// fresh enough, otherwise from the platform. References that are already
// http(s) URLs (announcement feeds) pass through untouched.
func (c *Client) ResolveURL(ctx context.Context, storageRef string) (string, error) {
	if strings.TrimSpace(storageRef) == "" {
		return "", ErrEmptyRef
	}
	if strings.HasPrefix(storageRef, "http://") || strings.HasPrefix(storageRef, "https://") {
		return storageRef, nil
	}

	c.mu.Lock()
	cached, ok := c.cache[storageRef]
	c.mu.Unlock()
	if ok && c.now().Sub(cached.issuedAt) < renewAfter {
		return cached.url, nil
	}

	url, err := c.fetch(ctx, storageRef)
	if err != nil {
		// A stale-but-unexpired entry is still better than a hard failure.
		if ok && c.now().Sub(cached.issuedAt) < c.lifetime {
			c.log.Warn("signed url renewal failed, serving cached entry",
				zap.String("ref", storageRef), zap.Error(err))
			return cached.url, nil
		}
		return "", err
	}
	return url, nil
}

// Refresh forces a renewal for a storage reference.
func (c *Client) Refresh(ctx context.Context, storageRef string) (string, error) {
	if strings.TrimSpace(storageRef) == "" {
		return "", ErrEmptyRef
	}
	if strings.HasPrefix(storageRef, "http://") || strings.HasPrefix(storageRef, "https://") {
		return storageRef, nil
	}
	return c.fetch(ctx, storageRef)
}

// Prefetch warms the cache for a storage reference. Failures are logged and
// dropped; the next ResolveURL will retry.
func (c *Client) Prefetch(ctx context.Context, storageRef string) {
	if strings.TrimSpace(storageRef) == "" {
		return
	}
	if strings.HasPrefix(storageRef, "http://") || strings.HasPrefix(storageRef, "https://") {
		return
	}

	c.mu.Lock()
	cached, ok := c.cache[storageRef]
	c.mu.Unlock()
	if ok && c.now().Sub(cached.issuedAt) < renewAfter {
		return
	}
	if _, err := c.fetch(ctx, storageRef); err != nil {
		c.log.Debug("prefetch failed", zap.String("ref", storageRef), zap.Error(err))
	}
}

// NeedsRenewal reports whether the cached entry for a reference has crossed
// the renewal threshold.
func (c *Client) NeedsRenewal(storageRef string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.cache[storageRef]
	if !ok {
		return false
	}
	return c.now().Sub(cached.issuedAt) >= renewAfter
}

type signRequest struct {
	Path            string `json:"path"`
	LifetimeSeconds int64  `json:"lifetimeSeconds"`
}

type signResponse struct {
	URL string `json:"url"`
}

func (c *Client) fetch(ctx context.Context, storageRef string) (string, error) {
	payload, err := json.Marshal(signRequest{
		Path:            storageRef,
		LifetimeSeconds: int64(c.lifetime / time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("marshal sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sign", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sign request: unexpected status %d", resp.StatusCode)
	}

	var body signResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode sign response: %w", err)
	}
	if body.URL == "" {
		return "", errors.New("sign response missing url")
	}

	c.mu.Lock()
	c.cache[storageRef] = entry{url: body.URL, issuedAt: c.now()}
	c.mu.Unlock()
	return body.URL, nil
}
