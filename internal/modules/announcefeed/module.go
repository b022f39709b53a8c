// Package announcefeed pulls an account's announcement RSS feed and keeps
// the retained announcements topic current, so venues can slot spoken
// messages between tracks without touching the platform database.
package announcefeed

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"venuecast/pkg/vc"
)

// Publisher posts the retained announcement list.
type Publisher interface {
	PublishAnnouncements(ctx context.Context, list vc.AnnouncementList) error
}

// Config configures the announcement feed module.
type Config struct {
	AccountID       string
	FeedURL         string
	RefreshInterval time.Duration
	Timeout         time.Duration
	MaxItems        int
}

// Module periodically refreshes one account's announcement feed.
type Module struct {
	log       *zap.Logger
	publisher Publisher
	http      *http.Client
	config    Config
}

// NewModule creates an announcement feed module.
func NewModule(log *zap.Logger, publisher Publisher, cfg Config) (*Module, error) {
	if strings.TrimSpace(cfg.AccountID) == "" {
		return nil, errors.New("account_id required")
	}
	if strings.TrimSpace(cfg.FeedURL) == "" {
		return nil, errors.New("feed_url required")
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Hour
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 20
	}
	return &Module{
		log:       log,
		publisher: publisher,
		http:      &http.Client{Timeout: cfg.Timeout},
		config:    cfg,
	}, nil
}

// Run refreshes the feed until the context is cancelled.
func (m *Module) Run(ctx context.Context) error {
	m.refresh(ctx)

	ticker := time.NewTicker(m.config.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

func (m *Module) refresh(ctx context.Context) {
	list, err := m.fetch(ctx)
	if err != nil {
		m.log.Warn("announcement feed refresh failed",
			zap.String("feed", m.config.FeedURL), zap.Error(err))
		return
	}
	if err := m.publisher.PublishAnnouncements(ctx, list); err != nil {
		m.log.Warn("announcement publish failed", zap.Error(err))
		return
	}
	m.log.Debug("announcements refreshed",
		zap.Int("count", len(list.Announcements)))
}

func (m *Module) fetch(ctx context.Context) (vc.AnnouncementList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.config.FeedURL, nil)
	if err != nil {
		return vc.AnnouncementList{}, err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return vc.AnnouncementList{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return vc.AnnouncementList{}, errors.New("feed fetch: unexpected status " + resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return vc.AnnouncementList{}, err
	}
	return parseFeed(m.config.AccountID, string(body), m.config.MaxItems)
}

func parseFeed(accountID, raw string, maxItems int) (vc.AnnouncementList, error) {
	feed, err := gofeed.NewParser().ParseString(raw)
	if err != nil {
		return vc.AnnouncementList{}, err
	}

	announcements := make([]vc.Announcement, 0, len(feed.Items))
	for _, item := range feed.Items {
		announcement, ok := buildAnnouncement(feed, item)
		if !ok {
			continue
		}
		announcements = append(announcements, announcement)
		if len(announcements) >= maxItems {
			break
		}
	}

	return vc.AnnouncementList{
		AccountID:     accountID,
		Announcements: announcements,
		TS:            time.Now().Unix(),
	}, nil
}

func buildAnnouncement(feed *gofeed.Feed, item *gofeed.Item) (vc.Announcement, bool) {
	if item == nil {
		return vc.Announcement{}, false
	}
	audioURL := pickEnclosure(item)
	if audioURL == "" {
		return vc.Announcement{}, false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = audioURL
	}

	track := vc.Track{
		ID:              hashID(item.GUID, audioURL),
		Title:           title,
		Performer:       itemAuthor(feed, item),
		DurationSeconds: itunesDurationSeconds(item),
		// Feed enclosures are already public URLs; the resolver passes
		// them through without signing.
		StorageRef: audioURL,
	}
	return vc.Announcement{
		Track:       track,
		PublishedAt: toUnix(item.PublishedParsed),
		Description: strings.TrimSpace(item.Description),
	}, true
}

func pickEnclosure(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if enc.Type == "" || strings.HasPrefix(enc.Type, "audio/") {
			return enc.URL
		}
	}
	return ""
}

func itemAuthor(feed *gofeed.Feed, item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return strings.TrimSpace(item.Author.Name)
	}
	if feed != nil && feed.Author != nil && feed.Author.Name != "" {
		return strings.TrimSpace(feed.Author.Name)
	}
	return ""
}

// itunesDurationSeconds parses either plain seconds or HH:MM:SS notation.
func itunesDurationSeconds(item *gofeed.Item) int64 {
	if item.ITunesExt == nil {
		return 0
	}
	raw := strings.TrimSpace(item.ITunesExt.Duration)
	if raw == "" {
		return 0
	}
	if !strings.Contains(raw, ":") {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0
		}
		return seconds
	}

	var total int64
	for _, part := range strings.Split(raw, ":") {
		value, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0
		}
		total = total*60 + value
	}
	return total
}

func hashID(guid, audioURL string) string {
	key := strings.TrimSpace(guid)
	if key == "" {
		key = audioURL
	}
	sum := sha1.Sum([]byte(key))
	return "ann-" + hex.EncodeToString(sum[:8])
}

func toUnix(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}
