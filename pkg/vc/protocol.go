package vc

import (
	"errors"
	"fmt"
	"strings"
)

// BaseTopic is the default MQTT topic prefix for the protocol.
const BaseTopic = "vc/v1"

// Account playback modes. Mode is account-wide; venues cannot override it.
const (
	ModeIndependent    = "independent"
	ModeSharedPlaylist = "shared_playlist"
	ModeSynchronized   = "synchronized"
)

// SessionState is the broadcast snapshot of an account's playback session.
// It mirrors the persisted session row; Version is bumped by every
// conditional write and is the only ordering key receivers may use.
type SessionState struct {
	AccountID        string            `json:"accountId"`
	ControllerUserID string            `json:"controllerUserId,omitempty"`
	ControllerName   string            `json:"controllerName,omitempty"`
	CurrentTrack     *Track            `json:"currentTrack,omitempty"`
	PositionSeconds  float64           `json:"positionSeconds"`
	IsPlaying        bool              `json:"isPlaying"`
	Playlist         *PlaylistSnapshot `json:"playlist,omitempty"`
	Version          int64             `json:"version"`
	UpdatedAt        int64             `json:"updatedAt"`
	Origin           string            `json:"origin,omitempty"`
}

// Controlled reports whether any client currently holds control.
func (s SessionState) Controlled() bool {
	return s.ControllerUserID != ""
}

// Presence describes a connected venue player.
type Presence struct {
	AccountID string `json:"accountId"`
	VenueID   string `json:"venueId"`
	Name      string `json:"name"`
	ClientID  string `json:"clientId"`
	TS        int64  `json:"ts"`
}

// Announcement is a feed-sourced spoken message playable between tracks.
type Announcement struct {
	Track       Track  `json:"track"`
	PublishedAt int64  `json:"publishedAt,omitempty"`
	Description string `json:"description,omitempty"`
}

// AnnouncementList is the retained payload on the announcements topic.
type AnnouncementList struct {
	AccountID     string         `json:"accountId"`
	Announcements []Announcement `json:"announcements"`
	TS            int64          `json:"ts"`
}

// ValidateSessionState checks required fields before publish.
func ValidateSessionState(s SessionState) error {
	if strings.TrimSpace(s.AccountID) == "" {
		return errors.New("accountId is required")
	}
	if s.Version <= 0 {
		return errors.New("version must be positive")
	}
	if s.UpdatedAt <= 0 {
		return errors.New("updatedAt must be a positive unix timestamp")
	}
	if s.IsPlaying && s.CurrentTrack == nil {
		return errors.New("playing session requires a current track")
	}
	return nil
}

// TopicSession builds the retained session-state topic for an account.
func TopicSession(topicBase, accountID string) string {
	return fmt.Sprintf("%s/account/%s/session", topicBase, accountID)
}

// TopicPresence builds the presence topic for a venue.
func TopicPresence(topicBase, accountID, venueID string) string {
	return fmt.Sprintf("%s/account/%s/presence/%s", topicBase, accountID, venueID)
}

// TopicPresenceWildcard matches presence for all venues of an account.
func TopicPresenceWildcard(topicBase, accountID string) string {
	return fmt.Sprintf("%s/account/%s/presence/+", topicBase, accountID)
}

// TopicAnnouncements builds the retained announcements topic for an account.
func TopicAnnouncements(topicBase, accountID string) string {
	return fmt.Sprintf("%s/account/%s/announcements", topicBase, accountID)
}
