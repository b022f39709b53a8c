package core

import (
	"venuecast/internal/adapters/sessiondb"
	"venuecast/pkg/vc"
)

// StatusResult is the session view rendered by venuectl status.
type StatusResult struct {
	Mode    string          `json:"mode"`
	Session vc.SessionState `json:"session"`
	Venues  []vc.Presence   `json:"venues"`
}

// ControlResult reports the outcome of a control change.
type ControlResult struct {
	AccountID      string `json:"accountId"`
	ControllerName string `json:"controllerName,omitempty"`
	Controlled     bool   `json:"controlled"`
	Version        int64  `json:"version"`
}

// TransportResult reports the session after a transport command.
type TransportResult struct {
	Session vc.SessionState `json:"session"`
}

// HistoryResult lists recent play-history rows.
type HistoryResult struct {
	AccountID string                   `json:"accountId"`
	Entries   []sessiondb.HistoryEntry `json:"entries"`
}

// AnnouncementsResult carries the retained announcement list.
type AnnouncementsResult struct {
	List vc.AnnouncementList `json:"list"`
}
