// Package core orchestrates venuectl use cases against the platform
// database and the session broadcast channel. Transport mutations go
// through the same conditional-update path the venue daemon uses, so a
// CLI racing another controller loses cleanly instead of clobbering.
package core

import (
	"context"

	"venuecast/internal/adapters/sessiondb"
	"venuecast/internal/state"
	"venuecast/pkg/vc"
)

// SessionStore is the platform database surface used by the CLI.
type SessionStore interface {
	PlaybackMode(ctx context.Context, accountID string) (string, error)
	EnsureSession(ctx context.Context, accountID string) (vc.SessionState, error)
	GetSession(ctx context.Context, accountID string) (vc.SessionState, error)
	TakeControl(ctx context.Context, accountID, userID, userName, prevControllerID string) (vc.SessionState, error)
	ReleaseControl(ctx context.Context, accountID, userID string) (vc.SessionState, error)
	UpdateTransport(ctx context.Context, accountID, userID string, upd vc.TransportUpdate) (vc.SessionState, error)
	ListPlayHistory(ctx context.Context, accountID string, limit int) ([]sessiondb.HistoryEntry, error)
}

// Broker is the broadcast channel surface used by the CLI.
type Broker interface {
	PublishSession(ctx context.Context, state vc.SessionState) error
	ListPresence(ctx context.Context, accountID string) ([]vc.Presence, error)
	GetAnnouncements(ctx context.Context, accountID string) (vc.AnnouncementList, error)
}

// Capability gates control operations.
type Capability interface {
	CanAdminister(accountID string) bool
}

// Service orchestrates venuectl use cases.
type Service struct {
	Store    SessionStore
	Broker   Broker
	Caps     Capability
	UserID   string
	UserName string
	ClientID string
}

// Status returns the session row, playback mode and connected venues.
func (s Service) Status(ctx context.Context, accountID string) (StatusResult, error) {
	mode, err := s.Store.PlaybackMode(ctx, accountID)
	if err != nil {
		return StatusResult{}, ErrorForStore("lookup playback mode", err)
	}
	session, err := s.Store.EnsureSession(ctx, accountID)
	if err != nil {
		return StatusResult{}, ErrorForStore("load session", err)
	}

	var venues []vc.Presence
	if s.Broker != nil {
		if listed, err := s.Broker.ListPresence(ctx, accountID); err == nil {
			venues = listed
		}
	}
	return StatusResult{Mode: mode, Session: session, Venues: venues}, nil
}

// TakeControl claims the controller slot. Synchronized mode only; the
// conditional write loses to any concurrent claimant.
func (s Service) TakeControl(ctx context.Context, accountID string) (ControlResult, error) {
	if s.Caps == nil || !s.Caps.CanAdminister(accountID) {
		return ControlResult{}, &CLIError{Code: ExitControl, Msg: "token does not permit controlling this account"}
	}
	mode, err := s.Store.PlaybackMode(ctx, accountID)
	if err != nil {
		return ControlResult{}, ErrorForStore("lookup playback mode", err)
	}
	if mode != vc.ModeSynchronized {
		return ControlResult{}, &CLIError{Code: ExitUsage, Msg: "account is not in synchronized mode"}
	}

	prev, err := s.Store.EnsureSession(ctx, accountID)
	if err != nil {
		return ControlResult{}, ErrorForStore("load session", err)
	}
	session, err := s.Store.TakeControl(ctx, accountID, s.UserID, s.UserName, prev.ControllerUserID)
	if err != nil {
		return ControlResult{}, ErrorForStore("take control", err)
	}
	s.broadcast(ctx, session)
	return controlResult(session), nil
}

// ReleaseControl gives up the controller slot.
func (s Service) ReleaseControl(ctx context.Context, accountID string) (ControlResult, error) {
	session, err := s.Store.ReleaseControl(ctx, accountID, s.UserID)
	if err != nil {
		return ControlResult{}, ErrorForStore("release control", err)
	}
	s.broadcast(ctx, session)
	return controlResult(session), nil
}

// Play marks the session playing.
func (s Service) Play(ctx context.Context, accountID string) (TransportResult, error) {
	return s.transport(ctx, accountID, func(st state.State) (state.State, error) {
		if st.CurrentTrack == nil {
			return st, &CLIError{Code: ExitUsage, Msg: "no track loaded"}
		}
		if !st.IsPlaying {
			st = state.Reduce(st, state.TogglePlayPause{})
		}
		return st, nil
	})
}

// Pause marks the session paused.
func (s Service) Pause(ctx context.Context, accountID string) (TransportResult, error) {
	return s.transport(ctx, accountID, func(st state.State) (state.State, error) {
		if st.CurrentTrack == nil {
			return st, &CLIError{Code: ExitUsage, Msg: "no track loaded"}
		}
		if st.IsPlaying {
			st = state.Reduce(st, state.TogglePlayPause{})
		}
		return st, nil
	})
}

// Next advances to the next playlist entry.
func (s Service) Next(ctx context.Context, accountID string) (TransportResult, error) {
	return s.transport(ctx, accountID, func(st state.State) (state.State, error) {
		next := state.Reduce(st, state.Next{})
		if next.CurrentTrack == st.CurrentTrack {
			return st, &CLIError{Code: ExitUsage, Msg: "no playlist loaded"}
		}
		return next, nil
	})
}

// Previous steps back one playlist entry.
func (s Service) Previous(ctx context.Context, accountID string) (TransportResult, error) {
	return s.transport(ctx, accountID, func(st state.State) (state.State, error) {
		prev := state.Reduce(st, state.Previous{})
		if prev.CurrentTrack == st.CurrentTrack {
			return st, &CLIError{Code: ExitUsage, Msg: "no playlist loaded"}
		}
		return prev, nil
	})
}

// Seek moves the session position.
func (s Service) Seek(ctx context.Context, accountID string, positionSeconds float64) (TransportResult, error) {
	if positionSeconds < 0 {
		return TransportResult{}, &CLIError{Code: ExitUsage, Msg: "position must be non-negative"}
	}
	return s.transport(ctx, accountID, func(st state.State) (state.State, error) {
		if st.CurrentTrack == nil {
			return st, &CLIError{Code: ExitUsage, Msg: "no track loaded"}
		}
		return state.Reduce(st, state.SetPosition{Seconds: positionSeconds}), nil
	})
}

// Stop clears the session transport.
func (s Service) Stop(ctx context.Context, accountID string) (TransportResult, error) {
	return s.transport(ctx, accountID, func(st state.State) (state.State, error) {
		return state.Reduce(st, state.Stop{}), nil
	})
}

// History lists recent listening-time records.
func (s Service) History(ctx context.Context, accountID string, limit int) (HistoryResult, error) {
	entries, err := s.Store.ListPlayHistory(ctx, accountID, limit)
	if err != nil {
		return HistoryResult{}, ErrorForStore("list play history", err)
	}
	return HistoryResult{AccountID: accountID, Entries: entries}, nil
}

// Announcements returns the retained announcement list.
func (s Service) Announcements(ctx context.Context, accountID string) (AnnouncementsResult, error) {
	if s.Broker == nil {
		return AnnouncementsResult{}, &CLIError{Code: ExitRuntime, Msg: "broker not configured"}
	}
	list, err := s.Broker.GetAnnouncements(ctx, accountID)
	if err != nil {
		return AnnouncementsResult{}, WrapError(ExitRuntime, "get announcements", err)
	}
	return AnnouncementsResult{List: list}, nil
}

// transport applies a reducer step to the stored session and writes the
// result back conditioned on the caller holding control.
func (s Service) transport(ctx context.Context, accountID string, step func(state.State) (state.State, error)) (TransportResult, error) {
	session, err := s.Store.GetSession(ctx, accountID)
	if err != nil {
		return TransportResult{}, ErrorForStore("load session", err)
	}
	if session.ControllerUserID != s.UserID {
		return TransportResult{}, &CLIError{Code: ExitControl, Msg: "not the current controller: run 'venuectl take' first"}
	}

	current := state.State{
		CurrentTrack:    session.CurrentTrack,
		IsPlaying:       session.IsPlaying,
		Playlist:        session.Playlist,
		PositionSeconds: session.PositionSeconds,
	}
	next, err := step(current)
	if err != nil {
		return TransportResult{}, err
	}

	updated, err := s.Store.UpdateTransport(ctx, accountID, s.UserID, vc.TransportUpdate{
		CurrentTrack:    next.CurrentTrack,
		PositionSeconds: next.PositionSeconds,
		IsPlaying:       next.IsPlaying,
		Playlist:        next.Playlist,
	})
	if err != nil {
		return TransportResult{}, ErrorForStore("update transport", err)
	}
	s.broadcast(ctx, updated)
	return TransportResult{Session: updated}, nil
}

func (s Service) broadcast(ctx context.Context, session vc.SessionState) {
	if s.Broker == nil {
		return
	}
	session.Origin = s.ClientID
	if vc.ValidateSessionState(session) != nil {
		return
	}
	// Broadcast is best effort; the row is already written and venues
	// re-sync from it on reconnect.
	_ = s.Broker.PublishSession(ctx, session)
}

func controlResult(session vc.SessionState) ControlResult {
	return ControlResult{
		AccountID:      session.AccountID,
		ControllerName: session.ControllerName,
		Controlled:     session.Controlled(),
		Version:        session.Version,
	}
}
