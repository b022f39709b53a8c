// Package state holds the in-process playback state and the reducer that
// mutates it. The reducer is pure: it computes the next snapshot and never
// touches the audio driver. Effects react to transitions elsewhere.
package state

import "venuecast/pkg/vc"

// State is the playback snapshot the rest of the daemon renders from.
type State struct {
	CurrentTrack    *vc.Track
	IsPlaying       bool
	Playlist        *vc.PlaylistSnapshot
	PositionSeconds float64
}

// Action is a state transition request.
type Action interface {
	isAction()
}

// SetCurrentTrack replaces the current track without starting playback.
type SetCurrentTrack struct {
	Track *vc.Track
}

// PlayTrack loads a track with its playlist context and marks it playing.
type PlayTrack struct {
	Track    vc.Track
	Playlist *vc.PlaylistSnapshot
}

// TogglePlayPause flips the playing flag when a track is loaded.
type TogglePlayPause struct{}

// Next advances to the next playlist entry, wrapping at the end.
type Next struct{}

// Previous steps back one playlist entry, wrapping at the start.
type Previous struct{}

// Stop clears playback entirely.
type Stop struct{}

// SetPosition records the current playback position.
type SetPosition struct {
	Seconds float64
}

func (SetCurrentTrack) isAction() {}
func (PlayTrack) isAction()       {}
func (TogglePlayPause) isAction() {}
func (Next) isAction()            {}
func (Previous) isAction()        {}
func (Stop) isAction()            {}
func (SetPosition) isAction()     {}

// Reduce computes the next state for an action. Unknown or inapplicable
// actions return the state unchanged.
func Reduce(s State, action Action) State {
	switch a := action.(type) {
	case SetCurrentTrack:
		s.CurrentTrack = a.Track
		s.PositionSeconds = 0
		return s

	case PlayTrack:
		track := a.Track
		s.CurrentTrack = &track
		s.IsPlaying = true
		s.PositionSeconds = 0
		if a.Playlist != nil {
			snapshot := *a.Playlist
			s.Playlist = &snapshot
		}
		return s

	case TogglePlayPause:
		if s.CurrentTrack == nil {
			return s
		}
		s.IsPlaying = !s.IsPlaying
		return s

	case Next:
		return advance(s, func(p *vc.PlaylistSnapshot) int {
			idx, _ := p.NextIndex()
			return idx
		})

	case Previous:
		return advance(s, func(p *vc.PlaylistSnapshot) int {
			idx, _ := p.PrevIndex()
			return idx
		})

	case Stop:
		s.CurrentTrack = nil
		s.IsPlaying = false
		s.PositionSeconds = 0
		return s

	case SetPosition:
		s.PositionSeconds = a.Seconds
		return s
	}
	return s
}

func advance(s State, step func(*vc.PlaylistSnapshot) int) State {
	if s.Playlist == nil || len(s.Playlist.Tracks) == 0 {
		return s
	}
	snapshot := *s.Playlist
	snapshot.Index = step(&snapshot)
	track := snapshot.Tracks[snapshot.Index]

	s.Playlist = &snapshot
	s.CurrentTrack = &track
	s.IsPlaying = true
	s.PositionSeconds = 0
	return s
}
