package player

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"venuecast/internal/state"
	"venuecast/pkg/vc"
)

// Resolver exchanges storage references for playable URLs.
type Resolver interface {
	ResolveURL(ctx context.Context, storageRef string) (string, error)
	Refresh(ctx context.Context, storageRef string) (string, error)
	Prefetch(ctx context.Context, storageRef string)
	NeedsRenewal(storageRef string) bool
}

// Listener observes playback transitions. Listening-time accounting hangs
// off these events rather than polling the engine.
type Listener interface {
	TrackStarted(track vc.Track, playlistID string)
	PlaybackPaused()
	PlaybackResumed()
	TrackEnded()
}

// Options configures the playback engine.
type Options struct {
	Driver    Driver
	Resolver  Resolver
	Resume    *ResumeStore
	Logger    *zap.Logger
	Listeners []Listener
}

// Engine drives local playback. It owns the playback state snapshot and
// applies transitions through the reducer; the driver and listeners are the
// effect layer reacting to those transitions.
type Engine struct {
	driver    Driver
	resolver  Resolver
	resume    *ResumeStore
	log       *zap.Logger
	listeners []Listener

	mu       sync.Mutex
	st       state.State
	onChange func(state.State)

	// Tracks already played this process lifetime. A persisted position
	// only auto-resumes a track the first time it is opened after start;
	// switching away and back starts from zero.
	playedThisSession map[string]bool
}

// NewEngine creates a playback engine.
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		driver:            opts.Driver,
		resolver:          opts.Resolver,
		resume:            opts.Resume,
		log:               opts.Logger,
		listeners:         opts.Listeners,
		playedThisSession: map[string]bool{},
	}
}

// SetOnChange registers a callback invoked after every state transition.
func (e *Engine) SetOnChange(fn func(state.State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = fn
}

// Snapshot returns the current playback state.
func (e *Engine) Snapshot() state.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st
}

// PlayTrack loads and plays a track, restoring a persisted position the
// first time the track is opened this session.
func (e *Engine) PlayTrack(ctx context.Context, track vc.Track, playlist *vc.PlaylistSnapshot) error {
	return e.PlayTrackAt(ctx, track, playlist, -1)
}

// PlayTrackAt loads and plays a track at an explicit position. A negative
// position requests resume-position lookup instead.
func (e *Engine) PlayTrackAt(ctx context.Context, track vc.Track, playlist *vc.PlaylistSnapshot, positionSeconds float64) error {
	url, err := e.resolver.ResolveURL(ctx, track.StorageRef)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if positionSeconds < 0 {
		positionSeconds = 0
		if e.resume != nil && !e.playedThisSession[track.ID] {
			positionSeconds = e.resume.ResumePosition(track.ID, float64(track.DurationSeconds))
		}
	}
	e.playedThisSession[track.ID] = true

	if e.st.CurrentTrack != nil && e.st.CurrentTrack.ID != track.ID {
		e.notifyLocked(func(l Listener) { l.TrackEnded() })
	}

	if err := e.driver.Play(url, positionSeconds); err != nil {
		return err
	}

	e.st = state.Reduce(e.st, state.PlayTrack{Track: track, Playlist: playlist})
	e.st = state.Reduce(e.st, state.SetPosition{Seconds: positionSeconds})
	e.notifyLocked(func(l Listener) { l.TrackStarted(track, playlistID(playlist)) })
	e.prefetchNextLocked(ctx)
	e.changedLocked()
	return nil
}

// TogglePlayPause flips between playing and paused.
func (e *Engine) TogglePlayPause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st.CurrentTrack == nil {
		return ErrNothingLoaded
	}

	if e.st.IsPlaying {
		if err := e.driver.Pause(); err != nil {
			return err
		}
		e.st = state.Reduce(e.st, state.TogglePlayPause{})
		e.notifyLocked(func(l Listener) { l.PlaybackPaused() })
	} else {
		if err := e.driver.Resume(); err != nil {
			return err
		}
		e.st = state.Reduce(e.st, state.TogglePlayPause{})
		e.notifyLocked(func(l Listener) { l.PlaybackResumed() })
	}
	e.changedLocked()
	return nil
}

// Pause pauses playback if currently playing.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st.CurrentTrack == nil {
		return ErrNothingLoaded
	}
	if !e.st.IsPlaying {
		return nil
	}
	if err := e.driver.Pause(); err != nil {
		return err
	}
	e.st = state.Reduce(e.st, state.TogglePlayPause{})
	e.notifyLocked(func(l Listener) { l.PlaybackPaused() })
	e.changedLocked()
	return nil
}

// Resume resumes playback if currently paused.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st.CurrentTrack == nil {
		return ErrNothingLoaded
	}
	if e.st.IsPlaying {
		return nil
	}
	if err := e.driver.Resume(); err != nil {
		return err
	}
	e.st = state.Reduce(e.st, state.TogglePlayPause{})
	e.notifyLocked(func(l Listener) { l.PlaybackResumed() })
	e.changedLocked()
	return nil
}

// Seek moves playback to a position within the current track.
func (e *Engine) Seek(positionSeconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st.CurrentTrack == nil {
		return ErrNothingLoaded
	}
	if err := e.driver.Seek(positionSeconds); err != nil {
		return err
	}
	e.st = state.Reduce(e.st, state.SetPosition{Seconds: positionSeconds})
	e.changedLocked()
	return nil
}

// SetVolume sets the output volume.
func (e *Engine) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return ErrVolumeRange
	}
	return e.driver.SetVolume(volume)
}

// Next advances to the next playlist entry, wrapping at the end.
func (e *Engine) Next(ctx context.Context) error {
	return e.step(ctx, state.Next{})
}

// Previous steps back one playlist entry, wrapping at the start.
func (e *Engine) Previous(ctx context.Context) error {
	return e.step(ctx, state.Previous{})
}

func (e *Engine) step(ctx context.Context, action state.Action) error {
	e.mu.Lock()
	next := state.Reduce(e.st, action)
	if next.CurrentTrack == nil || (e.st.CurrentTrack != nil && next.CurrentTrack == e.st.CurrentTrack) {
		e.mu.Unlock()
		return ErrNothingLoaded
	}
	track := *next.CurrentTrack
	playlist := next.Playlist
	e.mu.Unlock()

	return e.PlayTrackAt(ctx, track, playlist, 0)
}

// Stop halts playback and clears the loaded track.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.driver.Stop(); err != nil {
		return err
	}
	if e.st.CurrentTrack != nil {
		e.notifyLocked(func(l Listener) { l.TrackEnded() })
	}
	e.st = state.Reduce(e.st, state.Stop{})
	if e.resume != nil {
		e.resume.Flush()
	}
	e.changedLocked()
	return nil
}

// Tick runs the engine's periodic work: position tracking, debounced resume
// persistence, signed-URL renewal, and end-of-track advance.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	track := e.st.CurrentTrack
	playing := e.st.IsPlaying
	e.mu.Unlock()

	if track == nil {
		return
	}

	pos, dur, ok := e.driver.Position()
	if ok {
		e.mu.Lock()
		e.st = state.Reduce(e.st, state.SetPosition{Seconds: pos})
		e.mu.Unlock()

		if playing && e.resume != nil {
			e.resume.Save(track.ID, pos)
		}
		if playing && dur > 0 && pos >= dur {
			e.advanceAfterEnd(ctx)
			return
		}
	}

	if playing && e.resolver.NeedsRenewal(track.StorageRef) {
		if _, err := e.resolver.Refresh(ctx, track.StorageRef); err != nil {
			e.log.Warn("signed url renewal failed", zap.String("track", track.ID), zap.Error(err))
		}
	}
}

// Close stops playback and flushes resume state.
func (e *Engine) Close() error {
	err := e.Stop()
	if e.resume != nil {
		if cerr := e.resume.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (e *Engine) advanceAfterEnd(ctx context.Context) {
	if err := e.Next(ctx); err != nil {
		e.log.Warn("advance after track end failed", zap.Error(err))
		_ = e.Stop()
	}
}

func (e *Engine) prefetchNextLocked(ctx context.Context) {
	if e.st.Playlist == nil || len(e.st.Playlist.Tracks) < 2 {
		return
	}
	idx, ok := e.st.Playlist.NextIndex()
	if !ok {
		return
	}
	next := e.st.Playlist.Tracks[idx]
	go e.resolver.Prefetch(ctx, next.StorageRef)
}

func (e *Engine) notifyLocked(fn func(Listener)) {
	for _, l := range e.listeners {
		fn(l)
	}
}

func (e *Engine) changedLocked() {
	if e.onChange != nil {
		e.onChange(e.st)
	}
}

func playlistID(playlist *vc.PlaylistSnapshot) string {
	if playlist == nil {
		return ""
	}
	return playlist.PlaylistID
}
