// Package history accumulates per-track listening time and flushes one
// record per accumulation window to the platform's play-history store.
package history

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"venuecast/internal/adapters/clock"
	"venuecast/pkg/vc"
)

const flushTimeout = 5 * time.Second

// Appender writes play-history records.
type Appender interface {
	AppendPlayHistory(ctx context.Context, accountID string, record vc.PlayRecord) error
}

// Options configures the recorder.
type Options struct {
	Appender   Appender
	AccountID  string
	UserID     string
	RegionCode string
	Logger     *zap.Logger
	Now        func() time.Time
}

// Recorder observes playback transitions and meters listening time. A
// window opens when a track starts and closes when it ends, the recorder
// closes, or a new track begins. Pausing suspends the meter without
// closing the window, so pause/resume within a track still yields exactly
// one record. The flushed flag resets only when a new window opens.
type Recorder struct {
	appender   Appender
	accountID  string
	userID     string
	regionCode string
	log        *zap.Logger
	now        func() time.Time

	mu           sync.Mutex
	trackID      string
	playlistID   string
	accumulated  time.Duration
	runningSince time.Time
	running      bool
	flushed      bool
}

// NewRecorder creates a play-history recorder.
func NewRecorder(opts Options) *Recorder {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = clock.Clock{}.Now
	}
	return &Recorder{
		appender:   opts.Appender,
		accountID:  opts.AccountID,
		userID:     opts.UserID,
		regionCode: opts.RegionCode,
		log:        opts.Logger,
		now:        opts.Now,
	}
}

// TrackStarted opens a new accumulation window, flushing any unflushed
// previous window first.
func (r *Recorder) TrackStarted(track vc.Track, playlistID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flushLocked()

	r.trackID = track.ID
	r.playlistID = playlistID
	r.accumulated = 0
	r.runningSince = r.now()
	r.running = true
	r.flushed = false
}

// PlaybackPaused suspends the meter.
func (r *Recorder) PlaybackPaused() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspendLocked()
}

// PlaybackResumed restarts the meter within the current window.
func (r *Recorder) PlaybackResumed() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.trackID == "" || r.running {
		return
	}
	r.runningSince = r.now()
	r.running = true
}

// TrackEnded closes and flushes the current window.
func (r *Recorder) TrackEnded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

// Close flushes any unflushed window.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

func (r *Recorder) suspendLocked() {
	if !r.running {
		return
	}
	r.accumulated += r.now().Sub(r.runningSince)
	r.running = false
}

func (r *Recorder) flushLocked() {
	r.suspendLocked()

	if r.flushed || r.trackID == "" || r.accumulated <= 0 {
		return
	}
	r.flushed = true

	record := vc.PlayRecord{
		UserID:          r.userID,
		TrackID:         r.trackID,
		PlaylistID:      r.playlistID,
		SecondsListened: r.accumulated.Seconds(),
		RegionCode:      r.regionCode,
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := r.appender.AppendPlayHistory(ctx, r.accountID, record); err != nil {
		// Royalty accounting is best effort from the venue's side.
		r.log.Warn("play history flush failed",
			zap.String("track", r.trackID), zap.Error(err))
	}
}
