// Package sync coordinates an account's shared playback session across
// venues. One row in the platform database is the authority on who controls
// playback; a retained broadcast topic fans its changes out to every
// subscribed venue. The coordinator arbitrates control, applies remote
// transport state to the local engine, and broadcasts self-originated
// changes without ever echoing received ones.
package sync

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"venuecast/internal/adapters/sessiondb"
	"venuecast/internal/state"
	"venuecast/pkg/vc"
)

// Position drift below this threshold is not worth a seek on the receiver.
const positionSlackSeconds = 2.0

// Broker publishes and subscribes session-state broadcasts.
type Broker interface {
	PublishSession(ctx context.Context, state vc.SessionState) error
	SubscribeSession(accountID string, handler func(vc.SessionState)) error
}

// SessionStore is the conditional-write view of the session row.
type SessionStore interface {
	EnsureSession(ctx context.Context, accountID string) (vc.SessionState, error)
	GetSession(ctx context.Context, accountID string) (vc.SessionState, error)
	TakeControl(ctx context.Context, accountID, userID, userName, prevControllerID string) (vc.SessionState, error)
	ReleaseControl(ctx context.Context, accountID, userID string) (vc.SessionState, error)
	UpdateTransport(ctx context.Context, accountID, userID string, update vc.TransportUpdate) (vc.SessionState, error)
}

// Engine is the local playback surface the coordinator drives.
type Engine interface {
	PlayTrackAt(ctx context.Context, track vc.Track, playlist *vc.PlaylistSnapshot, positionSeconds float64) error
	Pause() error
	Resume() error
	Seek(positionSeconds float64) error
	Stop() error
	Snapshot() state.State
}

// Capability gates take-control independent of current controller state.
type Capability interface {
	CanAdminister(accountID string) bool
}

// Options configures a coordinator.
type Options struct {
	Store      SessionStore
	Broker     Broker
	Engine     Engine
	Capability Capability
	AccountID  string
	UserID     string
	UserName   string
	ClientID   string
	Mode       string
	Logger     *zap.Logger
}

// Coordinator maintains this client's view of the account session.
type Coordinator struct {
	store  SessionStore
	broker Broker
	engine Engine
	caps   Capability

	accountID string
	userID    string
	userName  string
	clientID  string
	mode      string
	log       *zap.Logger

	mu             sync.Mutex
	status         ConnectionStatus
	role           Role
	controllerName string
	lastApplied    int64
	applying       bool
	lastBroadcast  time.Time
}

// NewCoordinator creates a coordinator. Call Start to connect it.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Coordinator{
		store:     opts.Store,
		broker:    opts.Broker,
		engine:    opts.Engine,
		caps:      opts.Capability,
		accountID: opts.AccountID,
		userID:    opts.UserID,
		userName:  opts.UserName,
		clientID:  opts.ClientID,
		mode:      opts.Mode,
		log:       opts.Logger,
		status:    StatusDisconnected,
		role:      RoleNone,
	}
}

// Start subscribes to broadcasts and fetches the session baseline. Only
// synchronized accounts coordinate; other modes leave the coordinator idle.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.mode != vc.ModeSynchronized {
		return nil
	}

	c.mu.Lock()
	c.status = StatusConnecting
	c.mu.Unlock()

	// The subscription registers before the baseline fetch; a failed
	// fetch still leaves broadcasts flowing to this venue.
	if err := c.broker.SubscribeSession(c.accountID, func(remote vc.SessionState) {
		c.handleRemote(context.Background(), remote)
	}); err != nil {
		c.mu.Lock()
		c.status = StatusError
		c.mu.Unlock()
		return err
	}

	baseline, err := c.store.EnsureSession(ctx, c.accountID)
	if err != nil {
		c.mu.Lock()
		c.status = StatusError
		c.mu.Unlock()
		return err
	}
	c.applyBaseline(ctx, baseline)

	c.mu.Lock()
	c.status = StatusConnected
	c.mu.Unlock()
	return nil
}

// Status returns the current coordinator view.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Mode:             c.mode,
		ConnectionStatus: c.status,
		Role:             c.role,
		ControllerName:   c.controllerName,
		CanControl:       c.caps != nil && c.caps.CanAdminister(c.accountID),
		SessionVersion:   c.lastApplied,
	}
}

// HandleConnected marks the channel up and re-synchronizes from the session
// row. The fetched row is the authoritative baseline after an outage: any
// locally drifted track or position yields to it.
func (c *Coordinator) HandleConnected(ctx context.Context) {
	if c.mode != vc.ModeSynchronized {
		return
	}

	c.mu.Lock()
	c.status = StatusConnected
	c.mu.Unlock()

	baseline, err := c.store.GetSession(ctx, c.accountID)
	if err != nil {
		if !errors.Is(err, sessiondb.ErrSessionMissing) {
			c.log.Warn("baseline fetch after reconnect failed", zap.Error(err))
		}
		return
	}
	c.applyBaseline(ctx, baseline)
}

// HandleConnectionLost marks the channel down. Local audio is untouched;
// the engine keeps playing whatever it was playing.
func (c *Coordinator) HandleConnectionLost(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusConnected {
		c.status = StatusConnecting
	}
	if err != nil {
		c.log.Warn("session channel lost", zap.Error(err))
	}
}

// TakeControl attempts to become the account's controller. Losing the race
// to another admin is silent: the winner's identity arrives on the next
// broadcast and the local role reflects it.
func (c *Coordinator) TakeControl(ctx context.Context) error {
	if c.caps == nil || !c.caps.CanAdminister(c.accountID) {
		return errors.New("not permitted to control this account")
	}

	c.mu.Lock()
	if c.status != StatusConnected {
		c.mu.Unlock()
		return errors.New("not connected")
	}
	c.mu.Unlock()

	current, err := c.store.GetSession(ctx, c.accountID)
	if err != nil {
		return err
	}

	won, err := c.store.TakeControl(ctx, c.accountID, c.userID, c.userName, current.ControllerUserID)
	if errors.Is(err, sessiondb.ErrControlHeld) {
		c.log.Debug("take control lost race", zap.String("account", c.accountID))
		if latest, ferr := c.store.GetSession(ctx, c.accountID); ferr == nil {
			c.handleRemote(ctx, latest)
		}
		return nil
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.role = RoleSelf
	c.controllerName = c.userName
	if won.Version > c.lastApplied {
		c.lastApplied = won.Version
	}
	c.mu.Unlock()

	c.publish(ctx, won)
	return nil
}

// ReleaseControl clears the controller slot if this client holds it.
func (c *Coordinator) ReleaseControl(ctx context.Context) error {
	c.mu.Lock()
	if c.role != RoleSelf {
		c.mu.Unlock()
		return errors.New("not the controller")
	}
	c.mu.Unlock()

	released, err := c.store.ReleaseControl(ctx, c.accountID, c.userID)
	if errors.Is(err, sessiondb.ErrNotController) {
		// Stale local role; the conditioned write protected the newer
		// controller. Re-sync and move on.
		if latest, ferr := c.store.GetSession(ctx, c.accountID); ferr == nil {
			c.handleRemote(ctx, latest)
		}
		return nil
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.role = RoleNone
	c.controllerName = ""
	if released.Version > c.lastApplied {
		c.lastApplied = released.Version
	}
	c.mu.Unlock()

	c.publish(ctx, released)
	return nil
}

// HandleLocalChange broadcasts a self-originated transport transition. It
// is intended as the engine's change callback. Changes made while applying
// a remote update, or while not controlling, are never re-broadcast.
func (c *Coordinator) HandleLocalChange(ctx context.Context, st state.State) {
	c.mu.Lock()
	if c.applying || c.role != RoleSelf || c.status != StatusConnected {
		c.mu.Unlock()
		return
	}
	c.lastBroadcast = time.Now()
	c.mu.Unlock()

	c.pushTransport(ctx, st)
}

// TickPosition broadcasts the current position while controlling and
// playing. Callers drive it from a ~1s ticker, which bounds the broadcast
// rate for continuous position updates.
func (c *Coordinator) TickPosition(ctx context.Context) {
	c.mu.Lock()
	if c.role != RoleSelf || c.status != StatusConnected {
		c.mu.Unlock()
		return
	}
	if time.Since(c.lastBroadcast) < time.Second {
		c.mu.Unlock()
		return
	}
	c.lastBroadcast = time.Now()
	c.mu.Unlock()

	st := c.engine.Snapshot()
	if !st.IsPlaying {
		return
	}
	c.pushTransport(ctx, st)
}

func (c *Coordinator) pushTransport(ctx context.Context, st state.State) {
	updated, err := c.store.UpdateTransport(ctx, c.accountID, c.userID, vc.TransportUpdate{
		CurrentTrack:    st.CurrentTrack,
		PositionSeconds: st.PositionSeconds,
		IsPlaying:       st.IsPlaying,
		Playlist:        st.Playlist,
	})
	if err != nil {
		if errors.Is(err, sessiondb.ErrNotController) {
			// Someone else took over; the next broadcast sets the role.
			c.log.Debug("transport write rejected, no longer controller")
			return
		}
		c.log.Warn("transport update failed", zap.Error(err))
		return
	}

	c.mu.Lock()
	if updated.Version > c.lastApplied {
		c.lastApplied = updated.Version
	}
	c.mu.Unlock()

	c.publish(ctx, updated)
}

func (c *Coordinator) publish(ctx context.Context, session vc.SessionState) {
	session.Origin = c.clientID
	if err := vc.ValidateSessionState(session); err != nil {
		c.log.Warn("refusing to publish invalid session state", zap.Error(err))
		return
	}
	if err := c.broker.PublishSession(ctx, session); err != nil {
		c.log.Warn("session publish failed", zap.Error(err))
	}
}

// handleRemote applies an incoming broadcast. Receivers tolerate
// at-least-once, possibly reordered delivery: stale or duplicate versions
// are discarded, and applying the same state twice is a no-op.
func (c *Coordinator) handleRemote(ctx context.Context, remote vc.SessionState) {
	c.mu.Lock()
	if remote.Origin == c.clientID {
		// Own echo from the retained topic.
		if remote.Version > c.lastApplied {
			c.lastApplied = remote.Version
		}
		c.mu.Unlock()
		return
	}
	if remote.Version <= c.lastApplied {
		c.mu.Unlock()
		return
	}
	c.lastApplied = remote.Version
	c.updateRoleLocked(remote)
	selfControlling := c.role == RoleSelf
	c.mu.Unlock()

	if selfControlling {
		// Self-originated state flows engine -> row -> broadcast; never
		// the other way around.
		return
	}
	c.applyToEngine(ctx, remote)
}

// applyBaseline takes a fetched session row as the unconditional truth.
func (c *Coordinator) applyBaseline(ctx context.Context, baseline vc.SessionState) {
	c.mu.Lock()
	c.lastApplied = baseline.Version
	c.updateRoleLocked(baseline)
	selfControlling := c.role == RoleSelf
	c.mu.Unlock()

	if selfControlling {
		return
	}
	c.applyToEngine(ctx, baseline)
}

func (c *Coordinator) updateRoleLocked(session vc.SessionState) {
	switch {
	case session.ControllerUserID == "":
		c.role = RoleNone
		c.controllerName = ""
	case session.ControllerUserID == c.userID:
		c.role = RoleSelf
		c.controllerName = c.userName
	default:
		c.role = RoleRemote
		c.controllerName = session.ControllerName
	}
}

// applyToEngine diffs the remote state against the local snapshot and
// issues the minimal set of engine intents.
func (c *Coordinator) applyToEngine(ctx context.Context, remote vc.SessionState) {
	c.mu.Lock()
	c.applying = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.applying = false
		c.mu.Unlock()
	}()

	local := c.engine.Snapshot()

	if remote.CurrentTrack == nil {
		if local.CurrentTrack != nil {
			if err := c.engine.Stop(); err != nil {
				c.log.Warn("remote stop failed", zap.Error(err))
			}
		}
		return
	}

	trackChanged := local.CurrentTrack == nil || local.CurrentTrack.ID != remote.CurrentTrack.ID
	if trackChanged {
		if err := c.engine.PlayTrackAt(ctx, *remote.CurrentTrack, remote.Playlist, remote.PositionSeconds); err != nil {
			c.log.Warn("remote track apply failed",
				zap.String("track", remote.CurrentTrack.ID), zap.Error(err))
			return
		}
		if !remote.IsPlaying {
			if err := c.engine.Pause(); err != nil {
				c.log.Warn("remote pause failed", zap.Error(err))
			}
		}
		return
	}

	if remote.IsPlaying != local.IsPlaying {
		var err error
		if remote.IsPlaying {
			err = c.engine.Resume()
		} else {
			err = c.engine.Pause()
		}
		if err != nil {
			c.log.Warn("remote play state apply failed", zap.Error(err))
			return
		}
	}

	if math.Abs(remote.PositionSeconds-local.PositionSeconds) > positionSlackSeconds {
		if err := c.engine.Seek(remote.PositionSeconds); err != nil {
			c.log.Warn("remote seek failed", zap.Error(err))
		}
	}
}
