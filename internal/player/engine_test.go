package player

import (
	"context"
	"errors"
	"sync"
	"testing"

	"venuecast/pkg/vc"
)

type fakeDriver struct {
	mu       sync.Mutex
	playing  bool
	url      string
	position float64
	duration float64
	volume   float64
	plays    int
	pauses   int
	resumes  int
	stops    int
	seeks    []float64
}

func (d *fakeDriver) Play(url string, positionSeconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = true
	d.url = url
	d.position = positionSeconds
	d.plays++
	return nil
}

func (d *fakeDriver) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
	d.pauses++
	return nil
}

func (d *fakeDriver) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = true
	d.resumes++
	return nil
}

func (d *fakeDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
	d.stops++
	return nil
}

func (d *fakeDriver) Seek(positionSeconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = positionSeconds
	d.seeks = append(d.seeks, positionSeconds)
	return nil
}

func (d *fakeDriver) SetVolume(volume float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volume = volume
	return nil
}

func (d *fakeDriver) Position() (float64, float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.url == "" {
		return 0, 0, false
	}
	return d.position, d.duration, true
}

type fakeResolver struct {
	mu        sync.Mutex
	renewals  int
	prefetch  []string
	needRenew bool
}

func (r *fakeResolver) ResolveURL(_ context.Context, ref string) (string, error) {
	if ref == "" {
		return "", errors.New("empty ref")
	}
	return "https://cdn.example/" + ref, nil
}

func (r *fakeResolver) Refresh(_ context.Context, ref string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renewals++
	return "https://cdn.example/" + ref, nil
}

func (r *fakeResolver) Prefetch(_ context.Context, ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefetch = append(r.prefetch, ref)
}

func (r *fakeResolver) NeedsRenewal(string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.needRenew
}

func testTrack(id string) vc.Track {
	return vc.Track{ID: id, Title: id, DurationSeconds: 180, StorageRef: "media/" + id + ".mp3"}
}

func testPlaylist(ids ...string) *vc.PlaylistSnapshot {
	tracks := make([]vc.Track, 0, len(ids))
	for _, id := range ids {
		tracks = append(tracks, testTrack(id))
	}
	return &vc.PlaylistSnapshot{PlaylistID: "p1", Tracks: tracks, Index: 0}
}

func newTestEngine(t *testing.T, driver *fakeDriver, resolver *fakeResolver) *Engine {
	t.Helper()
	return NewEngine(Options{
		Driver:   driver,
		Resolver: resolver,
	})
}

func TestPlayTrackResolvesAndPlays(t *testing.T) {
	driver := &fakeDriver{duration: 180}
	engine := newTestEngine(t, driver, &fakeResolver{})

	playlist := testPlaylist("t1", "t2")
	if err := engine.PlayTrack(context.Background(), playlist.Tracks[0], playlist); err != nil {
		t.Fatalf("play: %v", err)
	}

	if driver.url != "https://cdn.example/media/t1.mp3" {
		t.Fatalf("unexpected url %s", driver.url)
	}
	snapshot := engine.Snapshot()
	if snapshot.CurrentTrack == nil || snapshot.CurrentTrack.ID != "t1" || !snapshot.IsPlaying {
		t.Fatalf("unexpected state %+v", snapshot)
	}
}

func TestTogglePlayPauseWithoutTrack(t *testing.T) {
	engine := newTestEngine(t, &fakeDriver{}, &fakeResolver{})
	if err := engine.TogglePlayPause(); !errors.Is(err, ErrNothingLoaded) {
		t.Fatalf("expected ErrNothingLoaded, got %v", err)
	}
}

func TestTogglePlayPauseFlips(t *testing.T) {
	driver := &fakeDriver{duration: 180}
	engine := newTestEngine(t, driver, &fakeResolver{})

	playlist := testPlaylist("t1")
	if err := engine.PlayTrack(context.Background(), playlist.Tracks[0], playlist); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := engine.TogglePlayPause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if engine.Snapshot().IsPlaying || driver.pauses != 1 {
		t.Fatalf("expected paused state")
	}
	if err := engine.TogglePlayPause(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !engine.Snapshot().IsPlaying || driver.resumes != 1 {
		t.Fatalf("expected playing state")
	}
}

func TestNextWrapsAndPlays(t *testing.T) {
	driver := &fakeDriver{duration: 180}
	engine := newTestEngine(t, driver, &fakeResolver{})

	playlist := testPlaylist("t1", "t2")
	playlist.Index = 1
	if err := engine.PlayTrack(context.Background(), playlist.Tracks[1], playlist); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := engine.Next(context.Background()); err != nil {
		t.Fatalf("next: %v", err)
	}

	snapshot := engine.Snapshot()
	if snapshot.CurrentTrack.ID != "t1" {
		t.Fatalf("expected wrap to t1, got %s", snapshot.CurrentTrack.ID)
	}
	if driver.position != 0 {
		t.Fatalf("wrapped track should start at 0, got %f", driver.position)
	}
}

func TestNextWithoutPlaylist(t *testing.T) {
	engine := newTestEngine(t, &fakeDriver{}, &fakeResolver{})
	if err := engine.Next(context.Background()); !errors.Is(err, ErrNothingLoaded) {
		t.Fatalf("expected ErrNothingLoaded, got %v", err)
	}
}

func TestSetVolumeRange(t *testing.T) {
	driver := &fakeDriver{}
	engine := newTestEngine(t, driver, &fakeResolver{})

	if err := engine.SetVolume(1.5); !errors.Is(err, ErrVolumeRange) {
		t.Fatalf("expected ErrVolumeRange, got %v", err)
	}
	if err := engine.SetVolume(0.4); err != nil {
		t.Fatalf("set volume: %v", err)
	}
	if driver.volume != 0.4 {
		t.Fatalf("volume not applied: %f", driver.volume)
	}
}

func TestTickRenewsSignedURL(t *testing.T) {
	driver := &fakeDriver{duration: 180}
	resolver := &fakeResolver{needRenew: true}
	engine := newTestEngine(t, driver, resolver)

	playlist := testPlaylist("t1")
	if err := engine.PlayTrack(context.Background(), playlist.Tracks[0], playlist); err != nil {
		t.Fatalf("play: %v", err)
	}
	driver.position = 30

	engine.Tick(context.Background())
	if resolver.renewals != 1 {
		t.Fatalf("expected renewal, got %d", resolver.renewals)
	}
}

func TestTickAdvancesAtTrackEnd(t *testing.T) {
	driver := &fakeDriver{duration: 180}
	engine := newTestEngine(t, driver, &fakeResolver{})

	playlist := testPlaylist("t1", "t2")
	if err := engine.PlayTrack(context.Background(), playlist.Tracks[0], playlist); err != nil {
		t.Fatalf("play: %v", err)
	}
	driver.position = 180

	engine.Tick(context.Background())
	snapshot := engine.Snapshot()
	if snapshot.CurrentTrack.ID != "t2" {
		t.Fatalf("expected advance to t2, got %s", snapshot.CurrentTrack.ID)
	}
}

func TestResumeStoreRoundTrip(t *testing.T) {
	store, err := OpenResumeStoreAt(":memory:")
	if err != nil {
		t.Fatalf("open resume store: %v", err)
	}
	defer store.Close()

	store.Save("t1", 60)
	store.Flush()

	if pos := store.ResumePosition("t1", 180); pos != 60 {
		t.Fatalf("expected stored position 60, got %f", pos)
	}
	if pos := store.ResumePosition("t2", 180); pos != 0 {
		t.Fatalf("unknown track must not resume, got %f", pos)
	}
}

func TestResumeStoreIgnoresEdges(t *testing.T) {
	store, err := OpenResumeStoreAt(":memory:")
	if err != nil {
		t.Fatalf("open resume store: %v", err)
	}
	defer store.Close()

	store.Save("t1", 3)
	store.Flush()
	if pos := store.ResumePosition("t1", 180); pos != 0 {
		t.Fatalf("near-start position must not resume, got %f", pos)
	}

	store.Save("t1", 178)
	store.Flush()
	if pos := store.ResumePosition("t1", 180); pos != 0 {
		t.Fatalf("near-end position must not resume, got %f", pos)
	}
}

func TestEngineRestoresPersistedPositionOnFirstOpen(t *testing.T) {
	store, err := OpenResumeStoreAt(":memory:")
	if err != nil {
		t.Fatalf("open resume store: %v", err)
	}
	defer store.Close()

	// Position persisted by a previous run of the app.
	store.Save("t1", 42)
	store.Flush()

	driver := &fakeDriver{duration: 180}
	engine := NewEngine(Options{
		Driver:   driver,
		Resolver: &fakeResolver{},
		Resume:   store,
	})

	playlist := testPlaylist("t1")
	if err := engine.PlayTrack(context.Background(), playlist.Tracks[0], playlist); err != nil {
		t.Fatalf("play: %v", err)
	}
	if driver.position != 42 {
		t.Fatalf("expected resume at 42, got %f", driver.position)
	}
}

func TestSwitchingAwayClearsAutoResume(t *testing.T) {
	store, err := OpenResumeStoreAt(":memory:")
	if err != nil {
		t.Fatalf("open resume store: %v", err)
	}
	defer store.Close()

	driver := &fakeDriver{duration: 180}
	engine := NewEngine(Options{
		Driver:   driver,
		Resolver: &fakeResolver{},
		Resume:   store,
	})

	playlist := testPlaylist("t1", "t2")
	ctx := context.Background()
	if err := engine.PlayTrack(ctx, playlist.Tracks[0], playlist); err != nil {
		t.Fatalf("play t1: %v", err)
	}
	driver.position = 40
	engine.Tick(ctx)
	store.Flush()

	if err := engine.PlayTrack(ctx, playlist.Tracks[1], playlist); err != nil {
		t.Fatalf("play t2: %v", err)
	}
	if err := engine.PlayTrack(ctx, playlist.Tracks[0], playlist); err != nil {
		t.Fatalf("play t1 again: %v", err)
	}
	if driver.position != 0 {
		t.Fatalf("returning to a track this session must start at 0, got %f", driver.position)
	}
}

type recordingListener struct {
	mu      sync.Mutex
	started []string
	paused  int
	resumed int
	ended   int
}

func (l *recordingListener) TrackStarted(track vc.Track, _ string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, track.ID)
}

func (l *recordingListener) PlaybackPaused() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paused++
}

func (l *recordingListener) PlaybackResumed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resumed++
}

func (l *recordingListener) TrackEnded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ended++
}

func TestListenerSeesTransitions(t *testing.T) {
	listener := &recordingListener{}
	driver := &fakeDriver{duration: 180}
	engine := NewEngine(Options{
		Driver:    driver,
		Resolver:  &fakeResolver{},
		Listeners: []Listener{listener},
	})

	playlist := testPlaylist("t1", "t2")
	ctx := context.Background()
	if err := engine.PlayTrack(ctx, playlist.Tracks[0], playlist); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := engine.TogglePlayPause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := engine.TogglePlayPause(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := engine.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := engine.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if len(listener.started) != 2 || listener.started[0] != "t1" || listener.started[1] != "t2" {
		t.Fatalf("unexpected starts: %v", listener.started)
	}
	if listener.paused != 1 || listener.resumed != 1 {
		t.Fatalf("unexpected pause/resume counts: %d/%d", listener.paused, listener.resumed)
	}
	// One for the t1 -> t2 change, one for the final stop.
	if listener.ended != 2 {
		t.Fatalf("unexpected ended count: %d", listener.ended)
	}
}
