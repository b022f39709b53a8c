package vc

// Track is an immutable catalog entry. StorageRef is an opaque storage path
// that must be exchanged for a signed URL before playback; announcement
// tracks may carry a direct http(s) URL instead.
type Track struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Performer       string `json:"performer,omitempty"`
	Author          string `json:"author,omitempty"`
	DurationSeconds int64  `json:"durationSeconds"`
	StorageRef      string `json:"storageRef"`
	CoverRef        string `json:"coverRef,omitempty"`
	ISRC            string `json:"isrc,omitempty"`
}

// PlaylistSnapshot is a by-value copy of an ordered track list plus the
// current index. Sessions reference snapshots, never live playlists, so a
// playlist edit mid-session cannot reorder what is playing.
type PlaylistSnapshot struct {
	PlaylistID string  `json:"playlistId,omitempty"`
	Name       string  `json:"name,omitempty"`
	Tracks     []Track `json:"tracks"`
	Index      int     `json:"index"`
}

// NextIndex returns the index after the current one, wrapping at the end.
// A single-track playlist yields the same index.
func (p PlaylistSnapshot) NextIndex() (int, bool) {
	if len(p.Tracks) == 0 {
		return 0, false
	}
	return (p.Index + 1) % len(p.Tracks), true
}

// PrevIndex returns the index before the current one, wrapping at the start.
func (p PlaylistSnapshot) PrevIndex() (int, bool) {
	if len(p.Tracks) == 0 {
		return 0, false
	}
	return (p.Index - 1 + len(p.Tracks)) % len(p.Tracks), true
}

// TrackAt returns the track at index.
func (p PlaylistSnapshot) TrackAt(index int) (Track, bool) {
	if index < 0 || index >= len(p.Tracks) {
		return Track{}, false
	}
	return p.Tracks[index], true
}

// Current returns the track at the snapshot index.
func (p PlaylistSnapshot) Current() (Track, bool) {
	return p.TrackAt(p.Index)
}

// TransportUpdate carries the controller-originated transport fields written
// to the playback session row.
type TransportUpdate struct {
	CurrentTrack    *Track            `json:"currentTrack,omitempty"`
	PositionSeconds float64           `json:"positionSeconds"`
	IsPlaying       bool              `json:"isPlaying"`
	Playlist        *PlaylistSnapshot `json:"playlist,omitempty"`
}

// PlayRecord is one flushed listening-time record.
type PlayRecord struct {
	UserID          string  `json:"userId"`
	TrackID         string  `json:"trackId"`
	PlaylistID      string  `json:"playlistId,omitempty"`
	SecondsListened float64 `json:"secondsListened"`
	RegionCode      string  `json:"regionCode,omitempty"`
}
