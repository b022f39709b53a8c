package player

import "errors"

// Driver executes playback actions against the audio stack.
type Driver interface {
	Play(url string, positionSeconds float64) error
	Pause() error
	Resume() error
	Stop() error
	Seek(positionSeconds float64) error
	SetVolume(volume float64) error
	Position() (positionSeconds float64, durationSeconds float64, ok bool)
}

// ErrNothingLoaded indicates a transport command with no loaded track.
var ErrNothingLoaded = errors.New("no track loaded")

// ErrVolumeRange indicates a volume outside [0, 1].
var ErrVolumeRange = errors.New("volume must be within [0, 1]")
