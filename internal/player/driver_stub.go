//go:build !gstreamer

package player

import (
	"errors"
	"time"
)

// GstDriver is a stub when the gstreamer tag is not enabled.
type GstDriver struct{}

// NewGstDriver returns an error when the gstreamer build tag is missing.
func NewGstDriver(pipeline string, device string, crossfade time.Duration) (*GstDriver, error) {
	return nil, errors.New("gstreamer build tag not enabled")
}

func (d *GstDriver) Play(url string, positionSeconds float64) error {
	return errors.New("gstreamer build tag not enabled")
}
func (d *GstDriver) Pause() error  { return errors.New("gstreamer build tag not enabled") }
func (d *GstDriver) Resume() error { return errors.New("gstreamer build tag not enabled") }
func (d *GstDriver) Stop() error   { return errors.New("gstreamer build tag not enabled") }
func (d *GstDriver) Seek(positionSeconds float64) error {
	return errors.New("gstreamer build tag not enabled")
}
func (d *GstDriver) SetVolume(volume float64) error {
	return errors.New("gstreamer build tag not enabled")
}
func (d *GstDriver) Position() (float64, float64, bool) {
	return 0, 0, false
}
