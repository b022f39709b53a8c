//go:build gstreamer

package player

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
)

// GstDriver implements a GStreamer-backed playback driver using Go bindings.
type GstDriver struct {
	mu        sync.Mutex
	pipeline  string
	device    string
	crossfade time.Duration
	volume    float64
	current   *gst.Element
}

var gstInitOnce sync.Once

// NewGstDriver creates a GStreamer driver using a pipeline template.
func NewGstDriver(pipeline string, device string, crossfade time.Duration) (*GstDriver, error) {
	if strings.TrimSpace(pipeline) == "" {
		return nil, errors.New("pipeline template required")
	}
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})

	return &GstDriver{pipeline: pipeline, device: device, crossfade: crossfade, volume: 1.0}, nil
}

// Play starts playback for the URL at a position.
func (d *GstDriver) Play(url string, positionSeconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	startMS := int64(positionSeconds * 1000)
	pipeline, err := d.buildPipeline(url, d.volume, startMS)
	if err != nil {
		return err
	}
	if err := d.startPipeline(pipeline); err != nil {
		return err
	}

	if d.current != nil && d.crossfade > 0 {
		old := d.current
		go d.fadeOut(old, d.crossfade)
	}

	d.current = pipeline
	if startMS > 0 {
		_ = d.seekLocked(pipeline, startMS)
	}
	return nil
}

// Pause pauses playback.
func (d *GstDriver) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return errors.New("not playing")
	}
	return d.current.SetState(gst.StatePaused)
}

// Resume resumes playback.
func (d *GstDriver) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return errors.New("not playing")
	}
	return d.current.SetState(gst.StatePlaying)
}

// Stop stops playback.
func (d *GstDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return nil
	}
	_ = d.current.SetState(gst.StateNull)
	d.current = nil
	return nil
}

// Seek seeks within the current pipeline.
func (d *GstDriver) Seek(positionSeconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return errors.New("not playing")
	}
	return d.seekLocked(d.current, int64(positionSeconds*1000))
}

// SetVolume sets volume (0..1).
func (d *GstDriver) SetVolume(volume float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.volume = volume
	if d.current != nil {
		_ = d.current.SetProperty("volume", d.volume)
	}
	return nil
}

// Position queries the current pipeline position and duration.
func (d *GstDriver) Position() (float64, float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return 0, 0, false
	}
	posOK, pos := d.current.QueryPosition(gst.FormatTime)
	durOK, dur := d.current.QueryDuration(gst.FormatTime)
	if !posOK || !durOK {
		return 0, 0, false
	}
	return float64(pos) / float64(time.Second), float64(dur) / float64(time.Second), true
}

func (d *GstDriver) buildPipeline(url string, volume float64, startMS int64) (*gst.Element, error) {
	pipeline := d.pipeline
	pipeline = strings.ReplaceAll(pipeline, "{url}", url)
	pipeline = strings.ReplaceAll(pipeline, "{device}", d.device)
	pipeline = strings.ReplaceAll(pipeline, "{start_ms}", fmt.Sprintf("%d", startMS))
	pipeline = strings.ReplaceAll(pipeline, "{volume}", fmt.Sprintf("%0.2f", volume))

	el, err := gst.ParseLaunch(pipeline)
	if err != nil {
		return nil, err
	}
	return el, nil
}

func (d *GstDriver) startPipeline(pipeline *gst.Element) error {
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return err
	}
	if d.crossfade > 0 {
		_ = pipeline.SetProperty("volume", 0.0)
		go d.fadeIn(pipeline, d.crossfade)
	}
	return nil
}

func (d *GstDriver) seekLocked(pipeline *gst.Element, positionMS int64) error {
	positionNS := positionMS * int64(time.Millisecond)
	return pipeline.SeekSimple(gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagKeyUnit, positionNS)
}

func (d *GstDriver) fadeIn(pipeline *gst.Element, duration time.Duration) {
	steps := 10
	step := duration / time.Duration(steps)
	for i := 0; i <= steps; i++ {
		volume := (float64(i) / float64(steps)) * d.volume
		_ = pipeline.SetProperty("volume", volume)
		time.Sleep(step)
	}
}

func (d *GstDriver) fadeOut(pipeline *gst.Element, duration time.Duration) {
	steps := 10
	step := duration / time.Duration(steps)
	for i := steps; i >= 0; i-- {
		volume := (float64(i) / float64(steps)) * d.volume
		_ = pipeline.SetProperty("volume", volume)
		time.Sleep(step)
	}
	_ = pipeline.SetState(gst.StateNull)
}
