// Package camera contains a controller that owns one live camera, the table
// of supported camera models and the pixel layout conversions from backend
// buffers to canonical 16-bit frames.
package camera

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/fpscan/fpscan/imgrec"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrGrabTimeout is generated when no frame arrives before the grab timeout
	ErrGrabTimeout = errors.New("no frame received before the grab timeout")

	// ErrGrabFailed is generated when the backend reports a dropped or corrupt frame
	ErrGrabFailed = errors.New("frame grab failed")

	// ErrNotOpen is generated when a capture is attempted with no open camera
	ErrNotOpen = errors.New("no camera is open")
)

// UnsupportedModel is generated when a camera model is not in the model table
type UnsupportedModel struct {
	Model string
}

func (e UnsupportedModel) Error() string {
	known := make([]string, 0, len(Models))
	for k := range Models {
		known = append(known, k)
	}
	sort.Strings(known)
	return fmt.Sprintf("camera model %q is not supported, supported models are %q", e.Model, known)
}

// Settings are the acquisition parameters applied when a camera is opened.
// Zero values leave the camera default.
type Settings struct {
	Exposure    time.Duration `yaml:"Exposure" koanf:"Exposure"`
	Gain        float64       `yaml:"Gain" koanf:"Gain"`
	Gamma       float64       `yaml:"Gamma" koanf:"Gamma"`
	Brightness  float64       `yaml:"Brightness" koanf:"Brightness"`
	Contrast    float64       `yaml:"Contrast" koanf:"Contrast"`
	FrameRate   float64       `yaml:"FrameRate" koanf:"FrameRate"`
	PixelFormat string        `yaml:"PixelFormat" koanf:"PixelFormat"`

	// FlipH mirrors frames left to right, Rotate turns them clockwise by 0, 90, 180 or 270 degrees
	FlipH  bool `yaml:"FlipH" koanf:"FlipH"`
	Rotate int  `yaml:"Rotate" koanf:"Rotate"`

	// Args holds backend specific options, decoded by the backend
	Args map[string]interface{} `yaml:"Args" koanf:"Args"`
}

// DefaultSettings are the acquisition parameters used by the rig
func DefaultSettings() Settings {
	return Settings{
		Exposure:    4 * time.Millisecond,
		Gamma:       1,
		FrameRate:   30,
		PixelFormat: "Mono12"}
}

// Raw is a buffer from a backend, in its native layout
type Raw struct {
	Width  int
	Height int
	Layout Layout
	Data   []byte
}

// Backend is one vendor camera interface
type Backend interface {
	// Open connects to the camera
	Open() error

	// Configure applies acquisition settings
	Configure(Settings) error

	// SetExposure changes the exposure time
	SetExposure(time.Duration) error

	// Grab acquires one frame, waiting at most timeout.
	// Errors wrap ErrGrabTimeout or ErrGrabFailed.
	Grab(timeout time.Duration) (Raw, error)

	// Close releases the camera
	Close() error
}

// Factory makes a backend for a camera model
type Factory func(Model) (Backend, error)

var registry = map[Kind]Factory{}

// Register makes a backend factory available to controllers that do not set Backends.
// Backend packages call it from init.
func Register(k Kind, f Factory) {
	registry[k] = f
}

// Controller owns at most one live camera.  It is not safe for concurrent use.
type Controller struct {
	// Backends overrides the registered backend factories
	Backends map[Kind]Factory

	// GrabTimeout bounds every grab
	GrabTimeout time.Duration

	Logger *log.Logger

	model    Model
	settings Settings
	backend  Backend
}

// NewController returns a controller using the registered backends
func NewController(logger *log.Logger) *Controller {
	return &Controller{GrabTimeout: 2 * time.Second, Logger: logger}
}

func (c *Controller) logf(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (c *Controller) factory(k Kind) (Factory, bool) {
	if c.Backends != nil {
		f, ok := c.Backends[k]
		return f, ok
	}
	f, ok := registry[k]
	return f, ok
}

// Open resolves model against the model table, connects to the camera with
// the matching backend, applies s and takes one warm-up frame which is discarded.
// Any camera already open is closed first.
func (c *Controller) Open(model string, s Settings) error {
	m, err := LookupModel(model)
	if err != nil {
		return err
	}
	if s.Rotate%90 != 0 {
		return errors.Errorf("rotation must be a multiple of 90 degrees, got %d", s.Rotate)
	}
	f, ok := c.factory(m.Kind)
	if !ok {
		return errors.Errorf("no %s backend available for %s", m.Kind, m.Name)
	}
	if err = c.Close(); err != nil {
		return err
	}
	b, err := f(m)
	if err != nil {
		return errors.Wrapf(err, "creating %s backend", m.Kind)
	}
	if err = b.Open(); err != nil {
		return errors.Wrapf(err, "opening %s", m.Name)
	}
	if err = b.Configure(s); err != nil {
		b.Close()
		return errors.Wrapf(err, "configuring %s", m.Name)
	}
	c.model, c.settings, c.backend = m, s, b
	if _, err = c.grab(); err != nil {
		c.Close()
		return errors.Wrap(err, "warm-up frame")
	}
	c.logf("camera %s open through %s, exposure %v", m.Name, m.Kind, s.Exposure)
	return nil
}

// Model returns the name of the open camera model
func (c *Controller) Model() string {
	return c.model.Name
}

// IsOpen returns true if a camera is open
func (c *Controller) IsOpen() bool {
	return c.backend != nil
}

// Exposure returns the exposure time last applied
func (c *Controller) Exposure() time.Duration {
	return c.settings.Exposure
}

// SetExposure changes the exposure time of the open camera
func (c *Controller) SetExposure(d time.Duration) error {
	if c.backend == nil {
		return ErrNotOpen
	}
	if err := c.backend.SetExposure(d); err != nil {
		return err
	}
	c.settings.Exposure = d
	return nil
}

func (c *Controller) grab() (imgrec.Frame, error) {
	if c.backend == nil {
		return imgrec.Frame{}, ErrNotOpen
	}
	raw, err := c.backend.Grab(c.GrabTimeout)
	if err != nil {
		return imgrec.Frame{}, err
	}
	f, err := Decode(raw, c.model)
	if err != nil {
		return f, errors.Wrap(ErrGrabFailed, err.Error())
	}
	f = Orient(f, c.settings.FlipH, c.settings.Rotate)
	f.Meta = imgrec.Meta{Model: c.model.Name, Exposure: c.settings.Exposure, Time: time.Now()}
	return f, nil
}

// Grab acquires one frame without saving it
func (c *Controller) Grab() (imgrec.Frame, error) {
	return c.grab()
}

// Capture acquires one frame and writes it to path.  meta is recorded with
// the frame; its model, exposure and time are filled in.
func (c *Controller) Capture(path string, meta imgrec.Meta) (imgrec.Frame, error) {
	f, err := c.grab()
	if err != nil {
		return f, err
	}
	meta.Model, meta.Exposure, meta.Time = f.Meta.Model, f.Meta.Exposure, f.Meta.Time
	f.Meta = meta
	if err = imgrec.Save(path, f); err != nil {
		return f, err
	}
	c.logf("captured %s", path)
	return f, nil
}

// CaptureAveraged grabs n frames at an exposure time and returns their
// per-pixel mean.  A zero exposure keeps the current one.  Any failed grab
// aborts the average.
func (c *Controller) CaptureAveraged(n int, exposure time.Duration) (*imgrec.Averaged, error) {
	if n < 1 {
		return nil, errors.Errorf("cannot average %d frames", n)
	}
	if exposure > 0 {
		if err := c.SetExposure(exposure); err != nil {
			return nil, err
		}
	}
	var acc []float64
	var first imgrec.Frame
	for i := 0; i < n; i++ {
		f, err := c.grab()
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d of %d", i+1, n)
		}
		if i == 0 {
			first = f
			acc = make([]float64, len(f.Pix))
		} else if f.Width != first.Width || f.Height != first.Height {
			return nil, errors.Wrapf(ErrGrabFailed, "frame %d is %dx%d, expected %dx%d", i+1, f.Width, f.Height, first.Width, first.Height)
		}
		floats.Add(acc, f.Floats())
	}
	floats.Scale(1/float64(n), acc)
	c.logf("averaged %d frames of %s at %v", n, c.model.Name, c.settings.Exposure)
	return &imgrec.Averaged{Width: first.Width, Height: first.Height, Pix: acc, Count: n, Meta: first.Meta}, nil
}

// Close releases the camera.  Closing with no camera open is a no-op.
func (c *Controller) Close() error {
	if c.backend == nil {
		return nil
	}
	err := c.backend.Close()
	c.backend = nil
	c.logf("camera %s closed", c.model.Name)
	return err
}
