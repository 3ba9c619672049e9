//go:build opencv

package uvc

import (
	"time"

	"github.com/fpscan/fpscan/camera"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

type frame struct {
	b          []byte
	cols, rows int
	ok         bool
}

// Camera is a UVC camera read through gocv
type Camera struct {
	model camera.Model
	opts  Options
	cap   *gocv.VideoCapture

	// pending is non-nil while a read that timed out is still running
	pending chan frame
}

// New returns a camera for a model.  The device is not touched until Open.
func New(m camera.Model) (camera.Backend, error) {
	return &Camera{model: m}, nil
}

// Open opens the capture device at index 0.  Configure reopens it when
// Options selects another index.
func (c *Camera) Open() error {
	return c.open(0)
}

func (c *Camera) open(idx int) error {
	vc, err := gocv.OpenVideoCapture(idx)
	if err != nil {
		return errors.Wrapf(err, "opening video device %d", idx)
	}
	if !vc.IsOpened() {
		vc.Close()
		return errors.Errorf("video device %d did not open", idx)
	}
	c.cap = vc
	return nil
}

// Configure sets the frame size, manual exposure and the picture controls,
// and for raw models requests the undecoded stream
func (c *Camera) Configure(s camera.Settings) error {
	o, err := decodeOptions(s.Args)
	if err != nil {
		return err
	}
	c.opts = o
	if o.Index != 0 {
		c.cap.Close()
		if err = c.open(o.Index); err != nil {
			return err
		}
	}
	vc := c.cap
	if c.model.Width > 0 && c.model.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.model.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.model.Height))
	}
	vc.Set(gocv.VideoCaptureAutoExposure, 1) // manual
	if s.FrameRate > 0 {
		vc.Set(gocv.VideoCaptureFPS, s.FrameRate)
	}
	if err = c.SetExposure(s.Exposure); err != nil {
		return err
	}
	vc.Set(gocv.VideoCaptureGain, s.Gain)
	vc.Set(gocv.VideoCaptureGamma, s.Gamma)
	vc.Set(gocv.VideoCaptureContrast, s.Contrast)
	vc.Set(gocv.VideoCaptureBrightness, s.Brightness)
	if raw(c.model) {
		fcc := o.Fourcc
		if fcc == "" {
			fcc = "Y16 "
		}
		vc.Set(gocv.VideoCaptureFOURCC, float64(vc.ToCodec(fcc)))
		vc.Set(gocv.VideoCaptureConvertRGB, 0)
		vc.Set(gocv.VideoCaptureFormat, -1)
	}
	return nil
}

// SetExposure writes the exposure property in the driver's convention
func (c *Camera) SetExposure(d time.Duration) error {
	if c.cap == nil {
		return camera.ErrNotOpen
	}
	if d <= 0 {
		return nil
	}
	c.cap.Set(gocv.VideoCaptureExposure, exposureValue(d, c.opts.ExposureMode))
	return nil
}

func (c *Camera) read(out chan<- frame) {
	m := gocv.NewMat()
	defer m.Close()
	var f frame
	if c.cap.Read(&m) && !m.Empty() {
		f = frame{b: m.ToBytes(), cols: m.Cols(), rows: m.Rows(), ok: true}
	}
	out <- f
}

// Grab reads one frame.  VideoCapture reads cannot be interrupted, so a read
// that times out is collected by the next Grab.
func (c *Camera) Grab(timeout time.Duration) (camera.Raw, error) {
	if c.cap == nil {
		return camera.Raw{}, camera.ErrNotOpen
	}
	ch := c.pending
	if ch == nil {
		ch = make(chan frame, 1)
		go c.read(ch)
	}
	select {
	case f := <-ch:
		c.pending = nil
		if !f.ok {
			return camera.Raw{}, errors.Wrap(camera.ErrGrabFailed, "empty frame from video device")
		}
		return toRaw(f.b, f.cols, f.rows, c.model), nil
	case <-time.After(timeout):
		c.pending = ch
		return camera.Raw{}, errors.Wrapf(camera.ErrGrabTimeout, "after %v", timeout)
	}
}

// Close releases the capture device
func (c *Camera) Close() error {
	if c.cap == nil {
		return nil
	}
	if c.pending != nil {
		<-c.pending
		c.pending = nil
	}
	err := c.cap.Close()
	c.cap = nil
	return err
}
