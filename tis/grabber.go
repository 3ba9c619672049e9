//go:build windows && tis

package tis

/*
#cgo CFLAGS: -I${SRCDIR}/include
#cgo LDFLAGS: -L${SRCDIR}/lib -ltisgrabber_x64
#include <stdlib.h>
#include <tisgrabber.h>
*/
import "C"
import (
	"sync"
	"time"
	"unsafe"

	"github.com/fpscan/fpscan/camera"
	"github.com/pkg/errors"
)

var (
	initOnce sync.Once
	initErr  error
)

func initialize() error {
	initOnce.Do(func() {
		initErr = Error(int(C.IC_InitLibrary(nil)))
	})
	return initErr
}

// Camera is an Imaging Source camera
type Camera struct {
	model camera.Model
	h     C.HGRABBER
	live  bool
}

// New returns a camera for a model.  The device is not touched until Open.
func New(m camera.Model) (camera.Backend, error) {
	return &Camera{model: m}, nil
}

func cstr(s string) *C.char {
	return C.CString(s)
}

// Open opens the camera by its model name
func (c *Camera) Open() error {
	if err := initialize(); err != nil {
		return err
	}
	c.h = C.IC_CreateGrabber()
	name := cstr(c.model.Name)
	defer C.free(unsafe.Pointer(name))
	if err := Error(int(C.IC_OpenVideoCaptureDevice(c.h, name))); err != nil {
		C.IC_ReleaseGrabber(&c.h)
		return errors.Wrapf(err, "opening %s", c.model.Name)
	}
	if C.IC_IsDevValid(c.h) != 1 {
		C.IC_ReleaseGrabber(&c.h)
		return errors.Errorf("%s is not a valid device", c.model.Name)
	}
	return nil
}

func (c *Camera) property(prop, elem string, f func(p, e *C.char) C.int) error {
	p, e := cstr(prop), cstr(elem)
	defer C.free(unsafe.Pointer(p))
	defer C.free(unsafe.Pointer(e))
	return errors.Wrapf(Error(int(f(p, e))), "%s %s", prop, elem)
}

func (c *Camera) manual(prop string) error {
	return c.property(prop, "Auto", func(p, e *C.char) C.int {
		return C.IC_SetPropertySwitch(c.h, p, e, 0)
	})
}

func (c *Camera) setAbs(prop string, v float64) error {
	return c.property(prop, "Value", func(p, e *C.char) C.int {
		return C.IC_SetPropertyAbsoluteValue(c.h, p, e, C.float(v))
	})
}

func (c *Camera) setInt(prop, elem string, v int) error {
	return c.property(prop, elem, func(p, e *C.char) C.int {
		return C.IC_SetPropertyValue(c.h, p, e, C.int(v))
	})
}

// Configure sets the video format and frame rate, disables the automatic
// exposure, gain and gamma and applies the settings
func (c *Camera) Configure(s camera.Settings) error {
	o, err := decodeOptions(c.model, s.Args)
	if err != nil {
		return err
	}
	if o.VideoFormat != "" {
		vf := cstr(o.VideoFormat)
		err = Error(int(C.IC_SetVideoFormat(c.h, vf)))
		C.free(unsafe.Pointer(vf))
		if err != nil {
			return errors.Wrapf(err, "video format %s", o.VideoFormat)
		}
	}
	if s.FrameRate > 0 {
		if err = Error(int(C.IC_SetFrameRate(c.h, C.float(s.FrameRate)))); err != nil {
			return errors.Wrap(err, "frame rate")
		}
	}
	if err = c.setInt("Partial scan", "X Offset", 0); err != nil {
		return err
	}
	if err = c.setInt("Partial scan", "Y Offset", 0); err != nil {
		return err
	}
	if err = Error(int(C.IC_SetFormat(c.h, C.COLORFORMAT(colorFormats[o.ColorFormat])))); err != nil {
		return errors.Wrap(err, "color format")
	}
	for _, p := range []string{"Exposure", "Gain", "Gamma", "Contrast"} {
		if err = c.manual(p); err != nil {
			return err
		}
	}
	if err = c.SetExposure(s.Exposure); err != nil {
		return err
	}
	if err = c.setInt("Gain", "Value", int(s.Gain)); err != nil {
		return err
	}
	if err = c.setInt("Gamma", "Value", int(s.Gamma)); err != nil {
		return err
	}
	if err = c.setInt("Contrast", "Value", int(s.Contrast)); err != nil {
		return err
	}
	if err = Error(int(C.IC_StartLive(c.h, 0))); err != nil {
		return errors.Wrap(err, "starting live mode")
	}
	c.live = true
	return nil
}

// SetExposure sets the absolute exposure value, in seconds
func (c *Camera) SetExposure(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return c.setAbs("Exposure", d.Seconds())
}

// Grab snaps one image and copies it out of the grabber's buffer
func (c *Camera) Grab(timeout time.Duration) (camera.Raw, error) {
	if !c.live {
		return camera.Raw{}, camera.ErrNotOpen
	}
	if ret := int(C.IC_SnapImage(c.h, C.int(timeout.Milliseconds()))); ret != 1 {
		return camera.Raw{}, errors.Wrapf(camera.ErrGrabTimeout, "after %v, %v", timeout, ICError(ret))
	}
	var (
		w, h C.long
		bits C.int
		cf   C.COLORFORMAT
	)
	if err := Error(int(C.IC_GetImageDescription(c.h, &w, &h, &bits, &cf))); err != nil {
		return camera.Raw{}, errors.Wrap(camera.ErrGrabFailed, err.Error())
	}
	layout, err := layoutForBits(int(bits))
	if err != nil {
		return camera.Raw{}, errors.Wrap(camera.ErrGrabFailed, err.Error())
	}
	ptr := C.IC_GetImagePtr(c.h)
	if ptr == nil {
		return camera.Raw{}, errors.Wrap(camera.ErrGrabFailed, "no image buffer")
	}
	n := int(w) * int(h) * int(bits) / 8
	return camera.Raw{
		Width:  int(w),
		Height: int(h),
		Layout: layout,
		Data:   C.GoBytes(unsafe.Pointer(ptr), C.int(n))}, nil
}

// Close stops live mode and releases the grabber
func (c *Camera) Close() error {
	if c.live {
		C.IC_StopLive(c.h)
		c.live = false
	}
	if c.h != nil {
		C.IC_CloseVideoCaptureDevice(c.h)
		C.IC_ReleaseGrabber(&c.h)
		c.h = nil
	}
	return nil
}
