//go:build pylon

package basler

/*
#include <stdlib.h>
#include <pylonc/PylonC.h>
*/
import "C"
import (
	"log"
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
		initErr = Error(C.PylonInitialize())
	})
	return initErr
}

// Camera is a Basler camera
type Camera struct {
	model   camera.Model
	hDev    C.PYLON_DEVICE_HANDLE
	open    bool
	layout  camera.Layout
	payload int
}

// New returns a camera for a model.  The device is not touched until Open.
func New(m camera.Model) (camera.Backend, error) {
	return &Camera{model: m, layout: m.Layout}, nil
}

// Open connects to the first enumerated camera
func (c *Camera) Open() error {
	if err := initialize(); err != nil {
		return err
	}
	var n C.size_t
	if err := Error(C.PylonEnumerateDevices(&n)); err != nil {
		return err
	}
	if n == 0 {
		return ErrNoDevices
	}
	if err := Error(C.PylonCreateDeviceByIndex(0, &c.hDev)); err != nil {
		return err
	}
	err := Error(C.PylonDeviceOpen(c.hDev, C.PYLONC_ACCESS_MODE_CONTROL|C.PYLONC_ACCESS_MODE_STREAM))
	if err != nil {
		C.PylonDestroyDevice(c.hDev)
		return err
	}
	c.open = true
	return nil
}

func (c *Camera) writable(name string) bool {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	return bool(C.PylonDeviceFeatureIsWritable(c.hDev, cs))
}

func (c *Camera) setFloat(name string, v float64) error {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	return errors.Wrap(Error(C.PylonDeviceSetFloatFeature(c.hDev, cs, C.double(v))), name)
}

func (c *Camera) setInt(name string, v int64) error {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	return errors.Wrap(Error(C.PylonDeviceSetIntegerFeature(c.hDev, cs, C.int64_t(v))), name)
}

func (c *Camera) getInt(name string) (int64, error) {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	var v C.int64_t
	err := Error(C.PylonDeviceGetIntegerFeature(c.hDev, cs, &v))
	return int64(v), errors.Wrap(err, name)
}

func (c *Camera) maxInt(name string) (int64, error) {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	var v C.int64_t
	err := Error(C.PylonDeviceGetIntegerFeatureMax(c.hDev, cs, &v))
	return int64(v), errors.Wrap(err, name)
}

func (c *Camera) setString(name, v string) error {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	cv := C.CString(v)
	defer C.free(unsafe.Pointer(cv))
	return errors.Wrap(Error(C.PylonDeviceFeatureFromString(c.hDev, cs, cv)), name)
}

func (c *Camera) setBool(name string, v bool) error {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	return errors.Wrap(Error(C.PylonDeviceSetBooleanFeature(c.hDev, cs, C._Bool(v))), name)
}

// aoi sets the offsets and size, zero size meaning the largest.
// Offsets are cleared first so that any size is valid.
func (c *Camera) aoi(o Options) error {
	if err := c.setInt("OffsetX", 0); err != nil {
		return err
	}
	if err := c.setInt("OffsetY", 0); err != nil {
		return err
	}
	w, h := int64(o.Width), int64(o.Height)
	var err error
	if w == 0 {
		if w, err = c.maxInt("Width"); err != nil {
			return err
		}
	}
	if h == 0 {
		if h, err = c.maxInt("Height"); err != nil {
			return err
		}
	}
	if err = c.setInt("Width", w); err != nil {
		return err
	}
	if err = c.setInt("Height", h); err != nil {
		return err
	}
	if err = c.setInt("OffsetX", int64(o.OffsetX)); err != nil {
		return err
	}
	return c.setInt("OffsetY", int64(o.OffsetY))
}

// Configure applies the settings.  Brightness and contrast are only written
// on cameras with the Bsl features.
func (c *Camera) Configure(s camera.Settings) error {
	if !c.open {
		return camera.ErrNotOpen
	}
	o, err := decodeOptions(s.Args)
	if err != nil {
		return err
	}
	if s.PixelFormat != "" {
		if c.layout, err = layoutFor(s.PixelFormat); err != nil {
			return err
		}
		if err = c.setString("PixelFormat", s.PixelFormat); err != nil {
			return err
		}
	}
	if err = c.aoi(o); err != nil {
		return err
	}
	if s.FrameRate > 0 {
		if c.writable("AcquisitionFrameRateEnable") {
			if err = c.setBool("AcquisitionFrameRateEnable", true); err != nil {
				return err
			}
		}
		if err = c.setFloat("AcquisitionFrameRate", s.FrameRate); err != nil {
			return err
		}
	}
	if c.writable("BslContrastMode") && o.ContrastMode != "" {
		if err = c.setString("BslContrastMode", o.ContrastMode); err != nil {
			return err
		}
	}
	if c.writable("BslBrightness") {
		if err = c.setFloat("BslBrightness", s.Brightness); err != nil {
			return err
		}
	}
	if c.writable("BslContrast") {
		if err = c.setFloat("BslContrast", s.Contrast); err != nil {
			return err
		}
	}
	if c.writable("Gain") {
		if err = c.setFloat("Gain", s.Gain); err != nil {
			return err
		}
	} else {
		log.Printf("%s has no writable Gain, leaving it", c.model.Name)
	}
	if s.Exposure > 0 {
		if err = c.SetExposure(s.Exposure); err != nil {
			return err
		}
	}
	size, err := c.getInt("PayloadSize")
	if err != nil {
		return err
	}
	c.payload = int(size)
	return nil
}

// SetExposure sets ExposureTime, which pylon takes in microseconds
func (c *Camera) SetExposure(d time.Duration) error {
	if !c.open {
		return camera.ErrNotOpen
	}
	return c.setFloat("ExposureTime", float64(d)/float64(time.Microsecond))
}

// Grab acquires a single frame
func (c *Camera) Grab(timeout time.Duration) (camera.Raw, error) {
	if !c.open {
		return camera.Raw{}, camera.ErrNotOpen
	}
	if c.payload == 0 {
		size, err := c.getInt("PayloadSize")
		if err != nil {
			return camera.Raw{}, err
		}
		c.payload = int(size)
	}
	buf := make([]byte, c.payload)
	var (
		res   C.PylonGrabResult_t
		ready C._Bool
	)
	ret := C.PylonDeviceGrabSingleFrame(c.hDev, 0, unsafe.Pointer(&buf[0]), C.size_t(len(buf)),
		&res, &ready, C.uint32_t(timeout.Milliseconds()))
	if err := Error(ret); err != nil {
		return camera.Raw{}, errors.Wrap(camera.ErrGrabFailed, err.Error())
	}
	if !bool(ready) {
		return camera.Raw{}, errors.Wrapf(camera.ErrGrabTimeout, "after %v", timeout)
	}
	if res.Status != C.Grabbed {
		return camera.Raw{}, errors.Wrapf(camera.ErrGrabFailed, "grab status %d, error code %#x", int(res.Status), uint32(res.ErrorCode))
	}
	return camera.Raw{Width: int(res.SizeX), Height: int(res.SizeY), Layout: c.layout, Data: buf}, nil
}

// Close releases the camera
func (c *Camera) Close() error {
	if !c.open {
		return nil
	}
	c.open = false
	err := Error(C.PylonDeviceClose(c.hDev))
	C.PylonDestroyDevice(c.hDev)
	return err
}
