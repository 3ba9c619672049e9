/*Package uvc reads USB video class cameras through OpenCV's VideoCapture.

The gocv implementation is built with the opencv build tag; without it,
opening an OpenCV camera fails with ErrNotBuilt.  ListCameras scans the USB
bus with libusb and works either way.  Importing the package registers the
backend.
*/
package uvc

import (
	"fmt"
	"math"
	"time"

	"github.com/fpscan/fpscan/camera"
	"github.com/google/gousb"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// ErrNotBuilt is generated when the binary was built without OpenCV support
var ErrNotBuilt = errors.New("built without OpenCV support, rebuild with -tags opencv")

func init() {
	camera.Register(camera.OpenCV, New)
}

// ExposureMode says how a driver interprets the exposure property
type ExposureMode string

const (
	// Log2 is the DirectShow convention, exposure = 2^value seconds
	Log2 ExposureMode = "log2"

	// Absolute is the V4L2 exposure_absolute convention, in units of 100 µs
	Absolute ExposureMode = "absolute"
)

// Options are the UVC specific settings, decoded from camera.Settings.Args
type Options struct {
	// Index is the OpenCV device index
	Index int `mapstructure:"Index"`

	// ExposureMode defaults to Log2
	ExposureMode ExposureMode `mapstructure:"ExposureMode"`

	// Fourcc overrides the raw stream code, "Y16 " for raw models
	Fourcc string `mapstructure:"Fourcc"`
}

func decodeOptions(args map[string]interface{}) (Options, error) {
	o := Options{ExposureMode: Log2}
	if args != nil {
		if err := mapstructure.WeakDecode(args, &o); err != nil {
			return o, errors.Wrap(err, "decoding UVC options")
		}
	}
	switch o.ExposureMode {
	case Log2, Absolute:
	default:
		return o, fmt.Errorf("unknown exposure mode %q", o.ExposureMode)
	}
	if o.Fourcc != "" && len(o.Fourcc) != 4 {
		return o, fmt.Errorf("fourcc %q is not four characters", o.Fourcc)
	}
	return o, nil
}

// exposureValue converts an exposure time to the driver's property value
func exposureValue(d time.Duration, mode ExposureMode) float64 {
	if mode == Absolute {
		return math.Round(float64(d) / float64(100*time.Microsecond))
	}
	return math.Round(math.Log2(d.Seconds()))
}

// raw is true for models whose stream is fetched undecoded
func raw(m camera.Model) bool {
	return m.Layout != camera.BGR8 && m.Layout != camera.BGRA8
}

// toRaw wraps the bytes of a captured matrix.  Undecoded streams arrive as
// one row of bytes, so the model's size is used when it has one.
func toRaw(b []byte, cols, rows int, m camera.Model) camera.Raw {
	w, h := cols, rows
	if raw(m) && m.Width > 0 && m.Height > 0 {
		w, h = m.Width, m.Height
	}
	return camera.Raw{Width: w, Height: h, Layout: m.Layout, Data: b}
}

// USBCamera is a video class device found on the USB bus
type USBCamera struct {
	Bus     int
	Address int
	Vendor  string
	Product string
	Name    string
	Serial  string
}

func (c USBCamera) String() string {
	return fmt.Sprintf("%s (%s:%s) bus %d address %d", c.Name, c.Vendor, c.Product, c.Bus, c.Address)
}

func isVideo(desc *gousb.DeviceDesc) bool {
	if desc.Class == gousb.ClassVideo {
		return true
	}
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class == gousb.ClassVideo {
					return true
				}
			}
		}
	}
	return false
}

// ListCameras returns the USB video class devices attached to the computer.
// Devices that cannot be opened to read their strings are still listed.
func ListCameras() ([]USBCamera, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()
	devs, err := ctx.OpenDevices(isVideo)
	defer func() {
		for _, d := range devs {
			d.Close()
		}
	}()
	if err != nil && len(devs) == 0 {
		return nil, errors.Wrap(err, "scanning USB bus")
	}
	out := make([]USBCamera, 0, len(devs))
	for _, d := range devs {
		c := USBCamera{
			Bus:     d.Desc.Bus,
			Address: d.Desc.Address,
			Vendor:  d.Desc.Vendor.String(),
			Product: d.Desc.Product.String()}
		c.Name, _ = d.Product()
		c.Serial, _ = d.SerialNumber()
		out = append(out, c)
	}
	return out, nil
}
