/*Package basler connects Basler cameras to the camera controller through
the pylon C API.

The cgo implementation is built with the pylon build tag and expects the SDK
in /opt/pylon.  Without the tag, opening a Basler camera fails with
ErrNotBuilt.  Importing the package registers the backend.
*/
package basler

import (
	"strings"

	"github.com/fpscan/fpscan/camera"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// ErrNotBuilt is generated when the binary was built without pylon support
var ErrNotBuilt = errors.New("built without pylon support, rebuild with -tags pylon")

// ErrNoDevices is generated when pylon enumerates no cameras
var ErrNoDevices = errors.New("no Basler cameras found")

func init() {
	camera.Register(camera.Pylon, New)
}

// Options are the Basler specific settings, decoded from camera.Settings.Args
type Options struct {
	// DeviceIndex selects among enumerated cameras
	DeviceIndex int `mapstructure:"DeviceIndex"`

	// OffsetX, OffsetY, Width and Height set the AOI; zero size is the full sensor
	OffsetX int `mapstructure:"OffsetX"`
	OffsetY int `mapstructure:"OffsetY"`
	Width   int `mapstructure:"Width"`
	Height  int `mapstructure:"Height"`

	// ContrastMode is written to BslContrastMode when the camera has it
	ContrastMode string `mapstructure:"ContrastMode"`
}

// decodeOptions reads Options from settings arguments
func decodeOptions(args map[string]interface{}) (Options, error) {
	o := Options{ContrastMode: "Linear"}
	if args == nil {
		return o, nil
	}
	err := mapstructure.WeakDecode(args, &o)
	return o, errors.Wrap(err, "decoding Basler options")
}

// layoutFor maps a pylon PixelFormat to the layout of its buffers.
// Packed formats are not supported.
func layoutFor(pixelFormat string) (camera.Layout, error) {
	pf := strings.ToLower(pixelFormat)
	switch {
	case pf == "" || pf == "mono12" || pf == "mono10" || pf == "mono16":
		return camera.Mono16LE, nil
	case pf == "mono8":
		return camera.Mono8, nil
	case pf == "bgr8":
		return camera.BGR8, nil
	case strings.Contains(pf, "packed") || strings.HasSuffix(pf, "p"):
		return 0, errors.Errorf("packed pixel format %s is not supported", pixelFormat)
	}
	return 0, errors.Errorf("pixel format %s is not supported", pixelFormat)
}
