/*Package tis connects The Imaging Source cameras to the camera controller
through the tisgrabber library of IC Imaging Control.

tisgrabber only exists for Windows; the cgo implementation is built on
windows with the tis build tag.  Elsewhere, opening an Imaging Source camera
fails with ErrNotBuilt.  Importing the package registers the backend.
*/
package tis

import (
	"fmt"

	"github.com/fpscan/fpscan/camera"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// ErrNotBuilt is generated when the binary was built without tisgrabber support
var ErrNotBuilt = errors.New("built without tisgrabber support, rebuild on windows with -tags tis")

func init() {
	camera.Register(camera.TIS, New)
}

// ICError is a tisgrabber return code other than IC_SUCCESS
type ICError int

var icCodes = map[ICError]string{
	0:  "IC_ERROR",
	-1: "IC_NO_HANDLE",
	-2: "IC_NO_DEVICE",
	-3: "IC_NOT_AVAILABLE",
}

func (e ICError) Error() string {
	if s, ok := icCodes[e]; ok {
		return fmt.Sprintf("%d - %s", int(e), s)
	}
	return fmt.Sprintf("%d - UNKNOWN_ERROR_CODE", int(e))
}

// Error returns nil on IC_SUCCESS (1) or an ICError
func Error(code int) error {
	if code == 1 {
		return nil
	}
	return ICError(code)
}

// colorFormats are the tisgrabber COLORFORMAT values of the sink
var colorFormats = map[string]int{
	"Y800":  0,
	"RGB24": 1,
	"RGB32": 2,
	"UYVY":  3,
	"Y16":   4,
}

// Options are the Imaging Source specific settings, decoded from camera.Settings.Args
type Options struct {
	// VideoFormat overrides the format of the model table
	VideoFormat string `mapstructure:"VideoFormat"`

	// ColorFormat is the sink format, one of Y800, RGB24, RGB32 or Y16
	ColorFormat string `mapstructure:"ColorFormat"`
}

func decodeOptions(m camera.Model, args map[string]interface{}) (Options, error) {
	o := Options{VideoFormat: m.VideoFormat, ColorFormat: "RGB24"}
	if args != nil {
		if err := mapstructure.WeakDecode(args, &o); err != nil {
			return o, errors.Wrap(err, "decoding Imaging Source options")
		}
	}
	if _, ok := colorFormats[o.ColorFormat]; !ok {
		return o, fmt.Errorf("unknown color format %q", o.ColorFormat)
	}
	return o, nil
}

// layoutForBits maps the bit depth of a snapped image to its layout
func layoutForBits(bits int) (camera.Layout, error) {
	switch bits {
	case 8:
		return camera.Mono8, nil
	case 16:
		return camera.Mono16LE, nil
	case 24:
		return camera.BGR8, nil
	case 32:
		return camera.BGRA8, nil
	case 64:
		return camera.RGB64, nil
	}
	return 0, fmt.Errorf("unsupported image depth of %d bits", bits)
}
