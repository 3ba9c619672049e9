package camera

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fpscan/fpscan/imgrec"
)

// Layout is the pixel layout of a raw buffer
type Layout int

const (
	// Mono8 is one byte per pixel
	Mono8 Layout = iota

	// Mono16LE is two bytes per pixel, little endian
	Mono16LE

	// Mono16BE is two bytes per pixel, big endian
	Mono16BE

	// BGR8 is three bytes per pixel in blue, green, red order
	BGR8

	// BGRA8 is four bytes per pixel in blue, green, red, alpha order
	BGRA8

	// RGB64 is four 16-bit little endian channels per pixel in blue, green, red, alpha order
	RGB64
)

var layoutNames = []string{"Mono8", "Mono16LE", "Mono16BE", "BGR8", "BGRA8", "RGB64"}

func (l Layout) String() string {
	if l < 0 || int(l) >= len(layoutNames) {
		return fmt.Sprintf("Layout(%d)", int(l))
	}
	return layoutNames[l]
}

// BytesPerPixel is the size of one pixel in the layout
func (l Layout) BytesPerPixel() int {
	switch l {
	case Mono8:
		return 1
	case Mono16LE, Mono16BE:
		return 2
	case BGR8:
		return 3
	case BGRA8:
		return 4
	case RGB64:
		return 8
	}
	return 0
}

// luma weights used by OpenCV's BGR2GRAY
const (
	wR = 0.299
	wG = 0.587
	wB = 0.114
)

func gray(b, g, r float64) float64 {
	return wR*r + wG*g + wB*b
}

func clamp16(x float64) uint16 {
	x = math.Round(x)
	if x < 0 {
		return 0
	}
	if x > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(x)
}

// Decode converts a raw buffer to a single channel 16-bit frame.
// Color layouts are reduced to luma.  8-bit samples are multiplied by the
// model's Mono8Scale, or 256 when it is unset.
func Decode(raw Raw, m Model) (imgrec.Frame, error) {
	bpp := raw.Layout.BytesPerPixel()
	if bpp == 0 {
		return imgrec.Frame{}, fmt.Errorf("unknown pixel layout %v", raw.Layout)
	}
	if raw.Width <= 0 || raw.Height <= 0 {
		return imgrec.Frame{}, fmt.Errorf("invalid frame size %dx%d", raw.Width, raw.Height)
	}
	npix := raw.Width * raw.Height
	if len(raw.Data) < npix*bpp {
		return imgrec.Frame{}, fmt.Errorf("%v buffer of %d bytes is short for %dx%d", raw.Layout, len(raw.Data), raw.Width, raw.Height)
	}
	scale := m.Mono8Scale
	if scale == 0 {
		scale = 256
	}
	f := imgrec.NewFrame(raw.Width, raw.Height)
	d := raw.Data
	switch raw.Layout {
	case Mono8:
		for i := range f.Pix {
			f.Pix[i] = clamp16(float64(d[i]) * float64(scale))
		}
	case Mono16LE:
		for i := range f.Pix {
			f.Pix[i] = binary.LittleEndian.Uint16(d[2*i:])
		}
	case Mono16BE:
		for i := range f.Pix {
			f.Pix[i] = binary.BigEndian.Uint16(d[2*i:])
		}
	case BGR8, BGRA8:
		for i := range f.Pix {
			px := d[i*bpp:]
			f.Pix[i] = clamp16(gray(float64(px[0]), float64(px[1]), float64(px[2])) * float64(scale))
		}
	case RGB64:
		for i := range f.Pix {
			px := d[i*8:]
			b := float64(binary.LittleEndian.Uint16(px[0:]))
			g := float64(binary.LittleEndian.Uint16(px[2:]))
			r := float64(binary.LittleEndian.Uint16(px[4:]))
			f.Pix[i] = clamp16(gray(b, g, r))
		}
	}
	if m.FlipV {
		FlipV(f.Pix, f.Width, f.Height)
	}
	return f, nil
}
