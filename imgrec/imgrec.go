// Package imgrec holds captured frames and writes them to disk.
//
// The codec is chosen by file extension: .tif/.tiff, .png, .fits or .npy.
package imgrec

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fpscan/fpscan/util"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownFormat is generated when a path has an extension with no codec
var ErrUnknownFormat = errors.New("unknown image format, use .tif, .tiff, .png, .fits or .npy")

// Meta describes the conditions of a capture
type Meta struct {
	// Index is the 1-based position of the frame in its scan, zero outside of a scan
	Index int

	// Axes and Position are the nominal stage position at capture time, in device units
	Axes     []string
	Position []float64

	Model    string
	Exposure time.Duration
	Time     time.Time
}

// Frame is a single channel 16-bit image, row major
type Frame struct {
	Width  int
	Height int
	Pix    []uint16
	Meta   Meta
}

// NewFrame allocates a zeroed frame
func NewFrame(width, height int) Frame {
	return Frame{Width: width, Height: height, Pix: make([]uint16, width*height)}
}

// Image returns the frame as an image.Gray16
func (f Frame) Image() *image.Gray16 {
	im := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	for i, v := range f.Pix {
		binary.BigEndian.PutUint16(im.Pix[2*i:], v)
	}
	return im
}

// Floats returns the pixels of the frame as float64
func (f Frame) Floats() []float64 {
	out := make([]float64, len(f.Pix))
	for i, v := range f.Pix {
		out[i] = float64(v)
	}
	return out
}

// Averaged is the per-pixel mean of several frames
type Averaged struct {
	Width  int
	Height int
	Pix    []float64

	// Count is the number of frames in the mean
	Count int
	Meta  Meta
}

// Frame rounds the mean to a 16-bit frame
func (a *Averaged) Frame() Frame {
	f := NewFrame(a.Width, a.Height)
	for i, v := range a.Pix {
		f.Pix[i] = uint16(util.Clamp(math.Round(v), 0, math.MaxUint16))
	}
	f.Meta = a.Meta
	return f
}

// FileName returns the name of the index'th frame of a scan with a camera model,
// e.g. ("Basler daA1920-160um", 7, "tiff") => Basler_daA1920-160um_0007.tiff
func FileName(model string, index int, ext string) string {
	return fmt.Sprintf("%s_%04d.%s", util.SanitizeName(model), index, strings.TrimPrefix(ext, "."))
}

func format(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Supported returns true if there is a codec for the extension of path
func Supported(path string) bool {
	switch format(path) {
	case "tif", "tiff", "png", "fits", "npy":
		return true
	}
	return false
}

// Encode writes f to w in a format ("tiff", "png", "fits" or "npy")
func Encode(w io.Writer, f Frame, kind string) error {
	switch kind {
	case "tif", "tiff":
		return tiff.Encode(w, f.Image(), &tiff.Options{Compression: tiff.Uncompressed})
	case "png":
		return png.Encode(w, f.Image())
	case "fits":
		return writeFits16(w, cards(f.Meta), f)
	case "npy":
		return npyio.Write(w, mat.NewDense(f.Height, f.Width, f.Floats()))
	}
	return ErrUnknownFormat
}

// Save writes f to path, creating or truncating it
func Save(path string, f Frame) error {
	if !Supported(path) {
		return errors.Wrap(ErrUnknownFormat, path)
	}
	return create(path, func(w io.Writer) error {
		return Encode(w, f, format(path))
	})
}

// EncodeAveraged writes a mean image to w.  npy and fits keep full
// precision, other formats are rounded to 16 bits.
func EncodeAveraged(w io.Writer, a *Averaged, kind string) error {
	switch kind {
	case "npy":
		return npyio.Write(w, mat.NewDense(a.Height, a.Width, a.Pix))
	case "fits":
		md := append(cards(a.Meta), fitsCard("NFRAMES", a.Count, "frames in the mean"))
		return writeFits64(w, md, a)
	}
	return Encode(w, a.Frame(), kind)
}

// SaveAveraged writes a mean image to path, see EncodeAveraged
func SaveAveraged(path string, a *Averaged) error {
	if !Supported(path) {
		return errors.Wrap(ErrUnknownFormat, path)
	}
	return create(path, func(w io.Writer) error {
		return EncodeAveraged(w, a, format(path))
	})
}

func create(path string, enc func(io.Writer) error) error {
	fid, err := os.Create(path)
	if err != nil {
		return err
	}
	err = enc(fid)
	cerr := fid.Close()
	if err != nil {
		return errors.Wrapf(err, "encoding %s", path)
	}
	return cerr
}
