package imgrec

import (
	"fmt"
	"io"

	"github.com/astrogo/fitsio"
)

func fitsCard(name string, value interface{}, comment string) fitsio.Card {
	return fitsio.Card{Name: name, Value: value, Comment: comment}
}

// cards converts capture metadata to FITS header cards
func cards(m Meta) []fitsio.Card {
	var out []fitsio.Card
	if m.Model != "" {
		out = append(out, fitsCard("INSTRUME", m.Model, "camera model"))
	}
	if m.Index > 0 {
		out = append(out, fitsCard("FRAMENUM", m.Index, "1-based index in the scan"))
	}
	if m.Exposure > 0 {
		out = append(out, fitsCard("EXPTIME", m.Exposure.Seconds(), "exposure time, seconds"))
	}
	if !m.Time.IsZero() {
		out = append(out, fitsCard("DATE-OBS", m.Time.UTC().Format("2006-01-02T15:04:05.000"), "capture time, UTC"))
	}
	for i, p := range m.Position {
		comment := "stage position, device units"
		if i < len(m.Axes) {
			comment = fmt.Sprintf("stage position of axis %s, device units", m.Axes[i])
		}
		out = append(out, fitsCard(fmt.Sprintf("STGPOS%d", i+1), p, comment))
	}
	return out
}

// writeFits16 streams a 16-bit fits file to w.  FITS has no unsigned 16-bit
// type, so data is offset by BZERO.
func writeFits16(w io.Writer, metadata []fitsio.Card, f Frame) error {
	metadata = append(metadata, fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(16, []int{f.Width, f.Height})
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}
	ints := make([]int16, len(f.Pix))
	for idx, v := range f.Pix {
		ints[idx] = int16(int32(v) - 32768)
	}
	err = im.Write(ints)
	if err != nil {
		return err
	}
	return fits.Write(im)
}

// writeFits64 streams a float64 fits file to w
func writeFits64(w io.Writer, metadata []fitsio.Card, a *Averaged) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(-64, []int{a.Width, a.Height})
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}
	err = im.Write(a.Pix)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
