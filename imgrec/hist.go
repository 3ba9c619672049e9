package imgrec

import (
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotHistogram saves a normalized pixel value histogram of f to path.
// The image format follows the extension of path (png, svg, pdf...).
func PlotHistogram(path string, f Frame, bins int) error {
	vals := make(plotter.Values, len(f.Pix))
	for i, v := range f.Pix {
		vals[i] = float64(v)
	}
	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return err
	}
	h.Normalize(1)
	p := plot.New()
	p.Title.Text = "Histogram of the camera image"
	p.X.Label.Text = "pixel value"
	p.Y.Label.Text = "fraction of pixels"
	p.X.Min, p.X.Max = 0, math.MaxUint16
	p.Add(h)
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
