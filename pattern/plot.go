package pattern

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plot saves a preview of the scan path to path, the format following its
// extension.  Points after the first two axes are ignored.
func Plot(path string, p Pattern, title string) error {
	if p.Dims() < 2 {
		return fmt.Errorf("plotting needs two axes, pattern has %d", p.Dims())
	}
	xy := make(plotter.XYs, len(p))
	for i, pt := range p {
		xy[i].X, xy[i].Y = pt[0], pt[1]
	}
	line, pts, err := plotter.NewLinePoints(xy)
	if err != nil {
		return err
	}
	pts.Radius = vg.Points(2)
	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "x offset"
	pl.Y.Label.Text = "y offset"
	pl.Add(plotter.NewGrid(), line, pts)
	return pl.Save(6*vg.Inch, 6*vg.Inch, path)
}
