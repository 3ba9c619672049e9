/*Package pattern generates the ordered lists of offsets a scan visits.

Generators work on an nx by ny grid centred on zero with unit spacing, so
offsets are in grid steps until Scale converts them to device units.  Each
point holds one value per axis, x first.
*/
package pattern

import (
	"fmt"
	"io/ioutil"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
	yaml "gopkg.in/yaml.v2"
)

// Pattern is an ordered list of offsets from the scan origin
type Pattern [][]float64

// Clone returns a deep copy of p
func (p Pattern) Clone() Pattern {
	out := make(Pattern, len(p))
	for i, pt := range p {
		out[i] = append([]float64(nil), pt...)
	}
	return out
}

// Dims is the number of axes per point, zero for an empty pattern
func (p Pattern) Dims() int {
	if len(p) == 0 {
		return 0
	}
	return len(p[0])
}

// Validate checks that every point has the same number of axes
func (p Pattern) Validate() error {
	d := p.Dims()
	for i, pt := range p {
		if len(pt) != d {
			return fmt.Errorf("point %d has %d axes, point 0 has %d", i, len(pt), d)
		}
	}
	return nil
}

func centre(n int) float64 {
	return float64(n-1) / 2
}

func checkGrid(nx, ny int) error {
	if nx < 1 || ny < 1 {
		return fmt.Errorf("grid must be at least 1x1, got %dx%d", nx, ny)
	}
	return nil
}

// Raster visits the grid row by row, each row from low to high x
func Raster(nx, ny int) (Pattern, error) {
	if err := checkGrid(nx, ny); err != nil {
		return nil, err
	}
	cx, cy := centre(nx), centre(ny)
	out := make(Pattern, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			out = append(out, []float64{float64(i) - cx, float64(j) - cy})
		}
	}
	return out, nil
}

// Zigzag visits the grid row by row, alternating direction so that
// consecutive points are always neighbours
func Zigzag(nx, ny int) (Pattern, error) {
	if err := checkGrid(nx, ny); err != nil {
		return nil, err
	}
	cx, cy := centre(nx), centre(ny)
	out := make(Pattern, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for k := 0; k < nx; k++ {
			i := k
			if j%2 == 1 {
				i = nx - 1 - k
			}
			out = append(out, []float64{float64(i) - cx, float64(j) - cy})
		}
	}
	return out, nil
}

// Spiral visits the grid in a square spiral starting from the cell nearest
// the centre.  Turns that leave a non square grid are walked without
// emitting points.
func Spiral(nx, ny int) (Pattern, error) {
	if err := checkGrid(nx, ny); err != nil {
		return nil, err
	}
	cx, cy := centre(nx), centre(ny)
	total := nx * ny
	out := make(Pattern, 0, total)
	i, j := (nx-1)/2, (ny-1)/2
	emit := func() {
		if i >= 0 && i < nx && j >= 0 && j < ny {
			out = append(out, []float64{float64(i) - cx, float64(j) - cy})
		}
	}
	emit()
	// right, up, left, down with legs of 1, 1, 2, 2, 3, 3...
	dirs := [4][2]int{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}
	for leg := 0; len(out) < total; leg++ {
		d := dirs[leg%4]
		n := leg/2 + 1
		for k := 0; k < n && len(out) < total; k++ {
			i += d[0]
			j += d[1]
			emit()
		}
	}
	return out, nil
}

// Generate dispatches to a generator by name: raster (or line), zigzag or spiral
func Generate(kind string, nx, ny int) (Pattern, error) {
	switch kind {
	case "raster", "line":
		return Raster(nx, ny)
	case "zigzag":
		return Zigzag(nx, ny)
	case "spiral":
		return Spiral(nx, ny)
	}
	return nil, fmt.Errorf("unknown pattern %q, use raster, zigzag or spiral", kind)
}

// Scale multiplies every offset by step, returning a new pattern
func Scale(p Pattern, step float64) Pattern {
	out := p.Clone()
	for _, pt := range out {
		for k := range pt {
			pt[k] *= step
		}
	}
	return out
}

// Jitter configures random perturbation of a pattern
type Jitter struct {
	// Amplitude is the half width of a uniform perturbation, or the
	// standard deviation when Gaussian is set, in the pattern's units
	Amplitude float64 `yaml:"Amplitude" koanf:"Amplitude"`

	Gaussian bool `yaml:"Gaussian" koanf:"Gaussian"`

	// Seed makes the perturbation reproducible
	Seed uint64 `yaml:"Seed" koanf:"Seed"`
}

// Apply returns a perturbed copy of p.  The first point is left in place so
// the scan starts exactly on the origin offset.
func (j Jitter) Apply(p Pattern) Pattern {
	out := p.Clone()
	if j.Amplitude == 0 || len(out) < 2 {
		return out
	}
	src := rand.NewPCG(j.Seed, j.Seed^0x9e3779b97f4a7c15)
	var dist interface{ Rand() float64 }
	if j.Gaussian {
		dist = distuv.Normal{Mu: 0, Sigma: j.Amplitude, Src: src}
	} else {
		dist = distuv.Uniform{Min: -j.Amplitude, Max: j.Amplitude, Src: src}
	}
	for _, pt := range out[1:] {
		for k := range pt {
			pt[k] += dist.Rand()
		}
	}
	return out
}

type file struct {
	Points Pattern `yaml:"Points"`
}

// Load reads a pattern from a YAML file with a Points list,
//
//	Points:
//	- [0, 0]
//	- [1, 0]
func Load(path string) (Pattern, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f file
	if err = yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrapf(err, "parsing pattern %s", path)
	}
	if len(f.Points) == 0 {
		return nil, fmt.Errorf("pattern %s has no points", path)
	}
	return f.Points, f.Points.Validate()
}

// Save writes a pattern in the format read by Load
func Save(path string, p Pattern) error {
	b, err := yaml.Marshal(file{Points: p})
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, b, 0644)
}
