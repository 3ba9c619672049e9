/*Package scan drives a Fourier ptychography acquisition: the stage visits
each offset of a pattern about an origin and the camera captures one frame at
each stop.

A scan directory holds the system parameters in config.yaml, the frames under
raw/ and the run record in scan.yaml.
*/
package scan

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fpscan/fpscan/imgrec"
	"github.com/fpscan/fpscan/pattern"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RawDir is the subdirectory of a scan directory the frames are written to
const RawDir = "raw"

// Stage is the motion the scan needs
type Stage interface {
	MoveTo(ctx context.Context, names []string, positions []float64) error
	References() map[string]float64
}

// Camera is the capture the scan needs
type Camera interface {
	Capture(path string, meta imgrec.Meta) (imgrec.Frame, error)
	Model() string
}

// Driver runs scans.  Positions are in device units.
type Driver struct {
	Stage  Stage
	Camera Camera

	// Axes are the stage axes the pattern drives, in pattern order
	Axes []string

	// Origin is the absolute position the pattern is offset from.
	// When nil, the stage reference positions of Axes are used.
	Origin []float64

	// OutDir is the scan directory
	OutDir string

	// Ext is the frame file extension
	Ext string

	// SettleMove is waited after each move, before the capture
	SettleMove time.Duration

	// SettleCapture is waited after each capture
	SettleCapture time.Duration

	// Progress, if not nil, is called after each frame with the count done and the total
	Progress func(done, total int)

	Logger *log.Logger
}

// Result summarizes a scan run
type Result struct {
	RunID    string
	Frames   []FrameRecord
	Elapsed  time.Duration
	Manifest string
}

func (d *Driver) logf(format string, args ...interface{}) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func sleep(ctx context.Context, dt time.Duration) error {
	if dt <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dt)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Driver) origin() ([]float64, error) {
	if d.Origin != nil {
		if len(d.Origin) != len(d.Axes) {
			return nil, errors.Errorf("origin has %d values for %d axes", len(d.Origin), len(d.Axes))
		}
		return d.Origin, nil
	}
	refs := d.Stage.References()
	out := make([]float64, len(d.Axes))
	for i, ax := range d.Axes {
		r, ok := refs[ax]
		if !ok {
			return nil, errors.Errorf("axis %s has no reference position", ax)
		}
		out[i] = r
	}
	return out, nil
}

// Run moves to the origin, then for each point of p moves to origin+offset,
// waits SettleMove, captures frame i (1-based) and waits SettleCapture.
// The manifest is written whether or not the run completes.
func (d *Driver) Run(ctx context.Context, p pattern.Pattern) (Result, error) {
	var res Result
	if len(d.Axes) == 0 {
		return res, errors.New("scan has no axes")
	}
	if err := p.Validate(); err != nil {
		return res, err
	}
	if p.Dims() != len(d.Axes) {
		return res, errors.Errorf("pattern has %d axes, scan drives %d", p.Dims(), len(d.Axes))
	}
	org, err := d.origin()
	if err != nil {
		return res, err
	}
	ext := d.Ext
	if ext == "" {
		ext = "tiff"
	}
	raw := filepath.Join(d.OutDir, RawDir)
	if err = os.MkdirAll(raw, 0755); err != nil {
		return res, err
	}

	man := Manifest{
		RunID:   uuid.New().String(),
		Model:   d.Camera.Model(),
		Axes:    d.Axes,
		Origin:  org,
		Started: time.Now(),
		Points:  len(p)}
	res.RunID = man.RunID
	finish := func(runErr error) (Result, error) {
		man.Elapsed = time.Since(man.Started)
		man.Complete = runErr == nil
		if runErr != nil {
			man.Error = runErr.Error()
		}
		res.Frames, res.Elapsed = man.Frames, man.Elapsed
		path, err := man.Write(d.OutDir)
		res.Manifest = path
		if runErr != nil {
			return res, runErr
		}
		return res, err
	}

	d.logf("scan %s: %d points over %v from %v", man.RunID, len(p), d.Axes, org)
	if err = d.Stage.MoveTo(ctx, d.Axes, org); err != nil {
		return finish(errors.Wrap(err, "moving to scan origin"))
	}
	for i, off := range p {
		idx := i + 1
		if err = ctx.Err(); err != nil {
			return finish(err)
		}
		target := make([]float64, len(org))
		for k := range org {
			target[k] = org[k] + off[k]
		}
		if err = d.Stage.MoveTo(ctx, d.Axes, target); err != nil {
			return finish(errors.Wrapf(err, "point %d", idx))
		}
		if err = sleep(ctx, d.SettleMove); err != nil {
			return finish(err)
		}
		name := imgrec.FileName(man.Model, idx, ext)
		path := filepath.Join(raw, name)
		meta := imgrec.Meta{Index: idx, Axes: d.Axes, Position: target}
		if _, err = d.Camera.Capture(path, meta); err != nil {
			return finish(errors.Wrapf(err, "point %d", idx))
		}
		sum, err := Checksum(path)
		if err != nil {
			return finish(err)
		}
		man.Frames = append(man.Frames, FrameRecord{
			Index:  idx,
			File:   filepath.ToSlash(filepath.Join(RawDir, name)),
			Offset: off,
			Target: target,
			CRC32:  sum})
		d.logf("%04d/%d at %v", idx, len(p), target)
		if d.Progress != nil {
			d.Progress(idx, len(p))
		}
		if err = sleep(ctx, d.SettleCapture); err != nil {
			return finish(err)
		}
	}
	res, err = finish(nil)
	d.logf("scan %s finished in %v", man.RunID, res.Elapsed)
	return res, err
}
