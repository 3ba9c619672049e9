package main

import (
	"context"
	"fmt"
	"log"

	"github.com/fpscan/fpscan/camera"
	"github.com/fpscan/fpscan/motion"
	"github.com/fpscan/fpscan/pattern"
	"github.com/fpscan/fpscan/thorlabs"
	"github.com/pkg/errors"

	// backends register themselves with the camera package
	_ "github.com/fpscan/fpscan/basler"
	_ "github.com/fpscan/fpscan/tis"
	_ "github.com/fpscan/fpscan/uvc"
)

// kinesisBus finds Kinesis controllers on the USB bus
type kinesisBus struct {
	cfg StageConfig
}

func (b kinesisBus) scale(serial string) (thorlabs.Scale, error) {
	part := b.cfg.Part
	if p, ok := b.cfg.Parts[serial]; ok {
		part = p
	}
	return thorlabs.LookupStage(part)
}

func (b kinesisBus) List() ([]motion.DeviceInfo, error) {
	devs, err := thorlabs.ListDevices()
	if err != nil {
		return nil, err
	}
	out := make([]motion.DeviceInfo, len(devs))
	for i, d := range devs {
		out[i] = motion.DeviceInfo{Serial: d.Serial, Port: d.Port, Model: d.Model}
	}
	return out, nil
}

func (b kinesisBus) Connect(info motion.DeviceInfo) (motion.Device, error) {
	sc, err := b.scale(info.Serial)
	if err != nil {
		return nil, err
	}
	m := thorlabs.NewMotor(info.Port, info.Serial, true, sc)
	if err = m.Open(); err != nil {
		return nil, err
	}
	return m, nil
}

// mockBus simulates KDC101 controllers, starting at the middle of a 50 mm travel
type mockBus struct {
	kinesisBus
	n int
}

func (b mockBus) List() ([]motion.DeviceInfo, error) {
	out := make([]motion.DeviceInfo, b.n)
	for i := range out {
		sn := fmt.Sprintf("2700000%d", i+1)
		out[i] = motion.DeviceInfo{Serial: sn, Port: "mock", Model: thorlabs.ModelFromSerial(sn)}
	}
	return out, nil
}

func (b mockBus) Connect(info motion.DeviceInfo) (motion.Device, error) {
	sc, err := b.scale(info.Serial)
	if err != nil {
		return nil, err
	}
	m := thorlabs.NewMockMotor(info.Serial, sc, 25*sc.Position)
	return m, m.Open()
}

func bus(c Config) motion.Bus {
	kb := kinesisBus{cfg: c.Stage}
	if c.Mock {
		n := c.Stage.Expected
		if n <= 0 {
			n = 2
		}
		return mockBus{kinesisBus: kb, n: n}
	}
	return kb
}

func openStage(ctx context.Context, c Config) (*motion.Stage, error) {
	s := motion.NewStage(bus(c), c.Stage.Motion, log.Default())
	if err := s.Open(ctx, c.Stage.Expected); err != nil {
		s.Close(ctx)
		return nil, err
	}
	return s, nil
}

// identifier is a stage device that reports its hardware information
type identifier interface {
	Identify() (thorlabs.Info, error)
}

// stageInfo describes each axis of s, one line per axis, with the hardware
// information of controllers that report it
func stageInfo(s *motion.Stage) ([]string, error) {
	var out []string
	for _, n := range s.Names() {
		ax, err := s.Axis(n)
		if err != nil {
			return out, err
		}
		line := fmt.Sprintf("%s\t%s on %s, reference %.0f", n, ax.Serial, ax.Port, ax.Reference)
		if id, ok := ax.Device.(identifier); ok {
			hw, err := id.Identify()
			if err != nil {
				return out, errors.Wrapf(err, "identifying %s", n)
			}
			line += fmt.Sprintf("\t%s (type %d) firmware %s", hw.Model, hw.Type, hw.Firmware)
		}
		out = append(out, line)
	}
	return out, nil
}

// release closes the devices of s where they stand, without returning them to their references
func release(s *motion.Stage) {
	for _, n := range s.Names() {
		if ax, err := s.Axis(n); err == nil {
			ax.Device.Close()
		}
	}
}

func openCamera(c Config) (*camera.Controller, error) {
	ctl := camera.NewController(log.Default())
	if c.Camera.GrabTimeout > 0 {
		ctl.GrabTimeout = c.Camera.GrabTimeout
	}
	if c.Mock {
		m, err := camera.LookupModel(c.Camera.Model)
		if err != nil {
			return nil, err
		}
		ctl.Backends = map[camera.Kind]camera.Factory{m.Kind: camera.MockFactory(camera.NewMockBackend())}
	}
	if err := ctl.Open(c.Camera.Model, c.Camera.Settings); err != nil {
		return nil, err
	}
	return ctl, nil
}

// buildPattern loads or generates the scan pattern, scaled and jittered
func buildPattern(sc ScanConfig) (pattern.Pattern, error) {
	if sc.PatternFile != "" {
		p, err := pattern.Load(sc.PatternFile)
		if err != nil {
			return nil, err
		}
		return sc.Jitter.Apply(p), nil
	}
	p, err := pattern.Generate(sc.Pattern, sc.NX, sc.NY)
	if err != nil {
		return nil, errors.Wrap(err, "generating scan pattern")
	}
	if sc.Step != 0 {
		p = pattern.Scale(p, sc.Step)
	}
	return sc.Jitter.Apply(p), nil
}
