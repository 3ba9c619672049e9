// Package motion contains a registry of named single-axis motion devices
// and the operations that work across them.
package motion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fpscan/fpscan/util"
	"github.com/pkg/errors"
)

// ErrOutOfLimits is generated when a commanded position violates an axis' software limits
var ErrOutOfLimits = errors.New("requested position violates software limits, aborted")

// DeviceCountMismatch is generated by Open when fewer devices are attached than expected
type DeviceCountMismatch struct {
	Expected int
	Found    int
}

func (e DeviceCountMismatch) Error() string {
	return fmt.Sprintf("expected %d motion devices, found %d", e.Expected, e.Found)
}

// AxisNotFound is generated when an axis name is not registered
type AxisNotFound struct {
	Name string
}

func (e AxisNotFound) Error() string {
	return fmt.Sprintf("axis %q not found", e.Name)
}

// Device is a single axis motion controller.  Positions are in device units.
type Device interface {
	// Serial returns the serial number of the device
	Serial() string

	// SetupVelocity sets the velocity profile of moves, in mm/s and mm/s^2
	SetupVelocity(minVel, maxVel, accel float64) error

	// SetupHoming sets the homing velocity and limit switch
	SetupHoming(vel float64, reverse bool) error

	// SetupJog sets the jog step size and velocity profile
	SetupJog(step, minVel, maxVel, accel float64) error

	// SetupGenMove sets the backlash correction distance in mm
	SetupGenMove(backlash float64) error

	// MoveAbs starts a move to an absolute position
	MoveAbs(float64) error

	// WaitMove blocks until a move completes
	WaitMove(context.Context) error

	// Home starts homing
	Home() error

	// WaitHome blocks until homing completes
	WaitHome(context.Context) error

	// GetPos gets the current position
	GetPos() (float64, error)

	// Jog starts a single jog step
	Jog(forward bool) error

	// Stop halts motion
	Stop() error

	// Close releases the device
	Close() error
}

// DeviceInfo identifies an attached device
type DeviceInfo struct {
	Serial string
	Port   string
	Model  string
}

// Bus lists the attached devices and connects to them
type Bus interface {
	List() ([]DeviceInfo, error)
	Connect(DeviceInfo) (Device, error)
}

// Config holds the parameters applied to every axis on Open
type Config struct {
	MinVelocity  float64 `yaml:"MinVelocity" koanf:"MinVelocity"`
	MaxVelocity  float64 `yaml:"MaxVelocity" koanf:"MaxVelocity"`
	Acceleration float64 `yaml:"Acceleration" koanf:"Acceleration"`
	HomeVelocity float64 `yaml:"HomeVelocity" koanf:"HomeVelocity"`
	HomeReverse  bool    `yaml:"HomeReverse" koanf:"HomeReverse"`
	JogStep      float64 `yaml:"JogStep" koanf:"JogStep"`

	// Backlash is the backlash correction distance in mm, zero disables it
	Backlash float64 `yaml:"Backlash" koanf:"Backlash"`

	// MoveTimeout and HomeTimeout bound each wait on a device, zero is unbounded
	MoveTimeout time.Duration `yaml:"MoveTimeout" koanf:"MoveTimeout"`
	HomeTimeout time.Duration `yaml:"HomeTimeout" koanf:"HomeTimeout"`

	// Names overrides the default axis names, in enumeration order
	Names []string `yaml:"Names" koanf:"Names"`

	// Limits are software limits on axis positions, keyed by axis name
	Limits map[string]util.Limiter `yaml:"Limits" koanf:"Limits"`
}

// Axis is one named motorized degree of freedom
type Axis struct {
	Name   string
	Serial string
	Model  string
	Port   string

	// Reference is the position recorded after connecting, returned to on Close
	Reference float64

	Device Device
}

// Stage is a registry of named axes.  It is not safe for concurrent use.
type Stage struct {
	Bus    Bus
	Config Config
	Logger *log.Logger

	axes  map[string]*Axis
	order []*Axis
}

// NewStage returns an empty stage that connects to devices on bus
func NewStage(bus Bus, cfg Config, logger *log.Logger) *Stage {
	return &Stage{Bus: bus, Config: cfg, Logger: logger, axes: make(map[string]*Axis)}
}

func (s *Stage) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// DefaultAxisName is the name given to the i'th enumerated device
func DefaultAxisName(i int) string {
	switch i {
	case 0:
		return "x"
	case 1:
		return "y"
	case 2:
		return "z"
	case 3:
		return "θ"
	}
	return fmt.Sprintf("axis%d", i)
}

// Open enumerates the attached devices and connects to the first expected of
// them, or all of them if expected <= 0.  Each is configured, settled in place
// and its position recorded as its reference.
func (s *Stage) Open(ctx context.Context, expected int) error {
	devs, err := s.Bus.List()
	if err != nil {
		return errors.Wrap(err, "listing motion devices")
	}
	s.logf("found %d motion devices %v", len(devs), devs)
	if len(devs) < expected {
		return DeviceCountMismatch{Expected: expected, Found: len(devs)}
	}
	if expected > 0 {
		devs = devs[:expected]
	}
	for i, info := range devs {
		name := DefaultAxisName(i)
		if i < len(s.Config.Names) && s.Config.Names[i] != "" {
			name = s.Config.Names[i]
		}
		if _, taken := s.axes[name]; taken {
			return errors.Errorf("axis name %q is used twice", name)
		}
		ax, err := s.connect(ctx, name, info)
		if err != nil {
			return err
		}
		s.axes[name] = ax
		s.order = append(s.order, ax)
		s.logf("axis %s: %s %s on %s, reference %.0f", name, ax.Model, ax.Serial, ax.Port, ax.Reference)
	}
	return nil
}

func (s *Stage) connect(ctx context.Context, name string, info DeviceInfo) (*Axis, error) {
	dev, err := s.Bus.Connect(info)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", info.Serial)
	}
	err = s.setup(ctx, dev)
	if err != nil {
		dev.Close()
		return nil, errors.Wrapf(err, "configuring %s", info.Serial)
	}
	ref, err := dev.GetPos()
	if err != nil {
		dev.Close()
		return nil, err
	}
	return &Axis{Name: name, Serial: info.Serial, Model: info.Model, Port: info.Port, Reference: ref, Device: dev}, nil
}

// setup applies the backlash, velocity, homing and jog parameters then holds the device at its current position
func (s *Stage) setup(ctx context.Context, dev Device) error {
	c := s.Config
	if err := dev.SetupGenMove(c.Backlash); err != nil {
		return err
	}
	if c.MaxVelocity > 0 {
		if err := dev.SetupVelocity(c.MinVelocity, c.MaxVelocity, c.Acceleration); err != nil {
			return err
		}
	}
	if c.HomeVelocity > 0 {
		if err := dev.SetupHoming(c.HomeVelocity, c.HomeReverse); err != nil {
			return err
		}
	}
	if c.JogStep > 0 {
		if err := dev.SetupJog(c.JogStep, c.MinVelocity, c.MaxVelocity, c.Acceleration); err != nil {
			return err
		}
	}
	p0, err := dev.GetPos()
	if err != nil {
		return err
	}
	if err = dev.MoveAbs(p0); err != nil {
		return err
	}
	return s.waitMove(ctx, dev)
}

func (s *Stage) waitMove(ctx context.Context, dev Device) error {
	if s.Config.MoveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Config.MoveTimeout)
		defer cancel()
	}
	return dev.WaitMove(ctx)
}

func (s *Stage) waitHome(ctx context.Context, dev Device) error {
	if s.Config.HomeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Config.HomeTimeout)
		defer cancel()
	}
	return dev.WaitHome(ctx)
}

// Resolve partitions names into the registered axes and the unknown names.
// Duplicate names are resolved once.  No names resolves every axis in enumeration order.
func (s *Stage) Resolve(names []string) (found []*Axis, missing []string) {
	if len(names) == 0 {
		return append([]*Axis(nil), s.order...), nil
	}
	for _, n := range util.UniqueString(names) {
		if ax, ok := s.axes[n]; ok {
			found = append(found, ax)
		} else {
			missing = append(missing, n)
		}
	}
	return found, missing
}

func (s *Stage) reportMissing(op string, missing []string) {
	for _, n := range missing {
		s.logf("%s: %v, skipped", op, AxisNotFound{Name: n})
	}
}

// Axis returns the axis registered under name
func (s *Stage) Axis(name string) (*Axis, error) {
	ax, ok := s.axes[name]
	if !ok {
		return nil, AxisNotFound{Name: name}
	}
	return ax, nil
}

// Names returns the registered axis names in enumeration order
func (s *Stage) Names() []string {
	out := make([]string, len(s.order))
	for i, ax := range s.order {
		out[i] = ax.Name
	}
	return out
}

// References returns the reference position of every axis
func (s *Stage) References() map[string]float64 {
	out := make(map[string]float64, len(s.order))
	for _, ax := range s.order {
		out[ax.Name] = ax.Reference
	}
	return out
}

// Position returns the position of one axis
func (s *Stage) Position(name string) (float64, error) {
	ax, err := s.Axis(name)
	if err != nil {
		return 0, err
	}
	return ax.Device.GetPos()
}

// Positions returns the position of every axis
func (s *Stage) Positions() (map[string]float64, error) {
	out := make(map[string]float64, len(s.order))
	for _, ax := range s.order {
		p, err := ax.Device.GetPos()
		if err != nil {
			return out, errors.Wrapf(err, "reading position of %s", ax.Name)
		}
		out[ax.Name] = p
	}
	return out, nil
}

// CheckLimits returns ErrOutOfLimits if pos violates the limits of axis name
func (s *Stage) CheckLimits(name string, pos float64) error {
	if lim, ok := s.Config.Limits[name]; ok && !lim.Check(pos) {
		return errors.Wrapf(ErrOutOfLimits, "%s to %.0f, limits [%.0f, %.0f]", name, pos, lim.Min, lim.Max)
	}
	return nil
}

// MoveTo moves each named axis to the matching position, one at a time, each
// awaited before the next starts.  Unknown names are logged and skipped.
// No names moves nothing.
func (s *Stage) MoveTo(ctx context.Context, names []string, positions []float64) error {
	if len(names) != len(positions) {
		return errors.Errorf("%d axes given %d positions", len(names), len(positions))
	}
	if len(names) == 0 {
		s.logf("move: no axes given")
		return nil
	}
	targets := make(map[string]float64, len(names))
	for i, n := range names {
		targets[n] = positions[i]
	}
	found, missing := s.Resolve(names)
	s.reportMissing("move", missing)
	for _, ax := range found {
		if err := s.CheckLimits(ax.Name, targets[ax.Name]); err != nil {
			return err
		}
	}
	for _, ax := range found {
		if err := s.move(ctx, ax, targets[ax.Name]); err != nil {
			return err
		}
	}
	return nil
}

// MoveRel moves one axis by delta
func (s *Stage) MoveRel(ctx context.Context, name string, delta float64) error {
	ax, err := s.Axis(name)
	if err != nil {
		return err
	}
	p, err := ax.Device.GetPos()
	if err != nil {
		return err
	}
	if err = s.CheckLimits(name, p+delta); err != nil {
		return err
	}
	return s.move(ctx, ax, p+delta)
}

func (s *Stage) move(ctx context.Context, ax *Axis, pos float64) error {
	if err := ax.Device.MoveAbs(pos); err != nil {
		return errors.Wrapf(err, "moving %s", ax.Name)
	}
	if err := s.waitMove(ctx, ax.Device); err != nil {
		return errors.Wrapf(err, "waiting on %s to reach %.0f", ax.Name, pos)
	}
	return nil
}

// Home homes the named axes, or all of them if none are named, blocking until
// each is homed.  Unknown names are logged and skipped.
func (s *Stage) Home(ctx context.Context, names ...string) error {
	found, missing := s.Resolve(names)
	s.reportMissing("home", missing)
	for _, ax := range found {
		if err := ax.Device.Home(); err != nil {
			return errors.Wrapf(err, "homing %s", ax.Name)
		}
		if err := s.waitHome(ctx, ax.Device); err != nil {
			return errors.Wrapf(err, "waiting on %s to home", ax.Name)
		}
		s.logf("axis %s homed", ax.Name)
	}
	return nil
}

// Jog starts a single jog step of one axis
func (s *Stage) Jog(name string, forward bool) error {
	ax, err := s.Axis(name)
	if err != nil {
		return err
	}
	return ax.Device.Jog(forward)
}

// Stop halts one axis
func (s *Stage) Stop(name string) error {
	ax, err := s.Axis(name)
	if err != nil {
		return err
	}
	return ax.Device.Stop()
}

// Rename re-keys an axis.  It is a no-op if old is unknown or new is already taken.
func (s *Stage) Rename(old, new string) {
	ax, ok := s.axes[old]
	if !ok {
		s.logf("rename: %v, nothing renamed", AxisNotFound{Name: old})
		return
	}
	if _, taken := s.axes[new]; taken {
		s.logf("rename: axis %q already exists, %q not renamed", new, old)
		return
	}
	delete(s.axes, old)
	ax.Name = new
	s.axes[new] = ax
	if lim, ok := s.Config.Limits[old]; ok {
		delete(s.Config.Limits, old)
		s.Config.Limits[new] = lim
	}
	s.logf("axis %s (%s) renamed to %s", old, ax.Serial, new)
}

// Close returns each named axis, or all of them if none are named, to its
// reference position, then releases the device and forgets the axis.
// Unknown names are logged and skipped.
func (s *Stage) Close(ctx context.Context, names ...string) error {
	found, missing := s.Resolve(names)
	s.reportMissing("close", missing)
	for _, ax := range found {
		moveErr := s.move(ctx, ax, ax.Reference)
		closeErr := ax.Device.Close()
		s.forget(ax)
		if moveErr != nil {
			return moveErr
		}
		if closeErr != nil {
			return errors.Wrapf(closeErr, "closing %s", ax.Name)
		}
		s.logf("axis %s returned to %.0f and closed", ax.Name, ax.Reference)
	}
	return nil
}

func (s *Stage) forget(ax *Axis) {
	delete(s.axes, ax.Name)
	for i, o := range s.order {
		if o == ax {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
