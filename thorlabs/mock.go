package thorlabs

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	mockServoPeriod = time.Millisecond
	mockServoSec    = 1e-3
)

// ErrNotOpen is generated by MockMotor when it is used before Open or after Close
var ErrNotOpen = errors.New("motor is not open")

// MockMotor simulates a Kinesis controller and stage with velocity limited motion.
// Its methods mirror Motor.
type MockMotor struct {
	sync.Mutex

	Scale        Scale
	PollInterval time.Duration

	serial   string
	open     bool
	moving   bool
	homed    bool
	stop     bool
	pos      float64 // counts
	vel      float64 // counts per second
	homeVel  float64
	jogStep  float64
	backlash float64 // counts, recorded only
}

// NewMockMotor returns a mock controller with its stage at start counts.
// Motion runs at 2 mm/s until SetupVelocity is called.
func NewMockMotor(serial string, scale Scale, start float64) *MockMotor {
	return &MockMotor{
		Scale:        scale,
		PollInterval: 5 * time.Millisecond,
		serial:       serial,
		pos:          start,
		vel:          2 * scale.Position,
		homeVel:      2 * scale.Position,
		jogStep:      scale.Position / 10}
}

func (m *MockMotor) Serial() string { return m.serial }

// Open connects to the mock
func (m *MockMotor) Open() error {
	m.Lock()
	defer m.Unlock()
	m.open = true
	return nil
}

// Close disconnects from the mock
func (m *MockMotor) Close() error {
	m.Lock()
	defer m.Unlock()
	m.open = false
	m.stop = true
	return nil
}

func (m *MockMotor) SetupVelocity(minVel, maxVel, accel float64) error {
	m.Lock()
	defer m.Unlock()
	if !m.open {
		return ErrNotOpen
	}
	m.vel = maxVel * m.Scale.Position
	return nil
}

func (m *MockMotor) SetupHoming(vel float64, reverse bool) error {
	m.Lock()
	defer m.Unlock()
	if !m.open {
		return ErrNotOpen
	}
	m.homeVel = vel * m.Scale.Position
	return nil
}

// Identify reports the serial number and controller family of the mock
func (m *MockMotor) Identify() (Info, error) {
	m.Lock()
	defer m.Unlock()
	if !m.open {
		return Info{}, ErrNotOpen
	}
	sn, _ := strconv.ParseUint(m.serial, 10, 32)
	return Info{Serial: uint32(sn), Model: ModelFromSerial(m.serial), Firmware: "0.0.0"}, nil
}

func (m *MockMotor) SetupGenMove(backlash float64) error {
	m.Lock()
	defer m.Unlock()
	if !m.open {
		return ErrNotOpen
	}
	m.backlash = backlash * m.Scale.Position
	return nil
}

func (m *MockMotor) SetupJog(step, minVel, maxVel, accel float64) error {
	m.Lock()
	defer m.Unlock()
	if !m.open {
		return ErrNotOpen
	}
	m.jogStep = step * m.Scale.Position
	return nil
}

func (m *MockMotor) GetPos() (float64, error) {
	m.Lock()
	defer m.Unlock()
	if !m.open {
		return 0, ErrNotOpen
	}
	return math.Round(m.pos), nil
}

// start begins an asynchronous move to pos at vel counts/s
func (m *MockMotor) start(pos, vel float64) error {
	m.Lock()
	if !m.open {
		m.Unlock()
		return ErrNotOpen
	}
	if m.moving {
		m.stop = true
		m.Unlock()
		// let the previous move observe the stop
		time.Sleep(2 * mockServoPeriod)
		m.Lock()
	}
	m.moving = true
	m.stop = false
	m.Unlock()
	go m.moveTo(pos, vel)
	return nil
}

func (m *MockMotor) moveTo(pos, vel float64) {
	tick := time.NewTicker(mockServoPeriod)
	defer tick.Stop()
	step := vel * mockServoSec
	for range tick.C {
		m.Lock()
		if m.stop {
			m.moving = false
			m.stop = false
			m.Unlock()
			return
		}
		d := pos - m.pos
		if math.Abs(d) <= step {
			m.pos = pos
			m.moving = false
			m.Unlock()
			return
		}
		m.pos += math.Copysign(step, d)
		m.Unlock()
	}
}

func (m *MockMotor) MoveAbs(pos float64) error {
	return m.start(pos, m.velocity())
}

func (m *MockMotor) MoveRel(delta float64) error {
	m.Lock()
	target := m.pos + delta
	m.Unlock()
	return m.start(target, m.velocity())
}

func (m *MockMotor) Jog(forward bool) error {
	m.Lock()
	step := m.jogStep
	if !forward {
		step = -step
	}
	target := m.pos + step
	m.Unlock()
	return m.start(target, m.velocity())
}

// Home drives the mock to zero, the position of its limit switch
func (m *MockMotor) Home() error {
	m.Lock()
	m.homed = false
	v := m.homeVel
	m.Unlock()
	return m.start(0, v)
}

func (m *MockMotor) Stop() error {
	m.Lock()
	defer m.Unlock()
	if m.moving {
		m.stop = true
	}
	return nil
}

func (m *MockMotor) velocity() float64 {
	m.Lock()
	defer m.Unlock()
	return m.vel
}

func (m *MockMotor) waitIdle(ctx context.Context) error {
	lim := rate.NewLimiter(rate.Every(m.PollInterval), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		m.Lock()
		moving, open := m.moving, m.open
		m.Unlock()
		if !open {
			return ErrNotOpen
		}
		if !moving {
			return nil
		}
	}
}

func (m *MockMotor) WaitMove(ctx context.Context) error {
	return m.waitIdle(ctx)
}

func (m *MockMotor) WaitHome(ctx context.Context) error {
	err := m.waitIdle(ctx)
	if err == nil {
		m.Lock()
		m.homed = m.pos == 0
		m.Unlock()
	}
	return err
}

// Homed returns true if the mock has completed a homing move
func (m *MockMotor) Homed() bool {
	m.Lock()
	defer m.Unlock()
	return m.homed
}
