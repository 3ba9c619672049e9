/*Package thorlabs enables working with Thorlabs Kinesis motor controllers
(KDC101, KST101, TDC001 and relatives) over the APT binary protocol.

The controllers enumerate as FTDI virtual serial ports.  Positions are in
controller counts; velocities and accelerations are given in mm/s and mm/s^2
and converted with the stage Scale.
*/
package thorlabs

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fpscan/fpscan/comm"
	"github.com/fpscan/fpscan/mathx"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	// APT links run at 115200 baud, 8N1, RTS/CTS
	aptBaud = 115200

	// DefaultPollInterval is the time between status queries while waiting on a motion
	DefaultPollInterval = 50 * time.Millisecond

	// positions within this many counts of the target count as in position
	inPositionCounts = 2

	// the controller sends at most this many unsolicited messages between a request and its reply
	maxInterleaved = 64

	// DC servo controllers stop sending status updates unless they are acknowledged this often
	ackInterval = time.Second
)

// ErrLimitSwitch is generated when a motion stops on a hardware limit switch short of its target
var ErrLimitSwitch = errors.New("motion stopped on a hardware limit switch")

// Motor is a single channel Kinesis motor controller
type Motor struct {
	*comm.RemoteDevice

	// Scale converts physical units to counts
	Scale Scale

	// PollInterval is the period of status queries in WaitMove and WaitHome
	PollInterval time.Duration

	serial string
	dest   byte
	ch     byte

	jogStep  int32
	target   int32
	lastAck  time.Time
	moveDone bool
	homeDone bool
	stopped  bool
}

// NewMotor returns a new Motor.  addr is a serial port when serial is true,
// otherwise a host:port of a serial server bridging the controller.
func NewMotor(addr, serialNumber string, serial bool, scale Scale) *Motor {
	var conf = comm.SerialConf(addr, aptBaud, 500*time.Millisecond)
	rd := comm.NewRemoteDevice(addr, serial, conf)
	rd.Timeout = 500 * time.Millisecond
	return &Motor{
		RemoteDevice: rd,
		Scale:        scale,
		PollInterval: DefaultPollInterval,
		serial:       serialNumber,
		dest:         GenericUSBAddr,
		ch:           1}
}

// Serial returns the serial number of the controller
func (m *Motor) Serial() string {
	return m.serial
}

// Open connects to the controller, disables flash programming and enables the motor channel
func (m *Motor) Open() error {
	if err := m.RemoteDevice.Open(); err != nil {
		return err
	}
	if err := m.send(shortMsg(HwNoFlashProgramming, 0, 0, m.dest)); err != nil {
		return err
	}
	return m.send(shortMsg(ModSetChanEnable, m.ch, 0x01, m.dest))
}

func (m *Motor) send(msg Message) error {
	err := m.RemoteDevice.Send(msg.Bytes())
	if err != nil {
		return errors.Wrapf(err, "sending APT message %#04x to %s", msg.ID, m.serial)
	}
	return nil
}

// recv reads one message from the controller
func (m *Motor) recv() (Message, error) {
	hdr, err := m.ReadFull(headerSize)
	if err != nil {
		return Message{}, err
	}
	msg, n, err := decodeHeader(hdr)
	if err != nil {
		return msg, err
	}
	if n > 0 {
		msg.Data, err = m.ReadFull(n)
	}
	return msg, err
}

// expect reads messages until one with the given ID arrives.
// motion completion messages read along the way are latched.
func (m *Motor) expect(id uint16) (Message, error) {
	for i := 0; i < maxInterleaved; i++ {
		msg, err := m.recv()
		if err != nil {
			return msg, errors.Wrapf(err, "waiting for APT message %#04x from %s", id, m.serial)
		}
		m.latch(msg)
		if msg.ID == id {
			return msg, nil
		}
		if msg.ID == HwRichResponse {
			return msg, parseRichResponse(msg.Data)
		}
	}
	return Message{}, fmt.Errorf("no APT message %#04x from %s after %d messages", id, m.serial, maxInterleaved)
}

func (m *Motor) latch(msg Message) {
	switch msg.ID {
	case MotMoveCompleted:
		m.moveDone = true
	case MotMoveStopped:
		m.moveDone = true
		m.stopped = true
	case MotMoveHomed:
		m.homeDone = true
	}
}

// Identify queries the hardware information of the controller
func (m *Motor) Identify() (Info, error) {
	if err := m.send(shortMsg(HwReqInfo, 0, 0, m.dest)); err != nil {
		return Info{}, err
	}
	msg, err := m.expect(HwGetInfo)
	if err != nil {
		return Info{}, err
	}
	return parseInfo(msg.Data)
}

// SetupVelocity sets the velocity profile used by absolute and relative moves
func (m *Motor) SetupVelocity(minVel, maxVel, accel float64) error {
	sc := m.Scale
	return m.send(longMsg(MotSetVelParams, m.dest,
		uint16(m.ch),
		mathx.ToCounts(minVel, sc.Velocity),
		mathx.ToCounts(accel, sc.Acceleration),
		mathx.ToCounts(maxVel, sc.Velocity)))
}

// SetupHoming sets the homing velocity and direction.  reverse homes
// to the reverse limit switch, otherwise the forward one is used.
func (m *Motor) SetupHoming(vel float64, reverse bool) error {
	var dir, limit uint16 = 1, 4
	if reverse {
		dir, limit = 2, 1
	}
	return m.send(longMsg(MotSetHomeParams, m.dest,
		uint16(m.ch),
		dir,
		limit,
		mathx.ToCounts(vel, m.Scale.Velocity),
		int32(0)))
}

// SetupJog configures single-step jogs of step mm with a profiled stop
func (m *Motor) SetupJog(step, minVel, maxVel, accel float64) error {
	sc := m.Scale
	m.jogStep = mathx.ToCounts(step, sc.Position)
	return m.send(longMsg(MotSetJogParams, m.dest,
		uint16(m.ch),
		uint16(2), // single step
		m.jogStep,
		mathx.ToCounts(minVel, sc.Velocity),
		mathx.ToCounts(accel, sc.Acceleration),
		mathx.ToCounts(maxVel, sc.Velocity),
		uint16(2))) // profiled stop
}

// SetupGenMove sets the backlash correction distance in mm
func (m *Motor) SetupGenMove(backlash float64) error {
	return m.send(longMsg(MotSetGenMoveParams, m.dest,
		uint16(m.ch),
		mathx.ToCounts(backlash, m.Scale.Position)))
}

// MoveAbs starts a move to an absolute position in counts.  It does not wait.
func (m *Motor) MoveAbs(pos float64) error {
	m.moveDone, m.stopped = false, false
	m.target = int32(mathx.Round(pos, 1))
	return m.send(longMsg(MotMoveAbsolute, m.dest, uint16(m.ch), m.target))
}

// MoveRel starts a move by a relative amount of counts.  It does not wait.
func (m *Motor) MoveRel(delta float64) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	m.moveDone, m.stopped = false, false
	d := int32(mathx.Round(delta, 1))
	m.target = st.Position + d
	return m.send(longMsg(MotMoveRelative, m.dest, uint16(m.ch), d))
}

// Home starts homing the stage.  It does not wait.
func (m *Motor) Home() error {
	m.homeDone = false
	return m.send(shortMsg(MotMoveHome, m.ch, 0, m.dest))
}

// Jog starts a single step jog of the size given to SetupJog
func (m *Motor) Jog(forward bool) error {
	var dir byte = 2
	if forward {
		dir = 1
	}
	st, err := m.Status()
	if err != nil {
		return err
	}
	m.moveDone, m.stopped = false, false
	step := m.jogStep
	if !forward {
		step = -step
	}
	m.target = st.Position + step
	return m.send(shortMsg(MotMoveJog, m.ch, dir, m.dest))
}

// Stop halts motion with a profiled deceleration
func (m *Motor) Stop() error {
	return m.send(shortMsg(MotMoveStop, m.ch, 0x02, m.dest))
}

// GetPos returns the position of the stage in counts
func (m *Motor) GetPos() (float64, error) {
	if err := m.send(shortMsg(MotReqPosCounter, m.ch, 0, m.dest)); err != nil {
		return 0, err
	}
	msg, err := m.expect(MotGetPosCounter)
	if err != nil {
		return 0, err
	}
	if len(msg.Data) < 6 {
		return 0, fmt.Errorf("position counter reply too short, %d bytes", len(msg.Data))
	}
	return float64(int32(binary.LittleEndian.Uint32(msg.Data[2:]))), nil
}

// Status queries the position and status bits of the controller
func (m *Motor) Status() (Status, error) {
	req, rep := MotReqDCStatusUpdate, MotGetDCStatusUpdate
	if m.Scale.Stepper {
		req, rep = MotReqStatusUpdate, MotGetStatusUpdate
	}
	if err := m.send(shortMsg(req, m.ch, 0, m.dest)); err != nil {
		return Status{}, err
	}
	msg, err := m.expect(rep)
	if err != nil {
		return Status{}, err
	}
	return parseStatus(msg.Data)
}

// WaitMove blocks until the last move completes or ctx expires.
// The controller is polled at PollInterval.
func (m *Motor) WaitMove(ctx context.Context) error {
	return m.poll(ctx, func(st Status) (bool, error) {
		if m.moveDone {
			if m.stopped && st.AtLimit() {
				return true, ErrLimitSwitch
			}
			return true, nil
		}
		if st.Moving() {
			return false, nil
		}
		d := st.Position - m.target
		if d <= inPositionCounts && d >= -inPositionCounts {
			return true, nil
		}
		if st.AtLimit() {
			return true, ErrLimitSwitch
		}
		return false, nil
	})
}

// WaitHome blocks until homing completes or ctx expires
func (m *Motor) WaitHome(ctx context.Context) error {
	return m.poll(ctx, func(st Status) (bool, error) {
		return m.homeDone || (st.Homed() && !st.Moving()), nil
	})
}

func (m *Motor) poll(ctx context.Context, done func(Status) (bool, error)) error {
	lim := rate.NewLimiter(rate.Every(m.PollInterval), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			return errors.Wrapf(err, "waiting on %s", m.serial)
		}
		st, err := m.Status()
		if err != nil {
			return err
		}
		if err = m.keepAlive(); err != nil {
			return err
		}
		ok, err := done(st)
		if ok {
			return err
		}
	}
}

// keepAlive acknowledges status updates to a DC servo controller at most once per ackInterval
func (m *Motor) keepAlive() error {
	if m.Scale.Stepper || time.Since(m.lastAck) < ackInterval {
		return nil
	}
	m.lastAck = time.Now()
	return m.send(shortMsg(MotAckDCStatusUpdate, 0, 0, m.dest))
}

// Close disconnects from the controller
func (m *Motor) Close() error {
	return m.RemoteDevice.Close()
}
