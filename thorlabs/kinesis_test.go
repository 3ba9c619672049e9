package thorlabs

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fpscan/fpscan/mathx"
)

// fakeKDC plays the controller side of an APT link.  Motions finish after
// the given number of status polls.
type fakeKDC struct {
	sync.Mutex
	conn net.Conn
	out  chan []byte

	pos      int32
	target   int32
	polls    int
	homing   bool
	homed    bool
	failPos  bool
	received []Message
}

func newFakeLink(t *testing.T, polls int) (*Motor, *fakeKDC) {
	host, dev := net.Pipe()
	m := NewMotor("pipe", "27000001", false, Stages["Z825"])
	m.Conn = host
	m.PollInterval = time.Millisecond
	f := &fakeKDC{conn: dev, out: make(chan []byte, 64), polls: polls}
	go f.writer()
	go f.serve()
	t.Cleanup(func() {
		host.Close()
		dev.Close()
	})
	return m, f
}

func (f *fakeKDC) writer() {
	for b := range f.out {
		if _, err := f.conn.Write(b); err != nil {
			return
		}
	}
}

func (f *fakeKDC) reply(msg Message) {
	msg.Dest, msg.Src = HostAddr, GenericUSBAddr
	f.out <- msg.Bytes()
}

func (f *fakeKDC) serve() {
	defer close(f.out)
	for {
		hdr := make([]byte, headerSize)
		if _, err := io.ReadFull(f.conn, hdr); err != nil {
			return
		}
		msg, n, err := decodeHeader(hdr)
		if err != nil {
			return
		}
		if n > 0 {
			msg.Data = make([]byte, n)
			if _, err := io.ReadFull(f.conn, msg.Data); err != nil {
				return
			}
		}
		f.handle(msg)
	}
}

func (f *fakeKDC) handle(msg Message) {
	f.Lock()
	defer f.Unlock()
	f.received = append(f.received, msg)
	switch msg.ID {
	case MotMoveAbsolute:
		f.target = int32(binary.LittleEndian.Uint32(msg.Data[2:]))
	case MotMoveHome:
		f.target = 0
		f.homing = true
	case MotReqPosCounter:
		if f.failPos {
			f.reply(Message{ID: HwRichResponse, Data: append([]byte{0x11, 0x04, 0x07, 0x00}, "motor fault"...)})
			return
		}
		f.reply(longMsg(MotGetPosCounter, HostAddr, uint16(1), f.pos))
	case MotReqDCStatusUpdate:
		var bits uint32 = StatusEnabled
		if f.homed {
			bits |= StatusHomed
		}
		if f.pos != f.target {
			f.polls--
			if f.polls > 0 {
				bits |= StatusMovingFwd
			} else {
				f.pos = f.target
				if f.homing {
					f.homing = false
					f.homed = true
					bits |= StatusHomed
					f.reply(shortMsg(MotMoveHomed, 1, 0, HostAddr))
				} else {
					f.reply(longMsg(MotMoveCompleted, HostAddr, uint16(1), f.pos, uint16(0), uint16(0), bits))
				}
			}
		}
		f.reply(longMsg(MotGetDCStatusUpdate, HostAddr, uint16(1), f.pos, uint16(0), uint16(0), bits))
	case HwReqInfo:
		data := make([]byte, 84)
		binary.LittleEndian.PutUint32(data, 27000001)
		copy(data[4:], "KDC101")
		f.reply(Message{ID: HwGetInfo, Data: data})
	}
}

func (f *fakeKDC) ids() []uint16 {
	f.Lock()
	defer f.Unlock()
	out := make([]uint16, len(f.received))
	for i, m := range f.received {
		out[i] = m.ID
	}
	return out
}

func (f *fakeKDC) find(id uint16) (Message, bool) {
	f.Lock()
	defer f.Unlock()
	for _, m := range f.received {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

func TestMotorOpenEnablesChannel(t *testing.T) {
	m, f := newFakeLink(t, 3)
	if err := m.Open(); err != nil {
		t.Fatal(err)
	}
	// GetPos round trips, so both setup messages have been consumed by now
	if _, err := m.GetPos(); err != nil {
		t.Fatal(err)
	}
	ids := f.ids()
	if len(ids) < 2 || ids[0] != HwNoFlashProgramming || ids[1] != ModSetChanEnable {
		t.Errorf("expected no-flash then channel enable, got % x", ids)
	}
	en, _ := f.find(ModSetChanEnable)
	if en.Param1 != 1 || en.Param2 != 1 {
		t.Errorf("expected channel 1 enabled, got %+v", en)
	}
}

func TestMotorMoveAbsWaitsForCompletion(t *testing.T) {
	m, _ := newFakeLink(t, 3)
	if err := m.MoveAbs(34555); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.WaitMove(ctx); err != nil {
		t.Fatal(err)
	}
	pos, err := m.GetPos()
	if err != nil {
		t.Fatal(err)
	}
	if pos != 34555 {
		t.Errorf("expected 34555 got %f", pos)
	}
}

func TestMotorHome(t *testing.T) {
	m, f := newFakeLink(t, 2)
	f.Lock()
	f.pos = 1000
	f.Unlock()
	if err := m.Home(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.WaitHome(ctx); err != nil {
		t.Fatal(err)
	}
	pos, err := m.GetPos()
	if err != nil {
		t.Fatal(err)
	}
	if pos != 0 {
		t.Errorf("expected homed stage at 0 got %f", pos)
	}
}

func TestWaitMoveTimesOut(t *testing.T) {
	m, _ := newFakeLink(t, 1<<30)
	if err := m.MoveAbs(1e6); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := m.WaitMove(ctx); err == nil {
		t.Error("expected a timeout waiting on a motion that never finishes")
	}
}

func TestSetupVelocityScales(t *testing.T) {
	m, f := newFakeLink(t, 1)
	if err := m.SetupVelocity(0, 2.3, 1.5); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetPos(); err != nil {
		t.Fatal(err)
	}
	msg, ok := f.find(MotSetVelParams)
	if !ok {
		t.Fatal("velocity parameters never reached the controller")
	}
	if len(msg.Data) != 14 {
		t.Fatalf("expected 14 byte velocity params got %d", len(msg.Data))
	}
	accel := int32(binary.LittleEndian.Uint32(msg.Data[6:]))
	maxVel := int32(binary.LittleEndian.Uint32(msg.Data[10:]))
	if accel != mathx.ToCounts(1.5, m.Scale.Acceleration) {
		t.Errorf("expected accel %d got %d", mathx.ToCounts(1.5, m.Scale.Acceleration), accel)
	}
	if maxVel != mathx.ToCounts(2.3, m.Scale.Velocity) {
		t.Errorf("expected max velocity %d got %d", mathx.ToCounts(2.3, m.Scale.Velocity), maxVel)
	}
}

func TestIdentify(t *testing.T) {
	m, _ := newFakeLink(t, 1)
	info, err := m.Identify()
	if err != nil {
		t.Fatal(err)
	}
	if info.Serial != 27000001 || info.Model != "KDC101" {
		t.Errorf("unexpected hardware info %+v", info)
	}
}

func TestRichResponseIsAnError(t *testing.T) {
	m, f := newFakeLink(t, 1)
	f.Lock()
	f.failPos = true
	f.Unlock()
	_, err := m.GetPos()
	if _, ok := err.(APTError); !ok {
		t.Errorf("expected an APTError got %v", err)
	}
}

func TestSetupGenMoveSendsBacklash(t *testing.T) {
	m, f := newFakeLink(t, 1)
	if err := m.SetupGenMove(0.05); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetPos(); err != nil {
		t.Fatal(err)
	}
	msg, ok := f.find(MotSetGenMoveParams)
	if !ok {
		t.Fatal("backlash distance never reached the controller")
	}
	if len(msg.Data) != 6 {
		t.Fatalf("expected 6 byte gen move params got %d", len(msg.Data))
	}
	if ch := binary.LittleEndian.Uint16(msg.Data); ch != 1 {
		t.Errorf("expected channel 1 got %d", ch)
	}
	backlash := int32(binary.LittleEndian.Uint32(msg.Data[2:]))
	if backlash != mathx.ToCounts(0.05, m.Scale.Position) {
		t.Errorf("expected backlash %d got %d", mathx.ToCounts(0.05, m.Scale.Position), backlash)
	}
}

func TestWaitMoveAcknowledgesStatus(t *testing.T) {
	m, f := newFakeLink(t, 3)
	if err := m.MoveAbs(100); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.WaitMove(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetPos(); err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, id := range f.ids() {
		if id == MotAckDCStatusUpdate {
			n++
		}
	}
	// the polls of one short move fall inside a single ack interval
	if n != 1 {
		t.Errorf("expected one status acknowledgement got %d", n)
	}
}
