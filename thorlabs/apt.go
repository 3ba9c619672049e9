package thorlabs

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// APT message IDs used by the Kinesis motor controllers
const (
	HwReqInfo            uint16 = 0x0005
	HwGetInfo            uint16 = 0x0006
	HwNoFlashProgramming uint16 = 0x0018
	HwResponse           uint16 = 0x0080
	HwRichResponse       uint16 = 0x0081
	ModSetChanEnable     uint16 = 0x0210

	MotReqPosCounter     uint16 = 0x0411
	MotGetPosCounter     uint16 = 0x0412
	MotSetVelParams      uint16 = 0x0413
	MotSetJogParams      uint16 = 0x0416
	MotSetGenMoveParams  uint16 = 0x043A
	MotSetHomeParams     uint16 = 0x0440
	MotMoveHome          uint16 = 0x0443
	MotMoveHomed         uint16 = 0x0444
	MotMoveRelative      uint16 = 0x0448
	MotMoveAbsolute      uint16 = 0x0453
	MotMoveCompleted     uint16 = 0x0464
	MotMoveStop          uint16 = 0x0465
	MotMoveStopped       uint16 = 0x0466
	MotMoveJog           uint16 = 0x046A
	MotReqStatusUpdate   uint16 = 0x0480
	MotGetStatusUpdate   uint16 = 0x0481
	MotReqDCStatusUpdate uint16 = 0x0490
	MotGetDCStatusUpdate uint16 = 0x0491
	MotAckDCStatusUpdate uint16 = 0x0492
)

const (
	// HostAddr is the source address of the PC
	HostAddr byte = 0x01

	// GenericUSBAddr is the destination address of single channel K-Cube and T-Cube controllers
	GenericUSBAddr byte = 0x50

	// longFlag marks the destination byte of messages with a data packet
	longFlag byte = 0x80

	headerSize = 6
)

// status bits reported in the status update messages
const (
	StatusFwdLimit  uint32 = 0x00000001
	StatusRevLimit  uint32 = 0x00000002
	StatusMovingFwd uint32 = 0x00000010
	StatusMovingRev uint32 = 0x00000020
	StatusJogFwd    uint32 = 0x00000040
	StatusJogRev    uint32 = 0x00000080
	StatusHoming    uint32 = 0x00000200
	StatusHomed     uint32 = 0x00000400
	StatusEnabled   uint32 = 0x80000000

	statusInMotion = StatusMovingFwd | StatusMovingRev | StatusJogFwd | StatusJogRev | StatusHoming
)

// Message is one APT protocol message.  Messages with Data are "long" and
// carry the data length in place of the two parameter bytes.
type Message struct {
	ID     uint16
	Param1 byte
	Param2 byte
	Dest   byte
	Src    byte
	Data   []byte
}

// Long returns true if the message carries a data packet
func (m Message) Long() bool {
	return m.Data != nil
}

// Bytes encodes the message for the wire
func (m Message) Bytes() []byte {
	if !m.Long() {
		buf := make([]byte, headerSize)
		binary.LittleEndian.PutUint16(buf, m.ID)
		buf[2] = m.Param1
		buf[3] = m.Param2
		buf[4] = m.Dest
		buf[5] = m.Src
		return buf
	}
	buf := make([]byte, headerSize+len(m.Data))
	binary.LittleEndian.PutUint16(buf, m.ID)
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(m.Data)))
	buf[4] = m.Dest | longFlag
	buf[5] = m.Src
	copy(buf[headerSize:], m.Data)
	return buf
}

// decodeHeader parses a 6-byte header.  The returned int is the length of
// the data packet that follows it, zero for short messages.
func decodeHeader(hdr []byte) (Message, int, error) {
	if len(hdr) != headerSize {
		return Message{}, 0, fmt.Errorf("APT header must be %d bytes, got %d", headerSize, len(hdr))
	}
	m := Message{
		ID:   binary.LittleEndian.Uint16(hdr),
		Dest: hdr[4] &^ longFlag,
		Src:  hdr[5]}
	if hdr[4]&longFlag == 0 {
		m.Param1 = hdr[2]
		m.Param2 = hdr[3]
		return m, 0, nil
	}
	return m, int(binary.LittleEndian.Uint16(hdr[2:])), nil
}

// shortMsg makes a message with no data packet from the host to a controller
func shortMsg(id uint16, p1, p2, dest byte) Message {
	return Message{ID: id, Param1: p1, Param2: p2, Dest: dest, Src: HostAddr}
}

// longMsg makes a message with a data packet from the host to a controller.
// fields are written little endian in order; each must be a fixed-size integer.
func longMsg(id uint16, dest byte, fields ...interface{}) Message {
	var data []byte
	for _, f := range fields {
		switch v := f.(type) {
		case uint16:
			data = binary.LittleEndian.AppendUint16(data, v)
		case int32:
			data = binary.LittleEndian.AppendUint32(data, uint32(v))
		case uint32:
			data = binary.LittleEndian.AppendUint32(data, v)
		default:
			panic(fmt.Sprintf("unsupported APT field type %T", f))
		}
	}
	if data == nil {
		data = []byte{}
	}
	return Message{ID: id, Dest: dest, Src: HostAddr, Data: data}
}

// APTError is an error reported by the controller through HW_RICHRESPONSE
type APTError struct {
	MsgID uint16
	Code  uint16
	Notes string
}

func (e APTError) Error() string {
	return fmt.Sprintf("APT error %d in response to message %#04x: %s", e.Code, e.MsgID, e.Notes)
}

func parseRichResponse(data []byte) APTError {
	e := APTError{}
	if len(data) >= 4 {
		e.MsgID = binary.LittleEndian.Uint16(data)
		e.Code = binary.LittleEndian.Uint16(data[2:])
	}
	if len(data) > 4 {
		e.Notes = strings.TrimRight(string(data[4:]), "\x00")
	}
	return e
}

// Status is the decoded contents of a status update message
type Status struct {
	Position int32
	Bits     uint32
}

// Moving is true if the stage is moving, jogging or homing
func (s Status) Moving() bool {
	return s.Bits&statusInMotion != 0
}

// Homed is true if the stage has been homed since power on
func (s Status) Homed() bool {
	return s.Bits&StatusHomed != 0
}

// AtLimit is true if either hardware limit switch is engaged
func (s Status) AtLimit() bool {
	return s.Bits&(StatusFwdLimit|StatusRevLimit) != 0
}

// both the DC and stepper status updates put the position at 2 and the status bits at 10
func parseStatus(data []byte) (Status, error) {
	if len(data) < 14 {
		return Status{}, fmt.Errorf("status update too short, %d bytes", len(data))
	}
	return Status{
		Position: int32(binary.LittleEndian.Uint32(data[2:])),
		Bits:     binary.LittleEndian.Uint32(data[10:])}, nil
}

// Info is the hardware information of a controller
type Info struct {
	Serial   uint32
	Model    string
	Type     uint16
	Firmware string
}

func parseInfo(data []byte) (Info, error) {
	if len(data) < 18 {
		return Info{}, fmt.Errorf("hardware info too short, %d bytes", len(data))
	}
	fw := data[14:18]
	return Info{
		Serial:   binary.LittleEndian.Uint32(data),
		Model:    strings.TrimRight(string(data[4:12]), "\x00 "),
		Type:     binary.LittleEndian.Uint16(data[12:]),
		Firmware: fmt.Sprintf("%d.%d.%d", fw[2], fw[1], fw[0])}, nil
}
