package thorlabs

import (
	"bytes"
	"fmt"
	"testing"
)

func ExampleMessage_Bytes() {
	home := shortMsg(MotMoveHome, 1, 0, GenericUSBAddr)
	fmt.Printf("% x\n", home.Bytes())
	// Output: 43 04 01 00 50 01
}

func ExampleMessage_Bytes_long() {
	mv := longMsg(MotMoveAbsolute, GenericUSBAddr, uint16(1), int32(34555))
	fmt.Printf("% x\n", mv.Bytes())
	// Output: 53 04 06 00 d0 01 01 00 fb 86 00 00
}

func TestDecodeHeaderShort(t *testing.T) {
	msg, n, err := decodeHeader([]byte{0x44, 0x04, 0x01, 0x00, 0x01, 0x50})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected no data packet for a short message, got %d bytes", n)
	}
	if msg.ID != MotMoveHomed || msg.Param1 != 1 || msg.Src != GenericUSBAddr {
		t.Errorf("decoded header wrong: %+v", msg)
	}
}

func TestDecodeHeaderLong(t *testing.T) {
	full := longMsg(MotGetPosCounter, HostAddr, uint16(1), int32(-100)).Bytes()
	msg, n, err := decodeHeader(full[:headerSize])
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Errorf("expected 6 data bytes got %d", n)
	}
	if msg.ID != MotGetPosCounter || msg.Dest != HostAddr {
		t.Errorf("decoded header wrong: %+v", msg)
	}
	if !bytes.Equal(full[headerSize:], []byte{0x01, 0x00, 0x9c, 0xff, 0xff, 0xff}) {
		t.Errorf("unexpected data packet % x", full[headerSize:])
	}
}

func TestDecodeHeaderWrongSize(t *testing.T) {
	if _, _, err := decodeHeader([]byte{1, 2, 3}); err == nil {
		t.Error("expected an error decoding a truncated header")
	}
}

func TestParseStatus(t *testing.T) {
	data := longMsg(MotGetDCStatusUpdate, HostAddr,
		uint16(1), int32(1234), uint16(0), uint16(0), StatusMovingFwd|StatusHomed|StatusEnabled).Data
	st, err := parseStatus(data)
	if err != nil {
		t.Fatal(err)
	}
	if st.Position != 1234 {
		t.Errorf("expected position 1234 got %d", st.Position)
	}
	if !st.Moving() || !st.Homed() || st.AtLimit() {
		t.Errorf("status bits decoded wrong: %#x", st.Bits)
	}
}

func TestParseRichResponse(t *testing.T) {
	data := append([]byte{0x53, 0x04, 0x2b, 0x00}, []byte("position out of range\x00\x00")...)
	e := parseRichResponse(data)
	if e.MsgID != MotMoveAbsolute || e.Code != 43 || e.Notes != "position out of range" {
		t.Errorf("rich response decoded wrong: %+v", e)
	}
}

func TestParseInfo(t *testing.T) {
	data := make([]byte, 84)
	copy(data, []byte{0x39, 0x00, 0x9c, 0x01}) // 27000889
	copy(data[4:], "KDC101\x00\x00")
	data[12] = 16
	copy(data[14:], []byte{3, 0, 1, 0})
	info, err := parseInfo(data)
	if err != nil {
		t.Fatal(err)
	}
	if info.Serial != 27000889 || info.Model != "KDC101" || info.Firmware != "1.0.3" {
		t.Errorf("hardware info decoded wrong: %+v", info)
	}
}
