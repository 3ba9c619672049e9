package comm_test

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/fpscan/fpscan/comm"
)

func tcpEchoServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not listen, %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() { io.Copy(conn, conn) }()
		}
	}()
	return ln.Addr().String()
}

func TestFrameRoundTripOverTCP(t *testing.T) {
	addr := tcpEchoServer(t)
	rd := comm.NewRemoteDevice(addr, false, nil)
	if err := rd.Open(); err != nil {
		t.Fatal(err)
	}
	defer rd.Close()
	frame := []byte{0x05, 0x00, 0x00, 0x00, 0x50, 0x01}
	if err := rd.Send(frame); err != nil {
		t.Fatal(err)
	}
	resp, err := rd.ReadFull(len(frame))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(resp, frame) {
		t.Errorf("expected %x got %x", frame, resp)
	}
}

func TestOpenRefusedDoesNotRetry(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	rd := comm.NewRemoteDevice(addr, false, nil)
	rd.OpenTimeout = 10 * time.Second
	start := time.Now()
	if err := rd.Open(); err == nil {
		t.Fatal("expected an error dialing a closed port")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("a refused connection was retried for %v", time.Since(start))
	}
}

func TestReadFullBinary(t *testing.T) {
	host, dev := net.Pipe()
	rd := comm.NewRemoteDevice("pipe", false, nil)
	rd.Conn = host
	defer rd.Close()

	frame := []byte{0x12, 0x04, 0x06, 0x00, 0x81, 0x50, 0x01, 0x00, 0x10, 0x27, 0x00, 0x00}
	go func() {
		// dribble the frame out in two pieces
		dev.Write(frame[:4])
		dev.Write(frame[4:])
	}()
	hdr, err := rd.ReadFull(6)
	if err != nil {
		t.Fatal(err)
	}
	body, err := rd.ReadFull(6)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(append(hdr, body...), frame) {
		t.Errorf("expected %x got %x", frame, append(hdr, body...))
	}
}

func TestReadFullTimesOut(t *testing.T) {
	host, dev := net.Pipe()
	defer dev.Close()
	rd := comm.NewRemoteDevice("pipe", false, nil)
	rd.Conn = host
	rd.Timeout = 20 * time.Millisecond
	_, err := rd.ReadFull(6)
	if err != comm.ErrTimeout {
		t.Errorf("expected ErrTimeout got %v", err)
	}
}

func TestSendWritesFrameVerbatim(t *testing.T) {
	host, dev := net.Pipe()
	rd := comm.NewRemoteDevice("pipe", false, nil)
	rd.Conn = host
	msg := []byte{0x43, 0x04, 0x01, 0x00, 0x50, 0x01}
	go func() {
		if err := rd.Send(msg); err != nil {
			t.Error(err)
		}
	}()
	buf := make([]byte, 16)
	n, err := dev.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Errorf("expected %x got %x", msg, buf[:n])
	}
}

func TestNotConnected(t *testing.T) {
	rd := comm.NewRemoteDevice("nowhere", false, nil)
	if err := rd.Send([]byte{1}); err != comm.ErrNotConnected {
		t.Errorf("expected ErrNotConnected got %v", err)
	}
	if _, err := rd.ReadFull(1); err != comm.ErrNotConnected {
		t.Errorf("expected ErrNotConnected got %v", err)
	}
	if err := rd.Close(); err != nil {
		t.Errorf("expected closing an unopened device to be a no-op, got %v", err)
	}
}

func TestSerialWithoutConf(t *testing.T) {
	rd := comm.NewRemoteDevice("/dev/ttyUSB9", true, nil)
	if err := rd.Open(); err == nil {
		t.Error("expected an error opening a serial device with no config")
	}
}
