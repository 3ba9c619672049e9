/*Package comm provides an embeddable transport for binary framed protocols
spoken over serial ports, or TCP sockets for devices behind a serial server.

Frames are written whole with Send and read back in fixed-size chunks with
ReadFull, so a protocol reads its header, learns the payload length from it
and reads the payload.

	type Controller struct {
		*comm.RemoteDevice
	}

	func NewController(port string) *Controller {
		conf := comm.SerialConf(port, 115200, time.Second)
		return &Controller{comm.NewRemoteDevice(port, true, conf)}
	}
*/
package comm

import (
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

var (
	// ErrNoSerialConf is generated when IsSerial is true and no serial config was given
	ErrNoSerialConf = errors.New("remote device is serial but has no serial config")

	// ErrNotConnected is generated when Send or ReadFull is called before Open
	ErrNotConnected = errors.New("not connected to remote")

	// ErrTimeout is generated when a read returns no data before the port's read timeout
	ErrTimeout = errors.New("read timeout, no data from remote")
)

// SerialConf returns an 8N1 serial config for a port
func SerialConf(port string, baud int, timeout time.Duration) *serial.Config {
	return &serial.Config{
		Name:        port,
		Baud:        baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: timeout}
}

// RemoteDevice is a connection to a serial or TCP remote.
// It is not safe for concurrent use.
type RemoteDevice struct {
	Addr     string
	IsSerial bool
	Conn     io.ReadWriteCloser

	// Timeout bounds dialing TCP remotes and each IO on them
	Timeout time.Duration

	// OpenTimeout bounds the retries of Open
	OpenTimeout time.Duration

	serCfg *serial.Config
}

// NewRemoteDevice returns a disconnected device.  serCfg may be nil when serial is false.
func NewRemoteDevice(addr string, serial bool, serCfg *serial.Config) *RemoteDevice {
	return &RemoteDevice{
		Addr:        addr,
		IsSerial:    serial,
		Timeout:     3 * time.Second,
		OpenTimeout: 3 * time.Second,
		serCfg:      serCfg}
}

// permanent reports errors that retrying cannot fix
func permanent(err error) bool {
	if err == ErrNoSerialConf {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "refused") || strings.Contains(s, "no such file")
}

// Open connects, retrying with an exponential backoff for up to OpenTimeout.
// Opening an open device is a no-op.
func (rd *RemoteDevice) Open() error {
	if rd.Conn != nil {
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 25 * time.Millisecond
	bo.RandomizationFactor = 0
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = rd.OpenTimeout
	err := backoff.Retry(func() error {
		conn, err := rd.dial()
		if err != nil {
			if permanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		rd.Conn = conn
		return nil
	}, bo)
	return errors.Wrapf(err, "opening connection to %s", rd.Addr)
}

func (rd *RemoteDevice) dial() (io.ReadWriteCloser, error) {
	if !rd.IsSerial {
		return DialTCP(rd.Addr, rd.Timeout)
	}
	if rd.serCfg == nil {
		return nil, ErrNoSerialConf
	}
	return serial.OpenPort(rd.serCfg)
}

// Close the connection.  Closing a closed device is not an error.
func (rd *RemoteDevice) Close() error {
	if rd.Conn == nil {
		return nil
	}
	err := rd.Conn.Close()
	if err == nil {
		rd.Conn = nil
	}
	return err
}

// Send writes one frame, retrying short writes
func (rd *RemoteDevice) Send(b []byte) error {
	if rd.Conn == nil {
		return ErrNotConnected
	}
	rd.refreshDeadline()
	for len(b) > 0 {
		n, err := rd.Conn.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// ReadFull reads exactly n bytes from the remote.
// A read that returns no data and no error is treated as a timeout.
func (rd *RemoteDevice) ReadFull(n int) ([]byte, error) {
	if rd.Conn == nil {
		return nil, ErrNotConnected
	}
	rd.refreshDeadline()
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := rd.Conn.Read(buf[got:])
		got += m
		switch {
		case err == nil && m == 0:
			return buf[:got], ErrTimeout
		case err == nil:
		case isTimeout(err), err == io.EOF && rd.IsSerial:
			// serial ports report an expired read timeout as EOF
			return buf[:got], ErrTimeout
		default:
			return buf[:got], err
		}
	}
	return buf, nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// refreshDeadline pushes the IO deadline of network connections out by Timeout
func (rd *RemoteDevice) refreshDeadline() {
	if c, ok := rd.Conn.(net.Conn); ok && rd.Timeout > 0 {
		c.SetDeadline(time.Now().Add(rd.Timeout))
	}
}

// DialTCP opens a TCP connection with a timeout on connecting
func DialTCP(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}
