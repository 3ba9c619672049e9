package camera

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/fpscan/fpscan/imgrec"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const basler = "Basler daA1920-160um"

func newTestController(b *MockBackend) (*Controller, *bytes.Buffer) {
	var buf bytes.Buffer
	c := NewController(log.New(&buf, "", 0))
	c.Backends = map[Kind]Factory{Pylon: MockFactory(b)}
	return c, &buf
}

func TestOpenTakesWarmupFrame(t *testing.T) {
	b := NewMockBackend()
	c, _ := newTestController(b)
	require.NoError(t, c.Open(basler, DefaultSettings()))
	assert.True(t, c.IsOpen())
	assert.Equal(t, 1, b.Grabs())
	assert.Equal(t, basler, c.Model())
	assert.Equal(t, 4*time.Millisecond, b.Settings().Exposure)
}

func TestOpenUnsupportedModelCallsNoFactory(t *testing.T) {
	called := false
	c := NewController(log.New(&bytes.Buffer{}, "", 0))
	c.Backends = map[Kind]Factory{
		Pylon:  func(Model) (Backend, error) { called = true; return nil, nil },
		OpenCV: func(Model) (Backend, error) { called = true; return nil, nil },
		TIS:    func(Model) (Backend, error) { called = true; return nil, nil },
	}
	err := c.Open("Acme Cam 9000", DefaultSettings())
	var um UnsupportedModel
	require.True(t, errors.As(err, &um))
	assert.Equal(t, "Acme Cam 9000", um.Model)
	assert.Contains(t, err.Error(), basler)
	assert.False(t, called)
	assert.False(t, c.IsOpen())
}

func TestOpenWarmupFailureLeavesClosed(t *testing.T) {
	b := NewMockBackend()
	b.TimeoutAt = 1
	c, _ := newTestController(b)
	err := c.Open(basler, DefaultSettings())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGrabTimeout))
	assert.False(t, c.IsOpen())
	assert.False(t, b.IsOpen())
}

func TestLookupModelIgnoresCase(t *testing.T) {
	m, err := LookupModel("dfm 37ux226-ml")
	require.NoError(t, err)
	assert.Equal(t, TIS, m.Kind)
	assert.True(t, m.FlipV)
}

func TestCaptureAveragedMean(t *testing.T) {
	b := NewMockBackend()
	c, _ := newTestController(b)
	require.NoError(t, c.Open(basler, DefaultSettings()))

	// warm-up was frame 0, so the average covers frames 1..5
	avg, err := c.CaptureAveraged(5, 8*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 5, avg.Count)
	assert.Equal(t, 8*time.Millisecond, b.Exposure())
	assert.Equal(t, 8*time.Millisecond, c.Exposure())
	for i, v := range avg.Pix {
		want := float64(b.Base) + 3*float64(b.Step) + float64(i%16)
		if v != want {
			t.Fatalf("pixel %d: got %g, want %g", i, v, want)
		}
	}
}

func TestCaptureAveragedFailureReturnsNil(t *testing.T) {
	b := NewMockBackend()
	b.FailAt = 4
	c, _ := newTestController(b)
	require.NoError(t, c.Open(basler, DefaultSettings()))
	avg, err := c.CaptureAveraged(5, 0)
	assert.Nil(t, avg)
	assert.True(t, errors.Is(err, ErrGrabFailed))
	assert.Contains(t, err.Error(), "frame 3 of 5")
}

func TestCaptureAveragedNotOpen(t *testing.T) {
	c, _ := newTestController(NewMockBackend())
	_, err := c.CaptureAveraged(2, 0)
	assert.True(t, errors.Is(err, ErrNotOpen))
	_, err = c.CaptureAveraged(0, 0)
	assert.Error(t, err)
}

func TestCaptureWritesFile(t *testing.T) {
	b := NewMockBackend()
	c, _ := newTestController(b)
	require.NoError(t, c.Open(basler, DefaultSettings()))
	path := filepath.Join(t.TempDir(), "frame.tif")
	f, err := c.Capture(path, imgrecMeta(3))
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, 3, f.Meta.Index)
	assert.Equal(t, basler, f.Meta.Model)
}

func TestCloseIsIdempotent(t *testing.T) {
	b := NewMockBackend()
	c, buf := newTestController(b)
	require.NoError(t, c.Close())
	require.NoError(t, c.Open(basler, DefaultSettings()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.False(t, b.IsOpen())
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("closed")))
}

func TestDecodeLayouts(t *testing.T) {
	le := []byte{0x34, 0x12, 0xff, 0xff}
	be := []byte{0x12, 0x34, 0x00, 0x01}
	rgb64 := make([]byte, 8)
	binary.LittleEndian.PutUint16(rgb64[0:], 1000) // b
	binary.LittleEndian.PutUint16(rgb64[2:], 1000) // g
	binary.LittleEndian.PutUint16(rgb64[4:], 1000) // r
	tests := []struct {
		raw  Raw
		m    Model
		want []uint16
	}{
		{Raw{2, 1, Mono16LE, le}, Model{}, []uint16{0x1234, 0xffff}},
		{Raw{2, 1, Mono16BE, be}, Model{}, []uint16{0x1234, 0x0001}},
		{Raw{2, 1, Mono8, []byte{1, 255}}, Model{Mono8Scale: 255}, []uint16{255, 65025}},
		{Raw{1, 1, BGR8, []byte{100, 100, 100}}, Model{}, []uint16{25600}},
		{Raw{1, 1, BGRA8, []byte{255, 0, 0, 9}}, Model{Mono8Scale: 1}, []uint16{29}},
		{Raw{1, 1, RGB64, rgb64}, Model{}, []uint16{1000}},
		{Raw{1, 2, Mono8, []byte{1, 2}}, Model{Mono8Scale: 1, FlipV: true}, []uint16{2, 1}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.raw.Layout), func(t *testing.T) {
			f, err := Decode(tt.raw, tt.m)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, f.Pix); diff != "" {
				t.Errorf("pixels mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode(Raw{Width: 4, Height: 4, Layout: Mono16LE, Data: make([]byte, 10)}, Model{})
	assert.Error(t, err)
}

func TestImRot90(t *testing.T) {
	// 3 wide, 2 tall
	in := []uint16{
		1, 2, 3,
		4, 5, 6}
	want := []uint16{
		4, 1,
		5, 2,
		6, 3}
	if diff := cmp.Diff(want, ImRot90(in, 3, 2)); diff != "" {
		t.Error(diff)
	}
	if diff := cmp.Diff([]uint16{6, 5, 4, 3, 2, 1}, ImRot180(in, 3, 2)); diff != "" {
		t.Error(diff)
	}
	FlipH(in, 3, 2)
	if diff := cmp.Diff([]uint16{3, 2, 1, 6, 5, 4}, in); diff != "" {
		t.Error(diff)
	}
}

func TestOrient(t *testing.T) {
	f := imgrec.Frame{Width: 3, Height: 2, Pix: []uint16{1, 2, 3, 4, 5, 6}}
	g := Orient(f, false, 270)
	assert.Equal(t, 2, g.Width)
	assert.Equal(t, 3, g.Height)
	if diff := cmp.Diff([]uint16{3, 6, 2, 5, 1, 4}, g.Pix); diff != "" {
		t.Error(diff)
	}
	f = imgrec.Frame{Width: 3, Height: 2, Pix: []uint16{1, 2, 3, 4, 5, 6}}
	g = Orient(f, true, 0)
	if diff := cmp.Diff([]uint16{3, 2, 1, 6, 5, 4}, g.Pix); diff != "" {
		t.Error(diff)
	}
}

func TestOpenRejectsOddRotation(t *testing.T) {
	b := NewMockBackend()
	c, _ := newTestController(b)
	s := DefaultSettings()
	s.Rotate = 45
	assert.Error(t, c.Open(basler, s))
	assert.False(t, b.IsOpen())
}

func imgrecMeta(idx int) imgrec.Meta {
	return imgrec.Meta{Index: idx, Axes: []string{"x", "y"}, Position: []float64{1, 2}}
}
