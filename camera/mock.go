package camera

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MockBackend is a camera that produces synthetic Mono16LE frames.
// Frame k (0-based, counting the warm-up frame) has every pixel equal to
// Base + k*Step plus its own index modulo 16.
type MockBackend struct {
	sync.Mutex

	Width  int
	Height int
	Base   uint16
	Step   uint16

	// FailAt and TimeoutAt make the grab with that 1-based count fail; zero disables
	FailAt    int
	TimeoutAt int

	open     bool
	grabs    int
	settings Settings
	exposure time.Duration
}

// NewMockBackend returns a 64x48 mock camera
func NewMockBackend() *MockBackend {
	return &MockBackend{Width: 64, Height: 48, Base: 1000, Step: 10}
}

// MockFactory returns a factory that always hands out b
func MockFactory(b *MockBackend) Factory {
	return func(Model) (Backend, error) { return b, nil }
}

// Open marks the camera open
func (m *MockBackend) Open() error {
	m.Lock()
	defer m.Unlock()
	m.open = true
	return nil
}

// Configure records the settings
func (m *MockBackend) Configure(s Settings) error {
	m.Lock()
	defer m.Unlock()
	m.settings = s
	m.exposure = s.Exposure
	return nil
}

// SetExposure records the exposure
func (m *MockBackend) SetExposure(d time.Duration) error {
	m.Lock()
	defer m.Unlock()
	if !m.open {
		return ErrNotOpen
	}
	m.exposure = d
	return nil
}

// Grab returns the next synthetic frame
func (m *MockBackend) Grab(timeout time.Duration) (Raw, error) {
	m.Lock()
	defer m.Unlock()
	if !m.open {
		return Raw{}, ErrNotOpen
	}
	m.grabs++
	if m.grabs == m.TimeoutAt {
		return Raw{}, errors.Wrapf(ErrGrabTimeout, "after %v", timeout)
	}
	if m.grabs == m.FailAt {
		return Raw{}, errors.Wrap(ErrGrabFailed, "mock dropped frame")
	}
	k := uint16(m.grabs - 1)
	data := make([]byte, 2*m.Width*m.Height)
	for i := 0; i < m.Width*m.Height; i++ {
		binary.LittleEndian.PutUint16(data[2*i:], m.Base+k*m.Step+uint16(i%16))
	}
	return Raw{Width: m.Width, Height: m.Height, Layout: Mono16LE, Data: data}, nil
}

// Close marks the camera closed
func (m *MockBackend) Close() error {
	m.Lock()
	defer m.Unlock()
	m.open = false
	return nil
}

// Grabs is the number of grabs attempted
func (m *MockBackend) Grabs() int {
	m.Lock()
	defer m.Unlock()
	return m.grabs
}

// IsOpen returns true between Open and Close
func (m *MockBackend) IsOpen() bool {
	m.Lock()
	defer m.Unlock()
	return m.open
}

// Settings returns the settings last applied
func (m *MockBackend) Settings() Settings {
	m.Lock()
	defer m.Unlock()
	return m.settings
}

// Exposure returns the exposure last applied
func (m *MockBackend) Exposure() time.Duration {
	m.Lock()
	defer m.Unlock()
	return m.exposure
}
