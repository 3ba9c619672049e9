//go:build !pylon

package basler

import "github.com/fpscan/fpscan/camera"

// New returns a backend that fails at Open
func New(m camera.Model) (camera.Backend, error) {
	return nil, ErrNotBuilt
}
