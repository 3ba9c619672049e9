//go:build !pylon

package basler

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/fpscan/fpscan/camera"
)

func TestStubFailsAtOpen(t *testing.T) {
	c := camera.NewController(log.New(&bytes.Buffer{}, "", 0))
	err := c.Open("Basler daA3840-45um", camera.DefaultSettings())
	if !errors.Is(err, ErrNotBuilt) {
		t.Errorf("expected ErrNotBuilt, got %v", err)
	}
}
