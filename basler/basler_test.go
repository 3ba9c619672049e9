package basler

import (
	"testing"

	"github.com/fpscan/fpscan/camera"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutFor(t *testing.T) {
	l, err := layoutFor("Mono12")
	require.NoError(t, err)
	assert.Equal(t, camera.Mono16LE, l)
	l, err = layoutFor("Mono8")
	require.NoError(t, err)
	assert.Equal(t, camera.Mono8, l)
	_, err = layoutFor("Mono12p")
	assert.Error(t, err)
	_, err = layoutFor("YCbCr422_8")
	assert.Error(t, err)
}

func TestDecodeOptions(t *testing.T) {
	o, err := decodeOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, "Linear", o.ContrastMode)

	o, err = decodeOptions(map[string]interface{}{"Width": "1920", "OffsetY": 8, "ContrastMode": "SCurve"})
	require.NoError(t, err)
	assert.Equal(t, Options{Width: 1920, OffsetY: 8, ContrastMode: "SCurve"}, o)
}
