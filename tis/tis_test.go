package tis

import (
	"testing"

	"github.com/fpscan/fpscan/camera"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutForBits(t *testing.T) {
	want := map[int]camera.Layout{8: camera.Mono8, 16: camera.Mono16LE, 24: camera.BGR8, 32: camera.BGRA8, 64: camera.RGB64}
	for bits, l := range want {
		got, err := layoutForBits(bits)
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
	_, err := layoutForBits(12)
	assert.Error(t, err)
}

func TestDecodeOptionsUsesModelFormat(t *testing.T) {
	m, err := camera.LookupModel("DFM 37UX226-ML")
	require.NoError(t, err)
	o, err := decodeOptions(m, nil)
	require.NoError(t, err)
	assert.Equal(t, "RGB64 (4000x3000)", o.VideoFormat)
	assert.Equal(t, "RGB24", o.ColorFormat)

	_, err = decodeOptions(m, map[string]interface{}{"ColorFormat": "MJPEG"})
	assert.Error(t, err)
}

func TestICError(t *testing.T) {
	assert.NoError(t, Error(1))
	assert.EqualError(t, Error(-2), "-2 - IC_NO_DEVICE")
}
