package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpscan/fpscan/util"
	"github.com/knadh/koanf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTargets(t *testing.T) {
	names, pos, err := parseTargets([]string{"x=1000", "y=-250.5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, names)
	assert.Equal(t, []float64{1000, -250.5}, pos)

	for _, bad := range [][]string{nil, {"x"}, {"=3"}, {"x=up"}} {
		_, _, err = parseTargets(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestParseExposure(t *testing.T) {
	d, err := parseExposure("4ms")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Millisecond, d)
	d, err = parseExposure("0.25")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)
	_, err = parseExposure("long")
	assert.Error(t, err)
}

func TestBuildPatternDefault(t *testing.T) {
	p, err := buildPattern(DefaultConfig().Scan)
	require.NoError(t, err)
	assert.Len(t, p, 25)
	assert.Equal(t, []float64{0, 0}, p[0])
	assert.Equal(t, []float64{1000, 0}, p[1])
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fpctl.yml")
	body := "Mock: true\nScan:\n  NX: 3\n  SettleMove: 5ms\n  Params:\n    wavelen: 5.32e-07\n"
	require.NoError(t, ioutil.WriteFile(path, []byte(body), 0644))

	oldName, oldK := ConfigFileName, k
	defer func() { ConfigFileName, k = oldName, oldK }()
	ConfigFileName, k = path, koanf.New(".")
	setupconfig()
	c := loadConfig()

	assert.True(t, c.Mock)
	assert.Equal(t, 3, c.Scan.NX)
	assert.Equal(t, 5, c.Scan.NY)
	assert.Equal(t, 5*time.Millisecond, c.Scan.SettleMove)
	assert.Equal(t, 532e-9, c.Scan.Params.Wavelength)
	assert.Equal(t, 2e-6, c.Scan.Params.PixelPitch)
	assert.Equal(t, "MTS50-Z8", c.Stage.Part)
}

func TestMockBusLists(t *testing.T) {
	c := DefaultConfig()
	c.Mock = true
	c.Stage.Expected = 3
	devs, err := bus(c).List()
	require.NoError(t, err)
	require.Len(t, devs, 3)
	assert.Equal(t, "27000001", devs[0].Serial)
	assert.Equal(t, "KDC101", devs[0].Model)
}

func TestRootUsageListsEveryCommand(t *testing.T) {
	lines := strings.Split(rootUsage, "\n")
	listed := map[string]bool{}
	for _, l := range lines {
		if strings.HasPrefix(l, "\t") {
			listed[strings.TrimSpace(l)] = true
		}
	}
	for _, cmd := range []string{"run", "preview", "list", "info", "home", "move", "jog", "rename", "average", "hist", "serve", "help", "mkconf", "conf", "version"} {
		assert.True(t, listed[cmd], "%s missing from the usage", cmd)
	}
}

func TestStageInfoIdentifiesControllers(t *testing.T) {
	c := mockConfig(t)
	s, err := openStage(context.Background(), c)
	require.NoError(t, err)
	defer release(s)
	lines, err := stageInfo(s)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "x\t27000001 on mock"), lines[0])
	assert.Contains(t, lines[0], "KDC101")
	assert.Contains(t, lines[1], "27000002")
}

func mockConfig(t *testing.T) Config {
	c := DefaultConfig()
	c.Mock = true
	c.RecordRoot = t.TempDir()
	c.Scan.OutDir = filepath.Join(t.TempDir(), "scan")
	c.Scan.SettleMove, c.Scan.SettleCapture = 0, 0
	c.Stage.Motion.MaxVelocity = 20
	c.Stage.Motion.Limits = map[string]util.Limiter{"x": {Min: 0, Max: 50 * 34554.96}}
	return c
}

func TestBuildMuxServesRig(t *testing.T) {
	c := mockConfig(t)
	ctx := context.Background()
	s, err := openStage(ctx, c)
	require.NoError(t, err)
	defer release(s)
	cam, err := openCamera(c)
	require.NoError(t, err)
	defer cam.Close()
	srv := httptest.NewServer(BuildMux(c, s, cam))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/axes")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&names))
	resp.Body.Close()
	assert.Equal(t, []string{"x", "y"}, names)

	resp, err = http.Post(srv.URL+"/axis/x/pos", "application/json", bytes.NewBufferString(`{"f64": -5}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/endpoints")
	require.NoError(t, err)
	var eps []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&eps))
	resp.Body.Close()
	assert.Contains(t, eps, "POST /scan")
	assert.Contains(t, eps, "GET /camera/frame")
	assert.Contains(t, eps, "GET /axis/{axis}/limits")
	assert.Contains(t, eps, "POST /lock")
}

func TestLockBlocksDevicesButNotScanStatus(t *testing.T) {
	c := mockConfig(t)
	ctx := context.Background()
	s, err := openStage(ctx, c)
	require.NoError(t, err)
	defer release(s)
	cam, err := openCamera(c)
	require.NoError(t, err)
	defer cam.Close()
	srv := httptest.NewServer(BuildMux(c, s, cam))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/lock", "application/json", bytes.NewBufferString(`{"bool": true}`))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/axis/x/pos")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusLocked, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/scan")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/scan", "application/json", bytes.NewBufferString(`{"pattern": "raster", "nx": 2, "ny": 2}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
