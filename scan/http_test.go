package scan

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fpscan/fpscan/server/middleware/locker"
	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPScanRunsInBackground(t *testing.T) {
	st := &fakeStage{refs: map[string]float64{"x": 0, "y": 0}}
	d := Driver{Stage: st, Camera: &fakeCamera{}, Axes: []string{"x", "y"}, Ext: "tiff"}
	l := locker.New("scan")
	h := NewHTTPScan(d, DefaultParams(), &sync.Mutex{}, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	h.RT().Bind(r)

	dir := filepath.Join(t.TempDir(), "run")
	body := `{"pattern": "zigzag", "nx": 2, "ny": 2, "step": 100, "outDir": "` + filepath.ToSlash(dir) + `"}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader(body)))
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool { return !h.Status().Running }, 5*time.Second, 10*time.Millisecond)
	s := h.Status()
	assert.Empty(t, s.Error)
	assert.Equal(t, 4, s.Done)
	assert.Equal(t, 4, s.Total)
	assert.NotEmpty(t, s.RunID)
	assert.False(t, l.Locked())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scan", nil))
	var got Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, s, got)

	m, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Len(t, m.Frames, 4)
	_, err = ReadParams(dir)
	assert.NoError(t, err)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scan/frame/"+path.Base(m.Frames[1].File), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Body.String())
}

func TestHTTPScanBackToBackRuns(t *testing.T) {
	st := &fakeStage{refs: map[string]float64{"x": 0, "y": 0}}
	d := Driver{Stage: st, Camera: &fakeCamera{}, Axes: []string{"x", "y"}, OutDir: t.TempDir(), Ext: "tiff"}
	l := locker.New("scan")
	h := NewHTTPScan(d, DefaultParams(), &sync.Mutex{}, l)
	start := func() {
		w := httptest.NewRecorder()
		h.Start(w, httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader(`{"pattern": "raster", "nx": 2, "ny": 1}`)))
		require.Equal(t, http.StatusAccepted, w.Code)
	}

	start()
	require.Eventually(t, func() bool { return !l.Locked() }, 5*time.Second, time.Millisecond)
	first := h.Status()
	assert.False(t, first.Running, "the status is final once the lock is free")
	assert.NotEmpty(t, first.RunID)

	start()
	require.Eventually(t, func() bool { return !l.Locked() }, 5*time.Second, time.Millisecond)
	second := h.Status()
	assert.False(t, second.Running)
	assert.Empty(t, second.Error)
	assert.Equal(t, 2, second.Done)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestHTTPScanFrameBeforeAnyRun(t *testing.T) {
	h := NewHTTPScan(Driver{}, DefaultParams(), &sync.Mutex{}, locker.New())
	w := httptest.NewRecorder()
	h.Frame(w, httptest.NewRequest(http.MethodGet, "/scan/frame/x.tiff", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHTTPScanConflictWhenLocked(t *testing.T) {
	l := locker.New("scan")
	l.Lock()
	h := NewHTTPScan(Driver{OutDir: t.TempDir()}, DefaultParams(), &sync.Mutex{}, l)
	w := httptest.NewRecorder()
	h.Start(w, httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader(`{"pattern": "raster", "nx": 1, "ny": 1}`)))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHTTPScanBadPattern(t *testing.T) {
	h := NewHTTPScan(Driver{OutDir: t.TempDir()}, DefaultParams(), &sync.Mutex{}, locker.New())
	w := httptest.NewRecorder()
	h.Start(w, httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader(`{"pattern": "hilbert", "nx": 1, "ny": 1}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
