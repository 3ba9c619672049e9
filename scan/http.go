package scan

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/fpscan/fpscan/generichttp"
	"github.com/fpscan/fpscan/pattern"
	"github.com/fpscan/fpscan/server"
	"github.com/fpscan/fpscan/server/middleware/locker"
	"github.com/go-chi/chi"
)

// Request is the body of a POST /scan
type Request struct {
	// Pattern is raster, zigzag or spiral
	Pattern string `json:"pattern"`

	Nx int `json:"nx"`
	Ny int `json:"ny"`

	// Step is the grid spacing in device units
	Step float64 `json:"step"`

	Jitter pattern.Jitter `json:"jitter"`

	// OutDir overrides the scan directory of the driver
	OutDir string `json:"outDir"`
}

// Status describes the scan running in or last run by an HTTPScan
type Status struct {
	Running  bool   `json:"running"`
	Done     int    `json:"done"`
	Total    int    `json:"total"`
	RunID    string `json:"runID"`
	OutDir   string `json:"outDir"`
	Manifest string `json:"manifest"`
	Error    string `json:"error"`
}

// HTTPScan runs scans in the background on request.  While a scan runs the
// locker is held, so routes it protects answer 423.
type HTTPScan struct {
	// Driver is copied for each run
	Driver Driver

	// Params are written to new scan directories
	Params Params

	// Mu is held for the whole run
	Mu *sync.Mutex

	Lock *locker.Locker

	RouteTable generichttp.RouteTable

	state  *sync.Mutex
	status *Status
	cancel *context.CancelFunc
}

// NewHTTPScan returns a new HTTP scan runner.  The locker should not protect
// paths containing "scan".
func NewHTTPScan(d Driver, p Params, mu *sync.Mutex, l *locker.Locker) HTTPScan {
	var cancel context.CancelFunc
	h := HTTPScan{
		Driver:     d,
		Params:     p,
		Mu:         mu,
		Lock:       l,
		RouteTable: generichttp.RouteTable{},
		state:      &sync.Mutex{},
		status:     &Status{},
		cancel:     &cancel}
	h.RouteTable[generichttp.MethodPath{Method: http.MethodGet, Path: "/scan"}] = h.GetStatus
	h.RouteTable[generichttp.MethodPath{Method: http.MethodPost, Path: "/scan"}] = h.Start
	h.RouteTable[generichttp.MethodPath{Method: http.MethodDelete, Path: "/scan"}] = h.Cancel
	h.RouteTable[generichttp.MethodPath{Method: http.MethodGet, Path: "/scan/frame/{file}"}] = h.Frame
	return h
}

// RT satisfies generichttp.HTTPer
func (h HTTPScan) RT() generichttp.RouteTable {
	return h.RouteTable
}

// Status returns a copy of the current status
func (h HTTPScan) Status() Status {
	h.state.Lock()
	defer h.state.Unlock()
	return *h.status
}

// GetStatus returns the status as JSON
func (h HTTPScan) GetStatus(w http.ResponseWriter, r *http.Request) {
	generichttp.Reply(w, h.Status())
}

// Start begins a scan and replies 202 with its status, or 409 if one is running
func (h HTTPScan) Start(w http.ResponseWriter, r *http.Request) {
	req := Request{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := pattern.Generate(req.Pattern, req.Nx, req.Ny)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Step != 0 {
		p = pattern.Scale(p, req.Step)
	}
	p = req.Jitter.Apply(p)
	d := h.Driver
	if req.OutDir != "" {
		d.OutDir = req.OutDir
	}
	if d.OutDir == "" {
		http.Error(w, "no output directory", http.StatusBadRequest)
		return
	}
	if !h.Lock.TryLockAs("scan") {
		http.Error(w, "a scan is running or the server is locked", http.StatusConflict)
		return
	}
	if _, err = Prepare(d.OutDir, h.Params); err != nil {
		h.Lock.Unlock()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.state.Lock()
	*h.status = Status{Running: true, Total: len(p), OutDir: d.OutDir}
	*h.cancel = cancel
	h.state.Unlock()
	d.Progress = func(done, total int) {
		h.state.Lock()
		h.status.Done = done
		h.state.Unlock()
	}
	go h.run(ctx, cancel, d, p)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(h.Status())
}

// run owns the locker until the status of its scan is final.  The locker is
// released last so a following Start cannot have its status or cancel
// overwritten by this run.
func (h HTTPScan) run(ctx context.Context, cancel context.CancelFunc, d Driver, p pattern.Pattern) {
	h.Mu.Lock()
	res, err := d.Run(ctx, p)
	h.Mu.Unlock()
	cancel()
	h.state.Lock()
	h.status.Running = false
	h.status.RunID = res.RunID
	h.status.Manifest = res.Manifest
	if err != nil {
		h.status.Error = err.Error()
	}
	h.state.Unlock()
	h.Lock.Unlock()
}

// Cancel stops the running scan after its current point
func (h HTTPScan) Cancel(w http.ResponseWriter, r *http.Request) {
	h.state.Lock()
	if h.status.Running && *h.cancel != nil {
		(*h.cancel)()
	}
	h.state.Unlock()
	w.WriteHeader(http.StatusOK)
}

// Frame serves a frame file of the current or last scan by name
func (h HTTPScan) Frame(w http.ResponseWriter, r *http.Request) {
	st := h.Status()
	if st.OutDir == "" {
		http.Error(w, "no scan has run", http.StatusNotFound)
		return
	}
	server.ReplyWithFile(w, r, chi.URLParam(r, "file"), filepath.Join(st.OutDir, RawDir))
}
