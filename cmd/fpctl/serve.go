package main

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/fpscan/fpscan/camera"
	"github.com/fpscan/fpscan/generichttp"
	ghcamera "github.com/fpscan/fpscan/generichttp/camera"
	ghmotion "github.com/fpscan/fpscan/generichttp/motion"
	"github.com/fpscan/fpscan/imgrec"
	"github.com/fpscan/fpscan/motion"
	"github.com/fpscan/fpscan/scan"
	"github.com/fpscan/fpscan/server/middleware/locker"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

// rig gathers the routes of the stage, camera and scan wrappers into one table
type rig struct {
	table generichttp.RouteTable
}

func (r rig) RT() generichttp.RouteTable {
	return r.table
}

func (r rig) add(h generichttp.HTTPer) {
	for k, v := range h.RT() {
		r.table[k] = v
	}
}

// BuildMux serves the stage, camera and scans from one router.  Every device
// call holds one mutex; a running scan holds the lock, which answers other
// routes with 423 until it finishes.
func BuildMux(c Config, s *motion.Stage, cam *camera.Controller) chi.Router {
	mu := &sync.Mutex{}
	lock := locker.New("/scan", "/endpoints")

	stage := ghmotion.NewHTTPStage(s, mu)
	limiter := &ghmotion.LimitMiddleware{Limits: s.Config.Limits, Mov: s, Mu: mu}
	limiter.Inject(stage)

	rec := &imgrec.Recorder{Root: c.RecordRoot, Prefix: "cam", Ext: c.Scan.Ext}
	cm := ghcamera.NewHTTPCamera(cam, rec, mu)

	d := scan.Driver{
		Stage:         s,
		Camera:        cam,
		Axes:          c.Scan.Axes,
		Origin:        c.Scan.Origin,
		OutDir:        c.Scan.OutDir,
		Ext:           c.Scan.Ext,
		SettleMove:    c.Scan.SettleMove,
		SettleCapture: c.Scan.SettleCapture,
		Logger:        log.Default()}
	scans := scan.NewHTTPScan(d, c.Scan.Params, mu, lock)

	all := rig{table: generichttp.RouteTable{}}
	all.add(stage)
	all.add(cm)
	all.add(scans)
	locker.Inject(all, lock)

	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Use(lock.Check)
	root.Use(limiter.Check)
	all.RT().Bind(root)
	return root
}

func serve(c Config) error {
	ctx := context.Background()
	s, err := openStage(ctx, c)
	if err != nil {
		return err
	}
	defer s.Close(ctx)
	cam, err := openCamera(c)
	if err != nil {
		return err
	}
	defer cam.Close()
	mux := BuildMux(c, s, cam)
	log.Println("now listening for requests at ", c.Addr)
	return http.ListenAndServe(c.Addr, mux)
}
