// Package camera provides an HTTP interface to a camera
package camera

import (
	"encoding/json"
	"fmt"
	"go/types"
	"image"
	"image/jpeg"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fpscan/fpscan/generichttp"
	"github.com/fpscan/fpscan/imgrec"
)

// PictureTaker describes an interface to a camera which can capture images
type PictureTaker interface {
	// Grab acquires one frame
	Grab() (imgrec.Frame, error)

	// CaptureAveraged returns the mean of n frames at an exposure time, zero keeps the current one
	CaptureAveraged(int, time.Duration) (*imgrec.Averaged, error)

	// SetExposure sets the exposure time
	SetExposure(time.Duration) error

	// Exposure gets the exposure time
	Exposure() time.Duration

	// Model is the camera model name
	Model() string
}

// HTTPCamera wraps a camera in an HTTP interface
type HTTPCamera struct {
	PictureTaker

	// Mu serializes access to the hardware, it may be shared with other wrappers
	Mu *sync.Mutex

	// Recorder, if not nil and enabled, also writes served frames to disk
	Recorder *imgrec.Recorder

	RouteTable generichttp.RouteTable
}

// NewHTTPCamera returns a new HTTP wrapper.  mu and rec may be nil.
func NewHTTPCamera(p PictureTaker, rec *imgrec.Recorder, mu *sync.Mutex) HTTPCamera {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	h := HTTPCamera{PictureTaker: p, Mu: mu, Recorder: rec, RouteTable: generichttp.RouteTable{}}
	rt := h.RouteTable
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/camera/exposure-time"}] = h.serial(GetExposureTime(p))
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/camera/exposure-time"}] = h.serial(SetExposureTime(p))
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/camera/model"}] = generichttp.GetString(func() (string, error) { return p.Model(), nil })
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/camera/frame"}] = h.serial(GetFrame(p, rec))
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/camera/average"}] = h.serial(Average(p))
	if rec != nil {
		imgrec.HTTPWrapper{Recorder: rec, Mu: mu}.Inject(h)
	}
	return h
}

// RT satisfies generichttp.HTTPer
func (h HTTPCamera) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h HTTPCamera) serial(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Mu.Lock()
		defer h.Mu.Unlock()
		next(w, r)
	}
}

// parseExposure parses a time.ParseDuration string, bare numbers are seconds
func parseExposure(s string) (time.Duration, error) {
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		s += "s"
	}
	return time.ParseDuration(s)
}

// SetExposureTime sets the exposure time on a POST request.
// it can be provided either as a query parameter exposureTime, formatted in a
// way that is parseable by golang/time.ParseDuration, or a json payload with
// key f64, holding the exposure time in seconds.
func SetExposureTime(p PictureTaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		texp := r.URL.Query().Get("exposureTime")
		var d time.Duration
		var err error
		if texp == "" {
			f := generichttp.FloatT{}
			err = json.NewDecoder(r.Body).Decode(&f)
			defer r.Body.Close()
			d = time.Duration(f.F64 * 1e9)
		} else {
			d, err = parseExposure(texp)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = p.SetExposure(d)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetExposureTime returns the exposure time in seconds on a GET request
func GetExposureTime(p PictureTaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hp := generichttp.HumanPayload{T: types.Float64, Float: p.Exposure().Seconds()}
		hp.EncodeAndRespond(w, r)
	}
}

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"png":  "image/png",
	"tiff": "image/tiff",
	"fits": "image/fits",
	"npy":  "application/octet-stream",
}

func setContentType(w http.ResponseWriter, format string) {
	hdr := w.Header()
	hdr.Set("Content-Type", contentTypes[format])
	hdr.Set("Content-Disposition", fmt.Sprintf("attachment; filename=image.%s", format))
}

// jpg is a preview, scaled down to 8 bits
func encodeJPG(w http.ResponseWriter, f imgrec.Frame) error {
	buf := make([]byte, len(f.Pix))
	for idx, v := range f.Pix {
		buf[idx] = byte(v / 256)
	}
	im := &image.Gray{Pix: buf, Stride: f.Width, Rect: image.Rect(0, 0, f.Width, f.Height)}
	return jpeg.Encode(w, im, nil)
}

// GetFrame takes a picture and returns it on a GET request.
//
// the image format may be specified in the fmt query parameter, one of
// jpg, png, tiff, fits or npy; default to png
//
// the exposure time may be specified as a query parameter exposureTime in any
// time-looking format, such as "25ms" or "10us".  A bare number is seconds.
// If no exposure time is provided, the existing value is used.
//
// If the recorder is enabled, the frame is also written to disk.
func GetFrame(p PictureTaker, rec *imgrec.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if texp := q.Get("exposureTime"); texp != "" {
			d, err := parseExposure(texp)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err = p.SetExposure(d); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		format := q.Get("fmt")
		if format == "" {
			format = "png"
		}
		if _, ok := contentTypes[format]; !ok {
			http.Error(w, fmt.Sprintf("unknown image format %q", format), http.StatusBadRequest)
			return
		}
		f, err := p.Grab()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rec != nil && rec.Enabled && rec.Root != "" {
			if _, err = rec.Save(f); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		setContentType(w, format)
		if format == "jpg" {
			err = encodeJPG(w, f)
		} else {
			err = imgrec.Encode(w, f, format)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// AverageRequest is the body of an average request
type AverageRequest struct {
	// Frames is the number of frames in the mean
	Frames int `json:"frames"`

	// ExposureTime in seconds, zero keeps the current value
	ExposureTime float64 `json:"exposureTime"`

	// Fmt is the output format, npy or fits keep full precision.  Default fits.
	Fmt string `json:"fmt"`
}

// Average returns an HTTP handler func that captures the mean of several
// frames and returns it
func Average(p PictureTaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := AverageRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Fmt == "" {
			req.Fmt = "fits"
		}
		if _, ok := contentTypes[req.Fmt]; !ok || req.Fmt == "jpg" {
			http.Error(w, fmt.Sprintf("unknown image format %q", req.Fmt), http.StatusBadRequest)
			return
		}
		avg, err := p.CaptureAveraged(req.Frames, time.Duration(req.ExposureTime*1e9))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		setContentType(w, req.Fmt)
		err = imgrec.EncodeAveraged(w, avg, req.Fmt)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
