// Package motion provides an HTTP interface to a multi-axis stage
package motion

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/fpscan/fpscan/generichttp"
	"github.com/go-chi/chi"
)

// Stage is the set of stage operations exposed over HTTP
type Stage interface {
	Mover
	Stopper

	// Names lists the connected axes
	Names() []string

	// Rename changes the name of an axis
	Rename(old, new string)
}

// HTTPStage wraps a stage in an HTTP interface.  Every route holds Mu for
// the duration of the device call.
type HTTPStage struct {
	Stage Stage

	// Mu serializes access to the hardware, it may be shared with other wrappers
	Mu *sync.Mutex

	RouteTable generichttp.RouteTable
}

// NewHTTPStage returns a new HTTP wrapper.  mu may be nil.
func NewHTTPStage(s Stage, mu *sync.Mutex) HTTPStage {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	h := HTTPStage{Stage: s, Mu: mu, RouteTable: generichttp.RouteTable{}}
	rt := h.RouteTable
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/axes"}] = h.serial(Axes(s))
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/rename"}] = h.serial(h.known(Rename(s)))
	HTTPMove(s, rt, h.serial, h.known)
	HTTPStop(s, rt, h.serial, h.known)
	return h
}

// RT satisfies generichttp.HTTPer
func (h HTTPStage) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h HTTPStage) serial(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Mu.Lock()
		defer h.Mu.Unlock()
		next(w, r)
	}
}

// known responds 404 if the axis of the route is not connected
func (h HTTPStage) known(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		for _, n := range h.Stage.Names() {
			if n == axis {
				next(w, r)
				return
			}
		}
		http.Error(w, "axis "+axis+" not found", http.StatusNotFound)
	}
}

// Axes returns an HTTP handler func that lists the axes of a stage as a JSON array
func Axes(s Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.Reply(w, s.Names())
	}
}

// Rename returns an HTTP handler func that renames an axis to the {'str': value} in the body
func Rename(s Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		str := generichttp.StrT{}
		err := json.NewDecoder(r.Body).Decode(&str)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if str.Str == "" {
			http.Error(w, "new axis name is empty", http.StatusBadRequest)
			return
		}
		s.Rename(axis, str.Str)
		w.WriteHeader(http.StatusOK)
	}
}
