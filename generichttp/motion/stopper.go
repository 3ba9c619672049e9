package motion

import (
	"encoding/json"
	"net/http"

	"github.com/fpscan/fpscan/generichttp"
	"github.com/go-chi/chi"
)

// Stopper describes an interface with stop and jog methods for axes
type Stopper interface {
	// Stop aborts motion of the axis
	Stop(string) error

	// Jog starts a single jog step, forward if true
	Jog(string, bool) error
}

// HTTPStop adds routes for the stopper to the route table
func HTTPStop(iface Stopper, table generichttp.RouteTable, wrap ...wrapper) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/stop"}] = chain(Stop(iface), wrap)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/jog"}] = chain(Jog(iface), wrap)
}

// Stop returns an HTTP handler func that stops an axis
func Stop(s Stopper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		err := s.Stop(axis)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Jog returns an HTTP handler func that jogs an axis one step, in the
// direction given by {'bool': forward} in the body
func Jog(s Stopper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		b := generichttp.BoolT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = s.Jog(axis, b.Bool)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
