package motion

import (
	"context"
	"encoding/json"
	"go/types"
	"net/http"
	"strconv"

	"github.com/fpscan/fpscan/generichttp"
	fpmotion "github.com/fpscan/fpscan/motion"
	"github.com/go-chi/chi"
	"github.com/pkg/errors"
)

// httpStatus maps stage errors to a response code
func httpStatus(err error) int {
	var nf fpmotion.AxisNotFound
	switch {
	case errors.Is(err, fpmotion.ErrOutOfLimits):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Mover describes an interface with position-related methods for axes
type Mover interface {
	// Position gets the current position of an axis
	Position(string) (float64, error)

	// MoveTo moves axes to absolute positions and waits for them to arrive
	MoveTo(context.Context, []string, []float64) error

	// MoveRel moves an axis a relative amount and waits
	MoveRel(context.Context, string, float64) error

	// Home homes axes and waits
	Home(context.Context, ...string) error
}

type wrapper func(http.HandlerFunc) http.HandlerFunc

// HTTPMove adds routes for the mover to the route table
func HTTPMove(iface Mover, table generichttp.RouteTable, wrap ...wrapper) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/home"}] = chain(Home(iface), wrap)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/pos"}] = chain(GetPos(iface), wrap)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/pos"}] = chain(SetPos(iface), wrap)
}

// chain applies wrappers so that the first is outermost
func chain(h http.HandlerFunc, wrap []wrapper) http.HandlerFunc {
	for i := len(wrap) - 1; i >= 0; i-- {
		h = wrap[i](h)
	}
	return h
}

// GetPos returns an HTTP handler func from a mover that gets the position of an axis
func GetPos(m Mover) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		pos, err := m.Position(axis)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		hp := generichttp.HumanPayload{T: types.Float64, Float: pos}
		hp.EncodeAndRespond(w, r)
	}
}

func popAxisRelative(r *http.Request) (string, bool, error) {
	axis := chi.URLParam(r, "axis")
	relative := r.URL.Query().Get("relative")
	if relative == "" {
		relative = "false"
	}
	b, err := strconv.ParseBool(relative)
	return axis, b, err
}

// SetPos returns an HTTP handler func from a mover that triggers an absolute or
// relative move on an axis based on the relative query parameter
func SetPos(m Mover) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis, rel, err := popAxisRelative(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f := generichttp.FloatT{}
		err = json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if rel {
			err = m.MoveRel(r.Context(), axis, f.F64)
		} else {
			err = m.MoveTo(r.Context(), []string{axis}, []float64{f.F64})
		}
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Home returns an HTTP handler func from a mover that homes an axis
func Home(m Mover) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		err := m.Home(r.Context(), axis)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
