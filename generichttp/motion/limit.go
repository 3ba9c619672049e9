package motion

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"
	"sync"

	"github.com/fpscan/fpscan/generichttp"
	fpmotion "github.com/fpscan/fpscan/motion"
	"github.com/fpscan/fpscan/util"
	"github.com/go-chi/chi"
)

// Positioner can report the position of an axis
type Positioner interface {
	Position(string) (float64, error)
}

// LimitMiddleware is a type that can impose axis-specific limits on motion.
// A move that would violate a limit is answered with StatusBadRequest and
// never reaches the stage.
type LimitMiddleware struct {
	// Limits contains the server imposed limits, keyed by axis name
	Limits map[string]util.Limiter

	// Mov is used to query axis positions for relative moves
	Mov Positioner

	// Mu, if not nil, is held while querying Mov
	Mu *sync.Mutex
}

func (l *LimitMiddleware) position(axis string) (float64, error) {
	if l.Mu != nil {
		l.Mu.Lock()
		defer l.Mu.Unlock()
	}
	return l.Mov.Position(axis)
}

// Check verifies if a motion would violate the axis limit, if it exists,
// and if it does, responds with StatusBadRequest
// otherwise, flows control to the next handler
func (l *LimitMiddleware) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/pos") || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		// the middleware runs before routing, so the axis is taken from the path
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 3 {
			next.ServeHTTP(w, r)
			return
		}
		axis := parts[len(parts)-2]
		limiter, ok := l.Limits[axis]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		_, relative, err := popAxisRelative(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f := generichttp.FloatT{}
		// downstream handlers want the body too
		bodyContent, _ := ioutil.ReadAll(r.Body)
		r.Body.Close()
		r.Body = ioutil.NopCloser(bytes.NewBuffer(bodyContent))
		err = json.NewDecoder(bytes.NewReader(bodyContent)).Decode(&f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cmd := f.F64
		if relative {
			currPos, err := l.position(axis)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			cmd += currPos
		}
		if !limiter.Check(cmd) {
			http.Error(w, fpmotion.ErrOutOfLimits.Error(), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Inject places a /axis/{axis}/limits route on the table of the HTTPer
func (l *LimitMiddleware) Inject(h generichttp.HTTPer) {
	h.RT()[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/limits"}] = Limits(l)
}

// Limits returns an HTTP handler func that returns the limits for an axis,
// or null if it has none
func Limits(l *LimitMiddleware) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		lim, ok := l.Limits[axis]
		if !ok {
			generichttp.Reply(w, nil)
			return
		}
		generichttp.Reply(w, lim)
	}
}
