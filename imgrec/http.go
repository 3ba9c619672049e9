package imgrec

import (
	"encoding/json"
	"go/types"
	"net/http"
	"sync"

	"github.com/fpscan/fpscan/generichttp"
)

// HTTPWrapper exposes the settings of a Recorder over HTTP
type HTTPWrapper struct {
	*Recorder

	// Mu guards the recorder, it is shared with the routes that save frames
	Mu *sync.Mutex
}

// Inject adds the autowrite routes to an HTTPer
func (h HTTPWrapper) Inject(other generichttp.HTTPer) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = h.GetRoot
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = h.SetRoot
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = h.GetPrefix
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = h.SetPrefix
	// GET and POST /autowrite read and set whether served frames are also written to disk
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite"}] = generichttp.GetBool(h.enabled)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite"}] = generichttp.SetBool(h.setEnabled)
}

func (h HTTPWrapper) str(w http.ResponseWriter, r *http.Request, s string) {
	hp := generichttp.HumanPayload{T: types.String, String: s}
	hp.EncodeAndRespond(w, r)
}

func (h HTTPWrapper) setStr(w http.ResponseWriter, r *http.Request, dst *string) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Mu.Lock()
	*dst = str.Str
	h.Mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// GetRoot returns the root folder of the recorder
func (h HTTPWrapper) GetRoot(w http.ResponseWriter, r *http.Request) {
	h.Mu.Lock()
	s := h.Root
	h.Mu.Unlock()
	h.str(w, r, s)
}

// SetRoot sets the root folder from {'str': value}
func (h HTTPWrapper) SetRoot(w http.ResponseWriter, r *http.Request) {
	h.setStr(w, r, &h.Root)
}

// GetPrefix returns the file name prefix of the recorder
func (h HTTPWrapper) GetPrefix(w http.ResponseWriter, r *http.Request) {
	h.Mu.Lock()
	s := h.Prefix
	h.Mu.Unlock()
	h.str(w, r, s)
}

// SetPrefix sets the file name prefix from {'str': value}
func (h HTTPWrapper) SetPrefix(w http.ResponseWriter, r *http.Request) {
	h.setStr(w, r, &h.Prefix)
}

func (h HTTPWrapper) enabled() (bool, error) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	return h.Enabled, nil
}

func (h HTTPWrapper) setEnabled(b bool) error {
	h.Mu.Lock()
	h.Enabled = b
	h.Mu.Unlock()
	return nil
}
