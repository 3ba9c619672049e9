// Package locker provides an HTTP middleware that refuses requests with
// 423 (locked) while a lock is held, by a client through /lock or by a
// long running operation such as a scan.
package locker

import (
	"encoding/json"
	"go/types"
	"net/http"
	"strings"
	"sync"

	"github.com/fpscan/fpscan/generichttp"
)

// Inject adds GET and POST /lock to the route table of other
func Inject(other generichttp.HTTPer, l *Locker) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/lock"}] = l.HTTPGet
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/lock"}] = l.HTTPSet
}

// Locker is a non-blocking lock with a holder.  Paths containing one of
// DoNotProtect pass while it is held.
type Locker struct {
	mu     sync.Mutex
	holder string

	DoNotProtect []string
}

// New returns an unlocked Locker that never protects paths containing
// "lock" or any of doNotProtect
func New(doNotProtect ...string) *Locker {
	return &Locker{DoNotProtect: append([]string{"lock"}, doNotProtect...)}
}

// Lock takes the lock for an HTTP client, whoever holds it
func (l *Locker) Lock() {
	l.mu.Lock()
	l.holder = "client"
	l.mu.Unlock()
}

// TryLockAs takes the lock for holder if it is free and reports whether it did
func (l *Locker) TryLockAs(holder string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != "" {
		return false
	}
	l.holder = holder
	return true
}

// Unlock frees the lock
func (l *Locker) Unlock() {
	l.mu.Lock()
	l.holder = ""
	l.mu.Unlock()
}

// Holder returns who holds the lock, empty when it is free
func (l *Locker) Holder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

// Locked returns true while the lock is held
func (l *Locker) Locked() bool {
	return l.Holder() != ""
}

func (l *Locker) protects(path string) bool {
	for _, str := range l.DoNotProtect {
		if strings.Contains(path, str) {
			return false
		}
	}
	return true
}

// Check is an HTTP middleware answering protected paths with 423 and the holder while the lock is held
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := l.Holder(); h != "" && l.protects(r.URL.Path) {
			http.Error(w, "locked by "+h, http.StatusLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSet locks or unlocks per {"bool": value} in the body
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	b := generichttp.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&b)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.Bool {
		l.Lock()
	} else {
		l.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPGet replies with whether the lock is held
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	hp := generichttp.HumanPayload{T: types.Bool, Bool: l.Locked()}
	hp.EncodeAndRespond(w, r)
}
