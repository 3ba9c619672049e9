// Package server contains misc server utilities.
package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
)

// ReplyWithFile serves the file fn from the folder fldr.  fn must be a bare
// file name; anything with a directory component is answered 400.
func ReplyWithFile(w http.ResponseWriter, r *http.Request, fn string, fldr string) {
	if fn == "" || fn != filepath.Base(fn) || fn == "." || fn == ".." {
		http.Error(w, fmt.Sprintf("%q is not a file name", fn), http.StatusBadRequest)
		return
	}
	filePath := filepath.Join(fldr, fn)
	f, err := os.Open(filePath)
	if err != nil {
		fstr := fmt.Sprintf("source file missing %s", filePath)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusNotFound)
		return
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		fstr := fmt.Sprintf("error retrieving source file stats %s", err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
		return
	}
	if stat.IsDir() {
		http.Error(w, fmt.Sprintf("%s is a directory", filePath), http.StatusBadRequest)
		return
	}
	// ServeContent sets the content type from the extension and handles ranges
	http.ServeContent(w, r, fn, stat.ModTime(), f)
}
