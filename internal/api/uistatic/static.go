// Package uistatic serves the embedded browser console.
package uistatic

import (
	"embed"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:app
var consoleFS embed.FS

const indexFile = "index.html"

// Handler serves console assets and answers unknown non-API paths with the
// index page so client-side routes survive a reload. Unknown /v1/ paths get
// a JSON 404 instead of HTML.
func Handler() http.Handler {
	assets, err := fs.Sub(consoleFS, "app")
	if err != nil {
		return http.NotFoundHandler()
	}
	files := http.FileServer(http.FS(assets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		switch {
		case name == "." || name == indexFile:
			serveIndex(w, r, assets)
		case name == "v1" || strings.HasPrefix(name, "v1/"):
			routeNotFound(w)
		default:
			if _, err := fs.Stat(assets, name); err != nil {
				serveIndex(w, r, assets)
				return
			}
			w.Header().Set("Cache-Control", "public, max-age=300")
			files.ServeHTTP(w, r)
		}
	})
}

func serveIndex(w http.ResponseWriter, r *http.Request, assets fs.FS) {
	index, err := assets.Open(indexFile)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = index.Close() }()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = io.Copy(w, index)
}

func routeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, `{"error_code":"ROUTE_NOT_FOUND","message":"no such API route","retryable":false}`+"\n")
}
