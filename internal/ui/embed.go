// Package ui embeds the browser dashboard: board, projects, team and QA
// views driven by the REST API and the live change stream.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// reserved prefixes belong to the API server; the SPA never answers them.
var reserved = []string{"api/", "files/", "healthz"}

// DistFS returns the embedded dist/ filesystem with the "dist" prefix stripped.
func DistFS() (fs.FS, error) {
	return fs.Sub(distFS, "dist")
}

// Handler serves the dashboard. Existing files are served with a short
// cache lifetime, extensionless paths are client-side routes answered with
// index.html, and API paths that reach it are 404s.
func Handler() (http.Handler, error) {
	sub, err := DistFS()
	if err != nil {
		return nil, err
	}
	files := http.FileServerFS(sub)

	index := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFileFS(w, r, sub, "index.html")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		p := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if p == "" {
			index(w, r)
			return
		}
		for _, prefix := range reserved {
			if strings.HasPrefix(p, prefix) {
				http.NotFound(w, r)
				return
			}
		}

		if info, err := fs.Stat(sub, p); err == nil && !info.IsDir() {
			w.Header().Set("Cache-Control", "public, max-age=300")
			files.ServeHTTP(w, r)
			return
		}
		if path.Ext(p) != "" {
			http.NotFound(w, r)
			return
		}
		index(w, r)
	}), nil
}
