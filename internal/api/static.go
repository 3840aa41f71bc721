package api

import (
	"net/http"
	"os"
	"path/filepath"
)

// StaticHandler serves the docs UI assets from ./static when present. The
// assets are optional; without them /docs still works via CDN and /console
// renders unstyled.
func (s *Server) StaticHandler(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(r.URL.Path)
	switch name {
	case "redoc.standalone.js", "swagger-ui-bundle.js", "swagger-ui-standalone-preset.js", "swagger-ui.css":
		p := filepath.Join("static", name)
		if _, err := os.Stat(p); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, p)
	default:
		http.NotFound(w, r)
	}
}
