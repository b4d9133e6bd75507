package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var presentationAssets embed.FS

// newPresentationPage serves the bundled call screen. Devices keep the page
// open for long periods, so it is never cached.
func newPresentationPage() http.Handler {
	sub, err := fs.Sub(presentationAssets, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	files := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		files.ServeHTTP(w, r)
	})
}
