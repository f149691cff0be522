// Package web embeds the chart page.
package web

import (
	_ "embed"
	"net/http"
)

//go:embed index.html
var Index []byte

// Handler serves the chart page at the root path and 404 elsewhere.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write(Index)
	})
}
