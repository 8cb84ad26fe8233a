//go:build embed

// Package frontend serves the dashboard assets.
package frontend

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFiles embed.FS

// Handler serves the dashboard compiled into the binary.
func Handler() http.Handler {
	dashboard, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// static/ is fixed at build time, so this only fails on a broken build.
		panic("frontend: " + err.Error())
	}
	return http.FileServer(http.FS(dashboard))
}
