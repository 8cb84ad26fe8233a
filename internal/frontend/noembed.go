//go:build !embed

package frontend

import "net/http"

// Handler returns nil when the binary was built without -tags embed; the
// server then serves the dashboard from disk.
func Handler() http.Handler {
	return nil
}
