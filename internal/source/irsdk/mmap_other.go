//go:build !windows

package irsdk

import "github.com/X-26-Race-Engineering/X-26-iSpotter/internal/source"

// The simulator only runs on Windows.
func openSharedMemory() (Mapping, error) {
	return nil, source.ErrNotConnected
}
