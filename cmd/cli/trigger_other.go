//go:build !unix

package main

import "os"

// triggerSignals is unsupported here; manual triggers never fire.
func triggerSignals() (<-chan os.Signal, func()) {
	return nil, func() {}
}
