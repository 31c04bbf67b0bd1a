//go:build unix

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// triggerSignals delivers SIGUSR1 as a manual strategy trigger.
func triggerSignals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	return ch, func() { signal.Stop(ch) }
}
