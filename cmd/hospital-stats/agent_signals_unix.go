//go:build !windows

package main

import (
	"os"
	"syscall"
)

// connectivitySignals maps SIGUSR1 to an online hint and SIGUSR2 to an
// offline one.
func connectivitySignals() map[os.Signal]bool {
	return map[os.Signal]bool{
		syscall.SIGUSR1: true,
		syscall.SIGUSR2: false,
	}
}
