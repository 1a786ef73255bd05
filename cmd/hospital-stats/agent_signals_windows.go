//go:build windows

package main

import "os"

func connectivitySignals() map[os.Signal]bool { return nil }
