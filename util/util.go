// Package util has process-wide logging switches.
package util

import (
	"log"
	"sync/atomic"
)

var logging atomic.Bool

// SetLogging turns Logf on or off.  Commands set it from their
// verbose flag.
func SetLogging(on bool) {
	logging.Store(on)
}

func Logging() bool {
	return logging.Load()
}

// Logf calls log.Printf if logging is on.
func Logf(format string, args ...interface{}) {
	if !logging.Load() {
		return
	}
	log.Printf(format, args...)
}
