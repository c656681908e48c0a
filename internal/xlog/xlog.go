// Package xlog is the engine's ambient logging seam: a package-level
// *logrus.Logger every component logs through at Debug level only. This is
// a library embedded in someone else's process, so nothing here ever logs
// above Debug — callers decide what, if anything, surfaces.
package xlog

import "github.com/sirupsen/logrus"

// L is the logger components call into. Swap its output/level from the
// host application if the Debug-level trace of state transitions is
// wanted; it is silent (logrus default level Info, no Debug output) until
// then.
var L = logrus.New()

func init() {
	L.SetLevel(logrus.InfoLevel)
}

// Debugf logs a component-level trace message with structured fields.
func Debugf(fields logrus.Fields, format string, args ...interface{}) {
	L.WithFields(fields).Debugf(format, args...)
}
