// Package logx provides the process-wide structured logger used by
// cmd/zopflizip, internal/rezip and internal/zipcrc for the warning/error reporting
// spec.md §7 describes (recoverable per-entry failures are warnings;
// parse/IO failures that abort an archive are errors).
package logx

import "github.com/sirupsen/logrus"

// Log is the shared logger. CLI startup (cmd/zopflizip) configures its
// level from -v/-V; everything else just logs through it.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.WarnLevel)
	return l
}

// SetVerbosity maps the CLI's -v/-V flags onto logrus levels: neither set
// keeps warnings only, -v raises to Info, -V (verbose-more) raises to
// Debug.
func SetVerbosity(verbose, verboseMore bool) {
	switch {
	case verboseMore:
		Log.SetLevel(logrus.DebugLevel)
	case verbose:
		Log.SetLevel(logrus.InfoLevel)
	default:
		Log.SetLevel(logrus.WarnLevel)
	}
}
