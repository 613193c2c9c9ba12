// Package monitoring carries the service-layer loggers shared by the store,
// API, and daemon wiring. The engine itself logs through its own package;
// these hooks cover everything around it.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Errorf is the package-level error logger for failures worth operator
// attention: store write errors, dropped analysis runs, shutdown faults.
// Defaults to log.Printf with an ERROR prefix; replace via SetErrorLogger.
var Errorf func(format string, v ...interface{}) = func(format string, v ...interface{}) {
	log.Printf("ERROR: "+format, v...)
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetErrorLogger replaces the error logger. Passing nil will set a no-op logger.
func SetErrorLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Errorf = func(string, ...interface{}) {}
		return
	}
	Errorf = f
}
