// Package logging declares the minimal logging seam the protocol
// packages (framer, handshake, client) depend on, so that none of them
// import a concrete logging library directly. pkg/logger provides the
// logrus-backed implementation used by cmd/raknet-ping; tests and
// library callers that don't care about logs can pass Nop().
package logging

// Logger is the only logging surface the core packages see. Anything
// satisfying it — a logrus.Entry wrapper, a test spy, Nop — can be
// wired in.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }
