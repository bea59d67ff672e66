package sqlitefile

// Logger is the injected logging sink used to report non-fatal conditions,
// such as a malformed schema row being skipped during bootstrap, or an
// index being dropped because its table no longer exists. The core never
// requires a concrete logging library; callers that want leveled, formatted
// output wire one in (see cmd/sqlitefile for a logrus-backed example).
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// noopLogger discards everything. It is the default Logger for a DB opened
// without WithLogger.
type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}
