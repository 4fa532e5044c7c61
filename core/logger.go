package core

// Logger is any leveled logging service.
// Implementations accept trailing args of arbitrary types; errors and
// map[string]interface{} args are given structured treatment where the
// backend supports it.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
