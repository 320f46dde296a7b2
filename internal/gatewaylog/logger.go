// Package gatewaylog is the shared Logger interface consumed by
// pkg/credential, pkg/allocator, and pkg/health, plus its two concrete
// implementations: a no-op default and a line-oriented stdlib logger.
//
// Grounded on the teacher's pkg/auth.Logger/DefaultLogger shape exactly
// (Debug/Info/Warn/Error, each variadic key-value fields), with a StdLogger
// added on top, grounded on the teacher's own log.Printf("Warning: ...")
// idiom seen throughout pkg/backend/server.go.
package gatewaylog

import (
	"fmt"
	"log"
)

// Logger is the structured-ish logging interface shared by the gateway's
// background collaborators. Each level takes a message plus an even-length
// list of key/value fields, mirroring the teacher's convention of passing
// loosely-typed field pairs rather than a dedicated structured-logging
// library.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// DefaultLogger discards everything. Used where no logger is configured.
type DefaultLogger struct{}

func (DefaultLogger) Debug(msg string, fields ...interface{}) {}
func (DefaultLogger) Info(msg string, fields ...interface{})  {}
func (DefaultLogger) Warn(msg string, fields ...interface{})  {}
func (DefaultLogger) Error(msg string, fields ...interface{}) {}

// StdLogger writes each call as one line via the standard library's "log"
// package, prefixed with its level.
type StdLogger struct{}

func (StdLogger) Debug(msg string, fields ...interface{}) { std("DEBUG", msg, fields...) }
func (StdLogger) Info(msg string, fields ...interface{})  { std("INFO", msg, fields...) }
func (StdLogger) Warn(msg string, fields ...interface{})  { std("WARN", msg, fields...) }
func (StdLogger) Error(msg string, fields ...interface{}) { std("ERROR", msg, fields...) }

func std(level, msg string, fields ...interface{}) {
	log.Printf("%s: %s%s", level, msg, formatFields(fields))
}

// formatFields renders a field list as " key=value key=value ...", silently
// dropping a trailing odd key with no value rather than panicking on a
// caller's mistake.
func formatFields(fields []interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	out := ""
	for i := 0; i+1 < len(fields); i += 2 {
		out += fmt.Sprintf(" %v=%v", fields[i], fields[i+1])
	}
	return out
}
