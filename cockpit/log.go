package cockpit

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// ModeFlag is a log severity.
type ModeFlag uint32

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

var modeNames = []string{"debug", "info", "warning", "error", "critical", "silent"}

func (m ModeFlag) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint32(m))
}

// ParseLogMode returns the severity with the given name, e.g. "warning".
func ParseLogMode(s string) (ModeFlag, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == name {
			return ModeFlag(i), nil
		}
	}
	return InfoMode, fmt.Errorf("unknown log level %q, expected one of %s", s, strings.Join(modeNames, ", "))
}

// mode is the minimum severity logged by this process.  It is read by
// every request goroutine.
var mode atomic.Uint32

func init() {
	mode.Store(uint32(InfoMode))
}

// Logger provides a way for the application to log messages at different severities.
type Logger interface {
	// Debugf formats its arguments analogous to fmt.Printf and records the text as a log
	// message at Debug level.
	Debugf(format string, args ...interface{})

	// Infof is like Debugf, but at Info level.
	Infof(format string, args ...interface{})

	// Warningf is like Debugf, but at Warning level.
	Warningf(format string, args ...interface{})

	// Errorf is like Debugf, but at Error level.
	Errorf(format string, args ...interface{})

	// Criticalf is like Debugf, but at Critical level.
	Criticalf(format string, args ...interface{})

	// Shutdown makes sure logs are closed.
	Shutdown()
}

// SetLogMode sets the severity required for a log message to be printed.
// For example, SetLogMode(cockpit.WarningMode) will log any calls using
// Warningf, Errorf, or Criticalf.  To turn off all logging, use SilentMode.
func SetLogMode(newMode ModeFlag) {
	mode.Store(uint32(newMode))
}

// LogMode returns the current severity threshold.
func LogMode() ModeFlag {
	return ModeFlag(mode.Load())
}

// Logs returns true if messages of severity m are printed.
func Logs(m ModeFlag) bool {
	return LogMode() <= m
}

func Debugf(format string, args ...interface{}) {
	if Logs(DebugMode) {
		logger.Debugf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if Logs(InfoMode) {
		logger.Infof(format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if Logs(WarningMode) {
		logger.Warningf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Logs(ErrorMode) {
		logger.Errorf(format, args...)
	}
}

func Criticalf(format string, args ...interface{}) {
	if Logs(CriticalMode) {
		logger.Criticalf(format, args...)
	}
}

// Shutdown closes any log file in use.
func Shutdown() {
	logger.Shutdown()
}

// TimeLog appends the time elapsed since its creation to messages, e.g.
//
//	timedLog := NewTimeLog()
//	...
//	timedLog.Infof("Loaded %d maps", n)  // "Loaded 12 maps: 1.2s"
type TimeLog struct {
	start time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{time.Now()}
}

func (t TimeLog) suffixed(format string, args []interface{}) (string, []interface{}) {
	return format + ": %s\n", append(args, time.Since(t.start))
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	if Logs(DebugMode) {
		format, args = t.suffixed(format, args)
		logger.Debugf(format, args...)
	}
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	if Logs(InfoMode) {
		format, args = t.suffixed(format, args)
		logger.Infof(format, args...)
	}
}

func (t TimeLog) Warningf(format string, args ...interface{}) {
	if Logs(WarningMode) {
		format, args = t.suffixed(format, args)
		logger.Warningf(format, args...)
	}
}

func (t TimeLog) Errorf(format string, args ...interface{}) {
	if Logs(ErrorMode) {
		format, args = t.suffixed(format, args)
		logger.Errorf(format, args...)
	}
}

// Elapsed returns the time since the TimeLog was created.
func (t TimeLog) Elapsed() time.Duration {
	return time.Since(t.start)
}
