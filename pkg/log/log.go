package log

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

type LogLevel string

const (
	FatalLevel    LogLevel = "fatal"
	ErrorLevel    LogLevel = "error"
	WarningLevel  LogLevel = "warn"
	InfoLevel     LogLevel = "info"
	DebugLevel    LogLevel = "debug"
	TraceLevel    LogLevel = "trace"
	DisabledLevel LogLevel = "disabled"
)

var levelmap = map[LogLevel]int{
	TraceLevel:    5,
	DebugLevel:    4,
	InfoLevel:     3,
	WarningLevel:  2,
	ErrorLevel:    1,
	FatalLevel:    0,
	DisabledLevel: -1,
}

// Writes timestamped, leveled lines to an underlying logger.
// Warnings and errors go to stderr, everything else to stdout.
type sink struct {
	mu  sync.Mutex
	out *log.Logger
}

func (s *sink) println(level LogLevel, name string, args ...any) {
	ts := time.Now().Local()
	timeStr := fmt.Sprintf("%s.%03d", ts.Format("2006-01-02 15:04:05"), ts.Nanosecond()/1000000)
	levelStr := fmt.Sprintf("- %5s -", level)
	allArgs := []any{timeStr, levelStr}
	if name != "" {
		allArgs = append(allArgs, "["+name+"]")
	}
	allArgs = append(allArgs, args...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Println(allArgs...)
}

var (
	levelMu  sync.RWMutex
	level    = InfoLevel
	stdout   = &sink{out: log.New(os.Stdout, "", 0)}
	stderr   = &sink{out: log.New(os.Stderr, "", 0)}
	exitFunc = os.Exit
)

func SetLevel(loglevel LogLevel) error {
	if !ValidLogLevel(loglevel) {
		return fmt.Errorf("No such log level %s", loglevel)
	}

	levelMu.Lock()
	level = loglevel
	levelMu.Unlock()
	return nil
}

func GetLevel() LogLevel {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return level
}

// Redirect all output to w. Mostly useful in tests.
// A nil writer restores stdout and stderr.
func SetOutput(w io.Writer) {
	var out, errOut io.Writer = w, w
	if w == nil {
		out, errOut = os.Stdout, os.Stderr
	}

	stdout.mu.Lock()
	stdout.out = log.New(out, "", 0)
	stdout.mu.Unlock()

	stderr.mu.Lock()
	stderr.out = log.New(errOut, "", 0)
	stderr.mu.Unlock()
}

func ValidLogLevel(level LogLevel) bool {
	_, ok := levelmap[level]
	return ok
}

func ShouldLog(logLevel, enabled LogLevel) bool {
	if !ValidLogLevel(logLevel) || !ValidLogLevel(enabled) {
		return false
	}
	return levelmap[logLevel] <= levelmap[enabled]
}

// A named logger. Every line it writes is tagged with its name,
// e.g. the component or event range it belongs to.
type Logger struct {
	name string
}

// Returns a logger tagged with name.
func Named(name string) *Logger {
	return &Logger{name: name}
}

// Returns a child logger, tagged with both names.
func (l *Logger) Named(name string) *Logger {
	if l.name == "" {
		return Named(name)
	}
	return Named(l.name + "." + name)
}

func (l *Logger) Name() string {
	return l.name
}

func (l *Logger) Log(lvl LogLevel, args ...any) {
	if !ShouldLog(lvl, GetLevel()) {
		return
	}

	switch lvl {
	case WarningLevel, ErrorLevel, FatalLevel:
		stderr.println(lvl, l.name, args...)
	default:
		stdout.println(lvl, l.name, args...)
	}
}

func (l *Logger) Logf(lvl LogLevel, format string, args ...any) {
	if !ShouldLog(lvl, GetLevel()) {
		return
	}
	l.Log(lvl, fmt.Sprintf(format, args...))
}

func (l *Logger) Trace(args ...any)                 { l.Log(TraceLevel, args...) }
func (l *Logger) Debug(args ...any)                 { l.Log(DebugLevel, args...) }
func (l *Logger) Info(args ...any)                  { l.Log(InfoLevel, args...) }
func (l *Logger) Warn(args ...any)                  { l.Log(WarningLevel, args...) }
func (l *Logger) Error(args ...any)                 { l.Log(ErrorLevel, args...) }
func (l *Logger) Tracef(format string, args ...any) { l.Logf(TraceLevel, format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.Logf(DebugLevel, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.Logf(InfoLevel, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.Logf(WarningLevel, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.Logf(ErrorLevel, format, args...) }

// Print the error and every error it wraps, one per line.
func (l *Logger) DebugError(err error) {
	indent := 1

	l.Debug(err.Error())

	for {
		if err = errors.Unwrap(err); err == nil {
			break
		}

		l.Debugf("| %d: %s", indent, err.Error())
		indent += 1
	}
}

var root = &Logger{}

func Log(level LogLevel, msg string, args ...interface{}) {
	if len(args) > 0 {
		root.Logf(level, msg, args...)
	} else {
		root.Log(level, msg)
	}
}

func Trace(args ...interface{}) { root.Trace(args...) }
func Debug(args ...interface{}) { root.Debug(args...) }
func Info(args ...interface{})  { root.Info(args...) }
func Warn(args ...interface{})  { root.Warn(args...) }
func Error(args ...interface{}) { root.Error(args...) }

func Fatal(args ...interface{}) {
	root.Log(FatalLevel, args...)
	debug.PrintStack()
	exitFunc(1)
}

func Tracef(format string, args ...interface{}) { root.Tracef(format, args...) }
func Debugf(format string, args ...interface{}) { root.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { root.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { root.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { root.Errorf(format, args...) }

func Fatalf(format string, args ...interface{}) {
	root.Logf(FatalLevel, format, args...)
	debug.PrintStack()
	exitFunc(1)
}

func DebugError(err error) {
	root.DebugError(err)
}
