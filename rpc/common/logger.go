package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboat's logger.ILogger)
// --------------------------------------------------------------------------

// output is shared by all package loggers so lines of concurrent writers
// never interleave
var output = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)

// SetLogOutput redirects every package logger to w
func SetLogOutput(w io.Writer) {
	output.SetOutput(w)
}

// vsignLogger prefixes each line with the level and the package name. The
// level may change while other goroutines log.
type vsignLogger struct {
	name  string
	level atomic.Int32
}

func (l *vsignLogger) SetLevel(level logger.LogLevel) {
	l.level.Store(int32(level))
}

func (l *vsignLogger) enabled(level logger.LogLevel) bool {
	return logger.LogLevel(l.level.Load()) >= level
}

func (l *vsignLogger) Debugf(format string, args ...interface{}) {
	l.logf(logger.DEBUG, "DEBUG", format, args)
}

func (l *vsignLogger) Infof(format string, args ...interface{}) {
	l.logf(logger.INFO, "INFO", format, args)
}

func (l *vsignLogger) Warningf(format string, args ...interface{}) {
	l.logf(logger.WARNING, "WARN", format, args)
}

func (l *vsignLogger) Errorf(format string, args ...interface{}) {
	l.logf(logger.ERROR, "ERROR", format, args)
}

// Panicf logs at CRITICAL and panics regardless of the level
func (l *vsignLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	output.Printf("%-5s | %-9s | %s", "PANIC", l.name, msg)
	panic(msg)
}

func (l *vsignLogger) logf(level logger.LogLevel, tag, format string, args []interface{}) {
	if !l.enabled(level) {
		return
	}
	output.Printf("%-5s | %-9s | %s", tag, l.name, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger is the logger factory installed by InitLoggers. Logs go to
// stderr so command output on stdout stays machine readable.
func CreateLogger(pkgName string) logger.ILogger {
	l := &vsignLogger{name: pkgName}
	l.SetLevel(logger.INFO)
	return l
}

// ParseLogLevel converts a level name (debug, info, warn, error) to a logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// loggerNames lists every logger the packages of this module register
var loggerNames = []string{"transport", "rpc", "client", "server", "bench", "signer", "sysmon"}

var installFactory sync.Once

// InitLoggers installs the custom logger factory (once) and sets the level of
// every package logger
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	// loggers created before this point keep the default factory, so
	// install it before any level is set
	installFactory.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})

	for _, name := range loggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
