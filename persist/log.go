package persist

import (
	"log"
	"os"

	"github.com/contemptx/usenetsync-sub004/build"
)

// logFileFlags are the flags used when opening a log file.
const logFileFlags = os.O_WRONLY | os.O_CREATE | os.O_APPEND

// logFlags describe the content of each log line.
const logFlags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile | log.LUTC

// Logger is a wrapper for the standard library logger that enforces logging
// to a file with the universal logging settings, and that records startup and
// shutdown events.
type Logger struct {
	*log.Logger
	logFile *os.File
}

// NewLogger returns a logger that can be closed. Calls should not be made to
// the logger after 'Close' has been called.
func NewLogger(logFilename string) (*Logger, error) {
	logFile, err := os.OpenFile(logFilename, logFileFlags, 0660)
	if err != nil {
		return nil, err
	}
	logger := log.New(logFile, "", logFlags)
	logger.Output(2, "STARTUP: Logging has started. Version "+build.Version)
	return &Logger{logger, logFile}, nil
}

// Close terminates the Logger.
func (l *Logger) Close() error {
	l.Output(2, "SHUTDOWN: Logging has terminated.")
	return l.logFile.Close()
}

// Critical logs a message with a CRITICAL prefix. If debug mode is enabled,
// it will also panic.
func (l *Logger) Critical(v ...interface{}) {
	l.Output(2, "CRITICAL: "+sprintln(v...))
	build.Critical(v...)
}

// Severe logs a message with a SEVERE prefix.
func (l *Logger) Severe(v ...interface{}) {
	l.Output(2, "SEVERE: "+sprintln(v...))
	build.Severe(v...)
}

// Debug only logs the message when the build is a debug build.
func (l *Logger) Debug(v ...interface{}) {
	if build.DEBUG {
		l.Output(2, "DEBUG: "+sprintln(v...))
	}
}
