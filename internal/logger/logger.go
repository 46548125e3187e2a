package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu sync.RWMutex
	// Debug flag to control debug logging
	debugEnabled = false

	debugLogger = log.New(os.Stdout, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
	infoLogger  = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	warnLogger  = log.New(os.Stderr, "WARN: ", log.Ldate|log.Ltime)
	errorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
)

// Init sets the debug level. Loggers are usable before Init is called.
func Init(debug bool) {
	mu.Lock()
	debugEnabled = debug
	mu.Unlock()

	if debug {
		Debug("Debug logging enabled")
	}
}

// SetOutput sends every level to w. Used by the CLI to keep stdout clean
// and by tests to capture output.
func SetOutput(w io.Writer) {
	debugLogger.SetOutput(w)
	infoLogger.SetOutput(w)
	warnLogger.SetOutput(w)
	errorLogger.SetOutput(w)
}

// Debug logs a debug message if debug mode is enabled
func Debug(format string, v ...interface{}) {
	if IsDebugEnabled() {
		debugLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	infoLogger.Output(2, fmt.Sprintf(format, v...))
}

// Warn logs a recoverable problem
func Warn(format string, v ...interface{}) {
	warnLogger.Output(2, fmt.Sprintf(format, v...))
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	errorLogger.Output(2, fmt.Sprintf(format, v...))
}

// IsDebugEnabled returns whether debug logging is enabled
func IsDebugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugEnabled
}
