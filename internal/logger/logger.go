package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Environment variables to configure the log destination and threshold.
const (
	envLogPath  = "WIKICACHE_LOG"
	envLogLevel = "WIKICACHE_LOG_LEVEL"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "INFO"
	}
	return levelNames[l]
}

// ParseLevel maps debug|info|warn|error to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var (
	mu      sync.Mutex
	std     *log.Logger
	logFile *os.File
	minimum = LevelInfo
)

// InitFromEnv initializes the logger using WIKICACHE_LOG or a default path.
// "-" or "stderr" logs to standard error.
func InitFromEnv() error {
	SetLevel(ParseLevel(os.Getenv(envLogLevel)))
	path := os.Getenv(envLogPath)
	switch path {
	case "-", "stderr":
		SetOutput(os.Stderr)
		return nil
	case "":
		// Default to the directory where the executable is located
		if exePath, err := os.Executable(); err == nil {
			path = filepath.Join(filepath.Dir(exePath), "wikicache.log")
		} else {
			path = "./wikicache.log"
		}
	}
	return Init(path)
}

// Init initializes the logger to write to the provided file path.
// It creates parent directories if needed and opens the file in append mode.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if std != nil {
		return nil
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = f
	std = newLogger(f)
	return nil
}

// SetOutput replaces the destination. A previously opened log file is closed.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	closeFileLocked()
	std = newLogger(w)
}

// SetLevel drops messages below l.
func SetLevel(l Level) {
	mu.Lock()
	minimum = l
	mu.Unlock()
}

// Close closes the underlying log file, if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	std = nil
	return closeFileLocked()
}

func Debugf(format string, args ...any) { write(LevelDebug, format, args...) }

// Infof logs informational messages.
func Infof(format string, args ...any) { write(LevelInfo, format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { write(LevelWarn, format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { write(LevelError, format, args...) }

func write(level Level, format string, args ...any) {
	mu.Lock()
	l, threshold := std, minimum
	mu.Unlock()
	if level < threshold {
		return
	}
	if l == nil {
		// Fallback: initialize with default if not already.
		_ = InitFromEnv()
		mu.Lock()
		l = std
		mu.Unlock()
	}
	if l != nil {
		l.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
	}
}

func newLogger(w io.Writer) *log.Logger {
	return log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds)
}

func closeFileLocked() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
