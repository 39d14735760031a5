package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract shared by every
// component in the tool.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

const redactedPlaceholder = "[REDACTED]"

var (
	rootInstance *rootLogger
	rootOnce     sync.Once
)

type rootLogger struct {
	mu     sync.Mutex
	file   *os.File
	out    *log.Logger
	level  Level
	stderr bool
}

// componentLogger scopes log lines to a named component while sharing the
// root sink.
type componentLogger struct {
	root      *rootLogger
	component string
}

func root() *rootLogger {
	rootOnce.Do(func() {
		rootInstance = &rootLogger{level: LevelInfo, stderr: true}
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		path := filepath.Join(home, ".apivault", "apivault-debug.log")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		rootInstance.file = file
		rootInstance.out = log.New(file, "", 0)
	})
	return rootInstance
}

// SetLevel sets the minimum level emitted by all component loggers.
func SetLevel(level Level) {
	r := root()
	r.mu.Lock()
	r.level = level
	r.mu.Unlock()
}

// SetQuiet suppresses the stderr mirror; the debug log file keeps receiving
// every line.
func SetQuiet(quiet bool) {
	r := root()
	r.mu.Lock()
	r.stderr = !quiet
	r.mu.Unlock()
}

// NewComponentLogger returns the process-wide logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{root: root(), component: component}
}

func (l *componentLogger) log(level Level, format string, args ...any) {
	r := l.root
	r.mu.Lock()
	defer r.mu.Unlock()
	if level < r.level {
		return
	}

	component := l.component
	if component == "" {
		component = "apivault"
	}
	line := fmt.Sprintf("%s [%s] [%s] %s",
		time.Now().Format("2006-01-02 15:04:05"),
		level, component,
		fmt.Sprintf(format, args...))
	line = sanitizeLine(line)

	if r.out != nil {
		r.out.Print(line)
	}
	if r.stderr {
		fmt.Fprintln(os.Stderr, line)
	}
}

func (l *componentLogger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger { return nopLogger{} }

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

// Log lines never carry live credentials even when callers format whole
// structs into a message. This is a last line of defense behind
// internal/guard, not a replacement for it.
var (
	bearerPattern   = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-._~+/]+=*)`)
	keyValuePattern = regexp.MustCompile(
		`(?i)((?:"|')?(?:api[_-]?key|apikey|access[_-]?token|refresh[_-]?token|secret|password|credential)(?:"|')?\s*[:=]\s*)(?:"|')?([^"'\s,;]+)((?:"|')?)`)
	knownTokenPattern = regexp.MustCompile(
		`(?i)(sk-[A-Za-z0-9\-_]{16,}|ghp_[A-Za-z0-9]{16,}|glpat-[A-Za-z0-9\-_]{16,}|xox[a-z]-[A-Za-z0-9\-]{10,}|AKIA[0-9A-Z]{16})`)
)

func sanitizeLine(line string) string {
	sanitized := keyValuePattern.ReplaceAllStringFunc(line, func(match string) string {
		parts := keyValuePattern.FindStringSubmatch(match)
		if len(parts) != 4 {
			return match
		}
		return parts[1] + redactedPlaceholder + parts[3]
	})
	sanitized = bearerPattern.ReplaceAllStringFunc(sanitized, func(match string) string {
		parts := bearerPattern.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		return parts[1] + redactedPlaceholder
	})
	return knownTokenPattern.ReplaceAllString(sanitized, redactedPlaceholder)
}
