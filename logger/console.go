package logger

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

const isWindows = runtime.GOOS == "windows"

var noColor = os.Getenv("TERM") == "dumb" ||
	(!isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()))

func color(val string) string {
	if isWindows || noColor {
		return ""
	}
	return val
}

const (
	reset  = "\033[0m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
	gray   = "\033[1;90m"
)

type consoleLogger struct {
	prefixes []string
	metadata map[string]interface{}
	logLevel LogLevel
}

var _ Logger = (*consoleLogger)(nil)

func (c *consoleLogger) clone() *consoleLogger {
	kv := make(map[string]interface{}, len(c.metadata))
	for k, v := range c.metadata {
		kv[k] = v
	}
	return &consoleLogger{
		prefixes: append([]string{}, c.prefixes...),
		metadata: kv,
		logLevel: c.logLevel,
	}
}

func (c *consoleLogger) With(metadata map[string]interface{}) Logger {
	clone := c.clone()
	for k, v := range metadata {
		clone.metadata[k] = v
	}
	return clone
}

func (c *consoleLogger) WithPrefix(prefix string) Logger {
	clone := c.clone()
	clone.prefixes = append(clone.prefixes, prefix)
	return clone
}

func (c *consoleLogger) IsLevelEnabled(level LogLevel) bool {
	return level >= c.logLevel
}

func (c *consoleLogger) write(level LogLevel, levelName, levelColor, msg string, args ...interface{}) {
	if !c.IsLevelEnabled(level) {
		return
	}
	var out strings.Builder
	out.WriteString(color(gray))
	out.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	out.WriteString(color(reset))
	out.WriteString(" ")
	out.WriteString(color(levelColor))
	out.WriteString(fmt.Sprintf("%-5s", levelName))
	out.WriteString(color(reset))
	out.WriteString(" ")
	if len(c.prefixes) > 0 {
		out.WriteString(color(cyan))
		out.WriteString(strings.Join(c.prefixes, " "))
		out.WriteString(color(reset))
		out.WriteString(" ")
	}
	out.WriteString(fmt.Sprintf(msg, args...))
	if len(c.metadata) > 0 {
		keys := make([]string, 0, len(c.metadata))
		for k := range c.metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out.WriteString(fmt.Sprintf(" %s%s=%v%s", color(gray), k, c.metadata[k], color(reset)))
		}
	}
	fmt.Fprintln(os.Stderr, out.String())
}

func (c *consoleLogger) Trace(msg string, args ...interface{}) {
	c.write(LevelTrace, "TRACE", gray, msg, args...)
}

func (c *consoleLogger) Debug(msg string, args ...interface{}) {
	c.write(LevelDebug, "DEBUG", green, msg, args...)
}

func (c *consoleLogger) Info(msg string, args ...interface{}) {
	c.write(LevelInfo, "INFO", cyan, msg, args...)
}

func (c *consoleLogger) Warn(msg string, args ...interface{}) {
	c.write(LevelWarn, "WARN", yellow, msg, args...)
}

func (c *consoleLogger) Error(msg string, args ...interface{}) {
	c.write(LevelError, "ERROR", red, msg, args...)
}

// NewConsole returns a Logger that writes human-readable lines to stderr.
func NewConsole(level LogLevel) Logger {
	return &consoleLogger{
		metadata: make(map[string]interface{}),
		logLevel: level,
	}
}
