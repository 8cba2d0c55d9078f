// Package rtlog is the host-side leveled logger used by cmd/aspen and
// internal/hostmod.
// It is deliberately separate from pkg/vm's own RuntimeError/Trace
// reporting: rtlog is for host/embedder diagnostics (module resolution,
// cache hits), never for aspen-level runtime errors,
// which travel as *vm.RuntimeError values instead.
package rtlog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level orders log severity, Debug being the most verbose.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "?"
	}
}

var levelColor = map[Level]*color.Color{
	Debug: color.New(color.FgHiBlack),
	Info:  color.New(color.FgCyan),
	Warn:  color.New(color.FgYellow),
	Error: color.New(color.FgRed, color.Bold),
}

// Logger writes leveled, colored lines to an underlying writer. The
// zero value is not usable; use New.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	module string // prefix identifying the subsystem, e.g. "modcache"
}

// New returns a Logger writing to w at minLevel, auto-wrapping w for
// color support if it's a terminal (colorable/isatty, matching the
// teacher's stack's own terminal-detection idiom rather than always
// stripping or always forcing color escapes).
func New(w io.Writer, minLevel Level, module string) *Logger {
	if f, ok := w.(*os.File); ok {
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			w = colorable.NewColorable(f)
		} else {
			w = colorable.NewNonColorable(f)
		}
	}
	return &Logger{out: w, level: minLevel, module: module}
}

// Default returns a Logger writing to stderr at Info level.
func Default(module string) *Logger { return New(os.Stderr, Info, module) }

// With returns a Logger sharing this one's writer and level but
// scoped to a different module prefix — used when a subsystem hands a
// sub-component its own tag (e.g. rtlog.Default("hostmod").With("fs")).
func (l *Logger) With(module string) *Logger {
	return &Logger{out: l.out, level: l.level, module: module}
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c := levelColor[level]
	prefix := c.Sprintf("[%-5s]", level.String())
	msg := fmt.Sprintf(format, args...)
	if level == Error {
		// One call frame of context (skipping this method and the
		// level-specific wrapper) — enough to point at the offending
		// call site without dumping a full trace for routine errors.
		call := stack.Caller(2)
		fmt.Fprintf(l.out, "%s %s: %s (%n at %s)\n", prefix, l.module, msg, call, call)
		return
	}
	fmt.Fprintf(l.out, "%s %s: %s\n", prefix, l.module, msg)
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.log(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.log(Info, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.log(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(Error, format, args...) }
