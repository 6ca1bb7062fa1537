package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is a log severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical // security alerts: spoofed or unauthorized uplinks
	LevelSilent   // disables all output
)

type levelDesc struct {
	name    string
	color   string
	aliases []string
}

var levels = [...]levelDesc{
	LevelDebug:    {"DEBUG", "\033[90m", nil},
	LevelInfo:     {"INFO", "\033[34m", []string{""}},
	LevelWarn:     {"WARN", "\033[33m", []string{"WARNING"}},
	LevelError:    {"ERROR", "\033[31m", nil},
	LevelCritical: {"CRITICAL", "\033[1;31m", []string{"CRIT"}},
	LevelSilent:   {"SILENT", "", []string{"OFF", "NONE"}},
}

const colorReset = "\033[0m"

func (l Level) desc() (levelDesc, bool) {
	if l < 0 || int(l) >= len(levels) {
		return levelDesc{}, false
	}
	return levels[l], true
}

func (l Level) String() string {
	if d, ok := l.desc(); ok {
		return d.name
	}
	return "UNKNOWN"
}

// LookupLevel parses a level name, case-insensitively, and reports whether it
// was recognized. The empty string is LevelInfo.
func LookupLevel(s string) (Level, bool) {
	s = strings.ToUpper(s)
	for i, d := range levels {
		if s == d.name {
			return Level(i), true
		}
		for _, a := range d.aliases {
			if s == a {
				return Level(i), true
			}
		}
	}
	return LevelInfo, false
}

// ParseLevel is LookupLevel with unknown names mapped to LevelInfo.
func ParseLevel(s string) Level {
	level, _ := LookupLevel(s)
	return level
}

// Format is the entry encoding.
type Format int

const (
	FormatText Format = iota // console
	FormatJSON               // one object per line, for shipping telemetry
)

// LookupFormat parses "text" or "json". The empty string is FormatText.
func LookupFormat(s string) (Format, bool) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, true
	case "json":
		return FormatJSON, true
	}
	return FormatText, false
}

// Fields are structured entry attributes.
type Fields map[string]interface{}

// sink is the output shared by a logger and every logger derived from it.
// Entries are written whole under mu so concurrent bus workers never
// interleave lines.
type sink struct {
	mu    sync.Mutex
	w     io.Writer
	level atomic.Int32
	now   func() time.Time
}

// Logger writes leveled, structured entries. The zero value is not usable;
// build one with NewLogger.
type Logger struct {
	sink   *sink
	format Format
	color  bool
	name   string
	fields Fields
}

// LoggerOption configures NewLogger.
type LoggerOption func(*loggerSettings)

type loggerSettings struct {
	out    io.Writer
	level  Level
	format Format
	color  bool
	name   string
	fields Fields
	now    func() time.Time
}

// WithOutput sets the writer (default os.Stdout).
func WithOutput(w io.Writer) LoggerOption { return func(s *loggerSettings) { s.out = w } }

// WithLevel sets the minimum level (default LevelInfo).
func WithLevel(level Level) LoggerOption { return func(s *loggerSettings) { s.level = level } }

// WithFormat sets the encoding (default FormatText).
func WithFormat(format Format) LoggerOption { return func(s *loggerSettings) { s.format = format } }

// WithFields sets fields attached to every entry.
func WithFields(fields Fields) LoggerOption { return func(s *loggerSettings) { s.fields = fields } }

// WithColor toggles ANSI level colors in text output (default on).
func WithColor(enabled bool) LoggerOption { return func(s *loggerSettings) { s.color = enabled } }

// WithTimeFunc sets the entry clock.
func WithTimeFunc(f func() time.Time) LoggerOption { return func(s *loggerSettings) { s.now = f } }

// WithName sets the logger name.
func WithName(name string) LoggerOption { return func(s *loggerSettings) { s.name = name } }

// NewLogger returns a logger configured by opts.
func NewLogger(opts ...LoggerOption) *Logger {
	s := loggerSettings{
		out:   os.Stdout,
		level: LevelInfo,
		color: true,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}

	out := &sink{w: s.out, now: s.now}
	out.level.Store(int32(s.level))

	fields := make(Fields, len(s.fields))
	for k, v := range s.fields {
		fields[k] = v
	}
	return &Logger{sink: out, format: s.format, color: s.color, name: s.name, fields: fields}
}

// With returns a logger that adds fields to every entry. It shares l's
// output and level.
func (l *Logger) With(fields Fields) *Logger {
	child := *l
	child.fields = make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	return &child
}

// Named returns a logger whose name is l's name joined with name by a dot.
func (l *Logger) Named(name string) *Logger {
	child := *l
	if l.name != "" {
		child.name = l.name + "." + name
	} else {
		child.name = name
	}
	return &child
}

// SetLevel changes the level of l and of every logger sharing its output.
func (l *Logger) SetLevel(level Level) { l.sink.level.Store(int32(level)) }

// Enabled reports whether an entry at level would be written.
func (l *Logger) Enabled(level Level) bool {
	floor := Level(l.sink.level.Load())
	return floor != LevelSilent && level >= floor
}

func (l *Logger) Debug(msg string, fields ...Fields)    { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Fields)     { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Fields)     { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Fields)    { l.log(LevelError, msg, fields) }
func (l *Logger) Critical(msg string, fields ...Fields) { l.log(LevelCritical, msg, fields) }

func (l *Logger) log(level Level, msg string, extra []Fields) {
	if !l.Enabled(level) {
		return
	}

	fields := l.fields
	if len(extra) > 0 {
		fields = make(Fields, len(l.fields)+4)
		for k, v := range l.fields {
			fields[k] = v
		}
		for _, f := range extra {
			for k, v := range f {
				fields[k] = v
			}
		}
	}

	var line []byte
	ts := l.sink.now()
	if l.format == FormatJSON {
		line = l.encodeJSON(ts, level, msg, fields)
	} else {
		line = l.encodeText(ts, level, msg, fields)
	}

	l.sink.mu.Lock()
	_, _ = l.sink.w.Write(line)
	l.sink.mu.Unlock()
}

func (l *Logger) encodeJSON(ts time.Time, level Level, msg string, fields Fields) []byte {
	entry := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		entry[k] = v
	}
	entry["time"] = ts.Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg
	if l.name != "" {
		entry["logger"] = l.name
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return []byte(fmt.Sprintf(`{"level":"ERROR","msg":"log encoding failed","error":%q}`+"\n", err.Error()))
	}
	return append(data, '\n')
}

// encodeText renders "15:04:05.000 LEVEL [name] msg k=v ..." with keys
// sorted. Values containing spaces, quotes or '=' are quoted so command
// strings stay unambiguous.
func (l *Logger) encodeText(ts time.Time, level Level, msg string, fields Fields) []byte {
	var b strings.Builder
	b.WriteString(ts.Format("15:04:05.000"))
	b.WriteByte(' ')

	d, _ := level.desc()
	if l.color && d.color != "" {
		b.WriteString(d.color)
		fmt.Fprintf(&b, "%-5s", level.String())
		b.WriteString(colorReset)
	} else {
		fmt.Fprintf(&b, "%-5s", level.String())
	}
	b.WriteByte(' ')

	if l.name != "" {
		b.WriteString("[" + l.name + "] ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(textValue(fields[k]))
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func textValue(v interface{}) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

var globalLogger atomic.Pointer[Logger]

func init() {
	globalLogger.Store(NewLogger())
}

// SetLogger replaces the process-wide logger returned by GetLogger.
func SetLogger(l *Logger) { globalLogger.Store(l) }

// GetLogger returns the process-wide logger. Packages fall back to it when
// their Config carries no Logger.
func GetLogger() *Logger { return globalLogger.Load() }

// NullLogger discards everything.
func NullLogger() *Logger {
	return NewLogger(WithOutput(io.Discard), WithLevel(LevelSilent))
}

// TestLogger writes uncolored debug text to w.
func TestLogger(w io.Writer) *Logger {
	return NewLogger(WithOutput(w), WithLevel(LevelDebug), WithColor(false))
}
