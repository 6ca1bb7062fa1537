// Package telemetry builds the process logger from configuration: stdout,
// optionally tee'd to a rotating file.
package telemetry

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pzverkov/satcom-uplink/internal/config"
	"github.com/pzverkov/satcom-uplink/pkg/metrics"
)

// Sink is the logger plus the writers behind it.
type Sink struct {
	Logger *metrics.Logger
	file   *lumberjack.Logger
}

// Setup builds a logger from cfg writing to console and, when enabled, a
// rotating file. Colors are only used when the console is the sole output.
func Setup(cfg config.LogConfig, console io.Writer) (*Sink, error) {
	if console == nil {
		console = os.Stdout
	}

	level, ok := metrics.LookupLevel(cfg.Level)
	if !ok {
		return nil, config.InvalidLog("log.level", cfg.Level)
	}
	format, ok := metrics.LookupFormat(cfg.Format)
	if !ok {
		return nil, config.InvalidLog("log.format", cfg.Format)
	}

	s := &Sink{}
	out := console
	color := format == metrics.FormatText
	if cfg.File.Enabled {
		s.file = newFileWriter(cfg.File)
		out = io.MultiWriter(console, s.file)
		color = false
	}

	s.Logger = metrics.NewLogger(
		metrics.WithOutput(out),
		metrics.WithLevel(level),
		metrics.WithFormat(format),
		metrics.WithColor(color),
	)
	return s, nil
}

// Install makes the sink's logger the package default.
func (s *Sink) Install() {
	metrics.SetLogger(s.Logger)
}

// Close flushes and closes the rotating file, if any.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

func newFileWriter(fc config.LogFileConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB,  // megabytes
		MaxBackups: fc.MaxBackups, // number of backups
		MaxAge:     fc.MaxAgeDays, // days
		Compress:   fc.Compress,   // compress the backups
	}
}
