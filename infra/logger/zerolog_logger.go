package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// Option customises a ZerologLogger.
type Option func(*settings)

type settings struct {
	out    io.Writer
	level  zerolog.Level
	format string
}

// WithWriter sends the output to w instead of stdout.
func WithWriter(w io.Writer) Option { return func(s *settings) { s.out = w } }

// WithLevel sets the minimum level.
func WithLevel(l zerolog.Level) Option { return func(s *settings) { s.level = l } }

// WithFormat forces the json or console format.
func WithFormat(f string) Option { return func(s *settings) { s.format = strings.ToLower(f) } }

// ParseLevel converts a level name.
func ParseLevel(name string) (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logger: invalid level %q: %w", name, err)
	}
	return lvl, nil
}

// NewZerologLogger creates a ZerologLogger using the APP_ENV environment variable
// to determine the output format. All logs include the provided component field.
func NewZerologLogger(component string, opts ...Option) Logger {
	s := settings{out: os.Stdout, level: zerolog.InfoLevel}
	for _, o := range opts {
		o(&s)
	}
	if s.format == "" && strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		s.format = "console"
	}
	out := s.out
	if s.format == "console" {
		out = zerolog.ConsoleWriter{Out: s.out, TimeFormat: time.RFC3339, NoColor: s.out != io.Writer(os.Stdout)}
	}
	z := zerolog.New(out).Level(s.level).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

// Debugw writes fields in key order so that output is stable.
func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	if ev == nil {
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev = ev.Interface(k, fields[k])
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
