package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the process logger. format is "json" or "console"; a
// non-empty file adds a rotating file output.
func newLogger(level, format, file string, stderr io.Writer) (logr.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = stderr
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: stderr, TimeFormat: "15:04:05"}
	}

	var closer io.Closer = nopCloser{}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return logr.Logger{}, nil, err
		}
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100,
			MaxAge:     28,
			MaxBackups: 5,
			Compress:   true,
			LocalTime:  true,
		}
		out = zerolog.MultiLevelWriter(out, rotating)
		closer = rotating
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zl := zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "authbridge").Logger()
	return zerologr.New(&zl), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
