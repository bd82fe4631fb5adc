// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

type Options struct {
	// Level is a logrus level name; empty means info.
	Level string
	// Verbose forces debug level.
	Verbose bool
	// JSON switches the console formatter to JSON.
	JSON bool
	// Dir, when set, also writes the log to Dir/derivo.log, rotated daily.
	Dir string
}

// Init applies opts to the standard logger.
func Init(opts Options) error {
	return Configure(logrus.StandardLogger(), opts)
}

// Configure applies opts to l.
func Configure(l *logrus.Logger, opts Options) error {
	level := logrus.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = logrus.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
	}
	if opts.Verbose && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if opts.Dir != "" {
		hook, err := NewFileHook(opts.Dir)
		if err != nil {
			return fmt.Errorf("failed to init log file hook: %w", err)
		}
		l.AddHook(hook)
	}
	return nil
}

// NewFileHook writes every entry at or above trace level to dir/derivo.log.
func NewFileHook(dir string) (logrus.Hook, error) {
	path := filepath.Join(dir, "derivo.log")
	writer, err := rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return nil, err
	}

	writers := lfshook.WriterMap{}
	for _, lvl := range logrus.AllLevels {
		writers[lvl] = writer
	}
	return lfshook.NewHook(writers, &logrus.TextFormatter{
		DisableColors: true,
		CallerPrettyfier: func(frame *runtime.Frame) (function string, file string) {
			return "", fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		},
	}), nil
}
