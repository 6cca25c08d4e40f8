// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap logger shared by every svnmonitor command:
// a console core plus an optional size-rotated log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeLayout = "2006-01-02 15:04:05"

type Options struct {
	// File is the rotated log file. Empty disables file output.
	File string
	// Level is one of debug, info, warn (or warning) and error.
	Level string
	// Location is the zone timestamps are rendered in. Nil means local.
	Location *time.Location
	// Console receives human-readable output. Nil means stderr.
	Console io.Writer
	// MaxSizeMB and MaxBackups control rotation; zero picks 10 MB x 5.
	MaxSizeMB  int
	MaxBackups int
}

// ParseLevel maps a configured level name onto a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	case "critical", "fatal":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.ParseLevel(s)
}

// New returns a sugared logger and a close function that flushes the
// logger and releases the log file.
func New(opts Options) (*zap.SugaredLogger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(loc).Format(timeLayout))
	}
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.ConsoleSeparator = " - "

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(console), level),
	}

	closeFile := func() error { return nil }
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 5),
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(rotator), level))
		closeFile = rotator.Close
	}

	logger := zap.New(zapcore.NewTee(cores...))
	sugar := logger.Sugar()
	closer := func() error {
		// Sync on a terminal returns EINVAL; it carries no information.
		_ = logger.Sync()
		return closeFile()
	}
	return sugar, closer, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
