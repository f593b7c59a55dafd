// Package util holds helpers shared by the command line and the config
// loader.
package util

import (
	"os"
	"time"

	"github.com/thessem/zap-prettyconsole"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func shortTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05"))
}

// NewLogger returns a debug level logger writing to stderr. json selects
// the JSON encoder, otherwise output is key=value for humans.
func NewLogger(json bool) *zap.Logger {
	return NewLoggerWithOutput(json, zap.NewAtomicLevelAt(zap.DebugLevel), os.Stderr)
}

// NewLoggerWithOutput is NewLogger with a level that can be changed at
// runtime and a custom output.
func NewLoggerWithOutput(json bool, level zap.AtomicLevel, output zapcore.WriteSyncer) *zap.Logger {
	var enc zapcore.Encoder

	if json {
		enc = zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			MessageKey:     "msg",
			LevelKey:       "level",
			TimeKey:        "time",
			NameKey:        "logger",
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		})
	} else {
		pcfg := prettyconsole.NewEncoderConfig()
		pcfg.EncodeTime = shortTimeEncoder
		enc = prettyconsole.NewEncoder(pcfg)
	}
	return zap.New(zapcore.NewCore(enc, output, level))
}

// ParseLevel maps a config value such as "info" to a level. Empty means
// info.
func ParseLevel(s string) (zap.AtomicLevel, error) {
	if s == "" {
		return zap.NewAtomicLevelAt(zap.InfoLevel), nil
	}
	return zap.ParseAtomicLevel(s)
}
