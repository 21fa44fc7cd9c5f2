// Package logging builds the zap loggers used by the model and the CLI.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger with RFC3339 timestamps and caller information.
// Errors go to stderr, everything else to stdout. Debug entries are kept only
// when verbose is set.
func New(verbose bool) *zap.Logger {
	return NewWithWriters(os.Stdout, os.Stderr, verbose)
}

// NewWithWriters is New with explicit destinations.
func NewWithWriters(out, errOut io.Writer, verbose bool) *zap.Logger {
	floor := zapcore.InfoLevel
	if verbose {
		floor = zapcore.DebugLevel
	}
	isErrorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	isInfoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= floor && lvl < zapcore.ErrorLevel
	})

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.RFC3339TimeEncoder
	encoder := zapcore.NewJSONEncoder(config)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(errOut)), isErrorLevel),
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(out)), isInfoLevel),
	)
	return zap.New(core, zap.AddCaller())
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger { return zap.NewNop() }
