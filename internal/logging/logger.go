package logging

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.Logger
}

func NewLogger(level string) (*Logger, error) {
	config := zap.NewProductionConfig()

	// Parse log level
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

func NewNop() *Logger {
	return &Logger{zap.NewNop()}
}

// WithOperation tags every entry with the operation name and a fresh op_id,
// so the lines written by one add/commit/status call can be grouped.
func (l *Logger) WithOperation(op string) *zap.Logger {
	return WithOperation(l.Logger, op)
}

func WithOperation(z *zap.Logger, op string) *zap.Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return z.With(
		zap.String("op", op),
		zap.String("op_id", uuid.NewString()),
	)
}

// BadgerAdapter routes badger's printf-style logging into zap.
type BadgerAdapter struct {
	sugar *zap.SugaredLogger
}

func BadgerLogger(z *zap.Logger) *BadgerAdapter {
	if z == nil {
		z = zap.NewNop()
	}
	return &BadgerAdapter{sugar: z.Named("badger").Sugar()}
}

func (b *BadgerAdapter) Errorf(format string, args ...interface{}) {
	b.sugar.Error(trim(format, args...))
}

func (b *BadgerAdapter) Warningf(format string, args ...interface{}) {
	b.sugar.Warn(trim(format, args...))
}

func (b *BadgerAdapter) Infof(format string, args ...interface{}) {
	b.sugar.Debug(trim(format, args...))
}

func (b *BadgerAdapter) Debugf(format string, args ...interface{}) {
	b.sugar.Debug(trim(format, args...))
}

// badger terminates most messages with a newline
func trim(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
