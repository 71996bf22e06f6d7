package logger

import (
	"go.uber.org/zap"

	"simdex"
)

// Zap wraps a zap.Logger to implement simdex.Logger.
type Zap struct {
	sugar *zap.SugaredLogger
}

// NewZap creates a simdex.Logger from a zap.Logger.
func NewZap(logger *zap.Logger) simdex.Logger {
	return &Zap{sugar: logger.Sugar()}
}

func (z *Zap) Error(msg string, args ...any) {
	z.sugar.Errorw(msg, args...)
}

func (z *Zap) Warn(msg string, args ...any) {
	z.sugar.Warnw(msg, args...)
}

func (z *Zap) Info(msg string, args ...any) {
	z.sugar.Infow(msg, args...)
}
