package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = newZap(false)
)

// Init reconfigures the process logger. Debug enables debug-level output and
// console encoding for local runs.
func Init(debug bool) {
	mu.Lock()
	defer mu.Unlock()
	log = newZap(debug)
}

func newZap(debug bool) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	base, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		base = zap.NewNop()
	}
	return base.Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func withFields(component string, fields map[string]interface{}) *zap.SugaredLogger {
	args := make([]interface{}, 0, 2+2*len(fields))
	args = append(args, "component", component)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return current().With(args...)
}

func DebugC(component, msg string) { withFields(component, nil).Debug(msg) }
func InfoC(component, msg string)  { withFields(component, nil).Info(msg) }
func WarnC(component, msg string)  { withFields(component, nil).Warn(msg) }
func ErrorC(component, msg string) { withFields(component, nil).Error(msg) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	withFields(component, fields).Debug(msg)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	withFields(component, fields).Info(msg)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	withFields(component, fields).Warn(msg)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	withFields(component, fields).Error(msg)
}

// Sync flushes buffered log entries, for use on shutdown.
func Sync() {
	_ = current().Sync()
}
