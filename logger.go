package relay

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used for debug output. Arguments after
// msg are alternating keys and values.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// LogConfig defines zap logger configuration.
type LogConfig struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
}

// DefaultLogConfig returns production logger configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Development: false,
		OutputPaths: []string{"stderr"},
	}
}

// DevelopmentLogConfig returns development logger configuration.
func DevelopmentLogConfig() LogConfig {
	return LogConfig{
		Level:       "debug",
		Development: true,
		OutputPaths: []string{"stderr"},
	}
}

// NewZapLogger builds a zap logger from cfg.
func NewZapLogger(cfg LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	encoding, encoderConfig := "json", zap.NewProductionEncoderConfig()
	if cfg.Development {
		encoding, encoderConfig = "console", zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}
	return zapCfg.Build()
}

// FromZap adapts a zap logger to Logger.
func FromZap(logger *zap.Logger) Logger {
	if logger == nil {
		return NopLogger()
	}
	return zapLogger{s: logger.Sugar()}
}

// NewSimpleLogger returns a development console logger at debug level,
// falling back to a no-op logger if zap cannot be built.
func NewSimpleLogger() Logger {
	logger, err := NewZapLogger(DevelopmentLogConfig())
	if err != nil {
		return NopLogger()
	}
	return FromZap(logger)
}

// NopLogger discards everything.
func NopLogger() Logger {
	return zapLogger{s: zap.NewNop().Sugar()}
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Debug(msg string, keysAndValues ...any) { l.s.Debugw(msg, keysAndValues...) }
func (l zapLogger) Info(msg string, keysAndValues ...any)  { l.s.Infow(msg, keysAndValues...) }
func (l zapLogger) Warn(msg string, keysAndValues ...any)  { l.s.Warnw(msg, keysAndValues...) }
func (l zapLogger) Error(msg string, keysAndValues ...any) { l.s.Errorw(msg, keysAndValues...) }

// LoggingObserver writes one log line per lifecycle event: failures at warn,
// everything else at debug.
type LoggingObserver struct {
	logger Logger
}

// NewLoggingObserver creates an observer writing to logger.
func NewLoggingObserver(logger Logger) *LoggingObserver {
	if logger == nil {
		logger = NopLogger()
	}
	return &LoggingObserver{logger: logger}
}

// OnEvent implements Observer.
func (o *LoggingObserver) OnEvent(e Event) {
	kv := []any{"event", e.Kind.String(), "inFlight", e.InFlight}
	if e.Request != nil {
		kv = append(kv, "requestID", e.Request.ID, "method", e.Request.Method, "url", e.Request.FullURL())
	}
	if e.Descriptor != nil {
		kv = append(kv, "name", e.Descriptor.Name)
	}
	if e.Response != nil {
		kv = append(kv, "status", e.Response.StatusCode)
	}
	if e.Kind.Terminal() {
		kv = append(kv, "duration", e.Duration)
	}

	switch e.Kind {
	case EventFailed:
		kv = append(kv, "error", e.Err)
		o.logger.Warn("Request failed", kv...)
	case EventDrained:
		o.logger.Debug("All requests finished", kv...)
	default:
		o.logger.Debug("Request "+e.Kind.String(), kv...)
	}
}
