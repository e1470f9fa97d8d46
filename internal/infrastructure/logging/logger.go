package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the service logger. Pipeline components receive named children
// that share one adjustable level.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
	// Sample drops repeats of the same message beyond 100 per second.
	// Mirrored frame console output can repeat once per animation frame.
	Sample bool
}

// DefaultConfig returns the production logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		OutputPaths: []string{"stdout"},
		Sample:      true,
	}
}

// New creates a new logger with the provided configuration.
func New(cfg Config) (*Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:             level,
		Development:       cfg.Development,
		Encoding:          "json",
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       cfg.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
		InitialFields:     map[string]interface{}{"service": "preview"},
	}
	if cfg.Development {
		zapCfg.Encoding = "console"
		zapCfg.InitialFields = nil
	} else if cfg.Sample {
		zapCfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger, level: level}, nil
}

// NewFromSettings builds a logger from the level/development pair carried by
// the service configuration. Development mode defaults to debug. An invalid
// level yields a no-op logger.
func NewFromSettings(level string, development bool) *Logger {
	cfg := DefaultConfig()
	if development {
		cfg.Level = "debug"
		cfg.Development = true
	}
	if level != "" {
		cfg.Level = level
	}
	logger, err := New(cfg)
	if err != nil {
		return Nop()
	}
	return logger
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.InfoLevel)}
}

// Component returns a child logger tagged with a pipeline stage name.
func (l *Logger) Component(name string) *zap.Logger {
	return l.Logger.Named(name)
}

// Level returns the current minimum level name.
func (l *Logger) Level() string {
	return l.level.Level().String()
}

// SetLevel changes the level of this logger and every component child.
func (l *Logger) SetLevel(name string) error {
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return err
	}
	l.level.SetLevel(lvl)
	return nil
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		cfg.FunctionKey = zapcore.OmitKey
		return cfg
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.MillisDurationEncoder
	return cfg
}
