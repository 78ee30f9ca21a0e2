package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Field = zap.Field

type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

type Options struct {
	Level string // debug, info, warn, error
	Dir   string // empty means stdout/stderr
}

// NewLogger builds a JSON logger with two cores: records up to info go to the
// info sink, warnings and errors to the error sink.
func NewLogger(opts Options) (*zap.Logger, func(), error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	infoSink, errorSink := zapcore.AddSync(os.Stdout), zapcore.AddSync(os.Stderr)
	var files []*os.File
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		infoFile, err := os.OpenFile(filepath.Join(opts.Dir, "info.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, nil, fmt.Errorf("open info log file: %w", err)
		}
		errorFile, err := os.OpenFile(filepath.Join(opts.Dir, "error.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			infoFile.Close()
			return nil, nil, fmt.Errorf("open error log file: %w", err)
		}
		files = append(files, infoFile, errorFile)
		infoSink, errorSink = zapcore.AddSync(infoFile), zapcore.AddSync(errorFile)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	infoCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		infoSink,
		zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl >= level && lvl <= zapcore.InfoLevel
		}),
	)

	errorCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		errorSink,
		zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl >= level && lvl >= zapcore.WarnLevel
		}),
	)

	log := zap.New(zapcore.NewTee(infoCore, errorCore), zap.AddCaller())

	cleanup := func() {
		_ = log.Sync()
		for _, f := range files {
			f.Close()
		}
	}

	return log, cleanup, nil
}

// NewNop returns a logger that drops everything. Useful for tests.
func NewNop() Logger {
	return zap.NewNop()
}

func StringField(key, value string) zap.Field {
	return zap.String(key, value)
}

func ErrorField(key string, err error) zap.Field {
	return zap.NamedError(key, err)
}

func AnyField(key string, value interface{}) zap.Field {
	return zap.Any(key, value)
}

func Int64Field(key string, value int64) zap.Field {
	return zap.Int64(key, value)
}

func IntField(key string, value int) zap.Field {
	return zap.Int(key, value)
}

func DurationField(key string, value time.Duration) zap.Field {
	return zap.Duration(key, value)
}
