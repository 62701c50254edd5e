package utils

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	unsupportedLogLevelTemplateConstant  = "unsupported log level %q"
	unsupportedLogFormatTemplateConstant = "unsupported log format %q"
	timestampKeyConstant                 = "timestamp"
	levelKeyConstant                     = "level"
	messageKeyConstant                   = "message"
	callerKeyConstant                    = "caller"
)

// LogLevel enumerates supported diagnostic log levels.
type LogLevel string

// Supported log levels.
const (
	LogLevelDebug LogLevel = LogLevel("debug")
	LogLevelInfo  LogLevel = LogLevel("info")
	LogLevelWarn  LogLevel = LogLevel("warn")
	LogLevelError LogLevel = LogLevel("error")
)

// LogFormat enumerates supported log encodings.
type LogFormat string

// Supported log formats.
const (
	LogFormatStructured LogFormat = LogFormat("structured")
	LogFormatConsole    LogFormat = LogFormat("console")
)

// LoggerOutputs groups the diagnostic logger with the human-facing console logger.
// The console logger is a no-op in structured mode.
type LoggerOutputs struct {
	DiagnosticLogger *zap.Logger
	ConsoleLogger    *zap.Logger
}

// LoggerFactory builds zap loggers writing to standard error.
type LoggerFactory struct{}

// NewLoggerFactory constructs a LoggerFactory.
func NewLoggerFactory() LoggerFactory {
	return LoggerFactory{}
}

// CreateLoggerOutputs returns loggers configured for the requested level and format.
func (factory LoggerFactory) CreateLoggerOutputs(logLevel LogLevel, logFormat LogFormat) (LoggerOutputs, error) {
	zapLevel, levelError := resolveZapLevel(logLevel)
	if levelError != nil {
		return LoggerOutputs{}, levelError
	}

	normalizedFormat := LogFormat(strings.ToLower(strings.TrimSpace(string(logFormat))))
	standardError := zapcore.Lock(os.Stderr)
	levelEnabler := zap.NewAtomicLevelAt(zapLevel)

	switch normalizedFormat {
	case LogFormatStructured:
		encoderConfiguration := zap.NewProductionEncoderConfig()
		encoderConfiguration.TimeKey = timestampKeyConstant
		encoderConfiguration.LevelKey = levelKeyConstant
		encoderConfiguration.MessageKey = messageKeyConstant
		encoderConfiguration.CallerKey = callerKeyConstant
		encoderConfiguration.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfiguration), standardError, levelEnabler)
		return LoggerOutputs{
			DiagnosticLogger: zap.New(core, zap.AddCaller()),
			ConsoleLogger:    zap.NewNop(),
		}, nil
	case LogFormatConsole:
		diagnosticConfiguration := zap.NewDevelopmentEncoderConfig()
		diagnosticConfiguration.EncodeLevel = zapcore.CapitalLevelEncoder
		diagnosticCore := zapcore.NewCore(zapcore.NewConsoleEncoder(diagnosticConfiguration), standardError, levelEnabler)

		consoleConfiguration := zapcore.EncoderConfig{
			MessageKey:     messageKeyConstant,
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeDuration: zapcore.StringDurationEncoder,
		}
		consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfiguration), standardError, levelEnabler)
		return LoggerOutputs{
			DiagnosticLogger: zap.New(diagnosticCore),
			ConsoleLogger:    zap.New(consoleCore),
		}, nil
	default:
		return LoggerOutputs{}, fmt.Errorf(unsupportedLogFormatTemplateConstant, logFormat)
	}
}

func resolveZapLevel(logLevel LogLevel) (zapcore.Level, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(string(logLevel)))) {
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelInfo:
		return zapcore.InfoLevel, nil
	case LogLevelWarn:
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf(unsupportedLogLevelTemplateConstant, logLevel)
	}
}
