package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zerolog with the bot's field conventions
type Logger struct {
	logger zerolog.Logger
	config LoggerConfig
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level            string
	OutputFile       string
	MaxFileSizeMB    int
	MaxBackups       int
	MaxAgeDays       int
	EnableConsole    bool
	EnableFile       bool
	EnableJSON       bool
	EnableStackTrace bool
}

// Fields represents structured log fields
type Fields map[string]interface{}

// NewLogger builds a logger writing to the console, a rotating file, or both
func NewLogger(config LoggerConfig) (*Logger, error) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var writers []io.Writer

	if config.EnableConsole {
		if config.EnableJSON {
			writers = append(writers, os.Stdout)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: "2006-01-02 15:04:05.000",
				FormatLevel: func(i interface{}) string {
					return strings.ToUpper(fmt.Sprintf("%-5s", i))
				},
				FormatFieldName: func(i interface{}) string {
					return fmt.Sprintf("%s=", i)
				},
			})
		}
	}

	if config.EnableFile && config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxFileSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   true,
		})
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zl := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	if config.EnableStackTrace {
		zl = zl.With().Caller().Logger()
	}

	return &Logger{logger: zl, config: config}, nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func (l *Logger) Debug(msg string, fields ...Fields) {
	l.emit(l.logger.Debug(), nil, msg, fields)
}

func (l *Logger) Info(msg string, fields ...Fields) {
	l.emit(l.logger.Info(), nil, msg, fields)
}

func (l *Logger) Warn(msg string, fields ...Fields) {
	l.emit(l.logger.Warn(), nil, msg, fields)
}

func (l *Logger) Error(msg string, err error, fields ...Fields) {
	l.emit(l.logger.Error(), err, msg, fields)
}

func (l *Logger) emit(event *zerolog.Event, err error, msg string, fields []Fields) {
	if err != nil {
		if l.config.EnableStackTrace {
			event = event.Stack()
		}
		event = event.Err(err)
	}
	for _, set := range fields {
		for k, v := range set {
			event = event.Interface(k, v)
		}
	}
	event.Msg(msg)
}

// WithFields creates a logger with predefined fields
func (l *Logger) WithFields(fields Fields) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{logger: ctx.Logger(), config: l.config}
}

func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields(Fields{"component": component})
}

func (l *Logger) WithGuild(guildID string) *Logger {
	return l.WithFields(Fields{"guild_id": guildID})
}

// WithSession tags entries with the guild and the playback session id
func (l *Logger) WithSession(guildID, sessionID string) *Logger {
	return l.WithFields(Fields{
		"guild_id":   guildID,
		"session_id": sessionID,
	})
}

func (l *Logger) WithTrack(title, sourceURL string) *Logger {
	return l.WithFields(Fields{
		"track_title": title,
		"track_url":   sourceURL,
	})
}

// LogCommandEvent logs the outcome of one slash command or button press
func (l *Logger) LogCommandEvent(command, userID, guildID string, success bool, duration time.Duration, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}
	fields["command"] = command
	fields["user_id"] = userID
	fields["guild_id"] = guildID
	fields["success"] = success
	fields["duration_ms"] = duration.Milliseconds()

	if success {
		l.Info("Command executed", fields)
	} else {
		l.Warn("Command failed", fields)
	}
}

// LogPanic logs a recovered panic with its stack
func (l *Logger) LogPanic(recovered interface{}, stack []byte) {
	l.Error("Panic recovered", nil, Fields{
		"panic":      recovered,
		"stack":      string(stack),
		"goroutines": runtime.NumGoroutine(),
	})
}

func (l *Logger) LogStartup(version string) {
	l.Info("Application starting", Fields{
		"version":    version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	})
}

func (l *Logger) LogShutdown(reason string, graceful bool) {
	l.Info("Application shutting down", Fields{
		"reason":   reason,
		"graceful": graceful,
	})
}

// GetLevel returns the configured log level
func (l *Logger) GetLevel() string {
	return l.config.Level
}

var defaultLogger = Nop()

// SetDefault replaces the package-level logger
func SetDefault(logger *Logger) {
	if logger != nil {
		defaultLogger = logger
	}
}

// Error logs through the package-level logger
func Error(msg string, err error, fields ...Fields) { defaultLogger.Error(msg, err, fields...) }
