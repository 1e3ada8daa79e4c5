package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"igdmbot/pkg/config"
)

// Logger defines the interface for logging operations
type Logger interface {
	// Basic logging methods
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)

	// Logging with fields
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
	WithContext(ctx context.Context) Logger

	// Structured logging methods with fields
	DebugWithFields(msg string, fields map[string]interface{})
	InfoWithFields(msg string, fields map[string]interface{})
	WarnWithFields(msg string, fields map[string]interface{})
	ErrorWithFields(msg string, fields map[string]interface{})
	FatalWithFields(msg string, fields map[string]interface{})

	// Get the underlying zerolog instance (for advanced usage)
	GetZerolog() *zerolog.Logger
}

// zerologLogger implements Logger on top of zerolog. Fields are kept in a
// map until an event is written so WithField chains stay cheap to branch.
type zerologLogger struct {
	logger *zerolog.Logger
	fields map[string]interface{}
}

// New creates a Logger from cfg. With a log file configured, events go to
// both the terminal and the file; the file is always JSON.
func New(cfg *config.LoggingConfig) (Logger, error) {
	if cfg.File == "" {
		return newLogger(cfg, consoleOrJSON(cfg, os.Stdout))
	}
	file, err := openLogFile(cfg.File)
	if err != nil {
		return nil, err
	}
	return newLogger(cfg, zerolog.MultiLevelWriter(consoleOrJSON(cfg, os.Stdout), file))
}

// NewWithWriter creates a Logger writing to w in the configured format.
func NewWithWriter(cfg *config.LoggingConfig, w io.Writer) (Logger, error) {
	return newLogger(cfg, consoleOrJSON(cfg, w))
}

func newLogger(cfg *config.LoggingConfig, output io.Writer) (Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zerolog.TimeFieldFormat = time.RFC3339

	zlog := zerolog.New(output).Level(level).With().Timestamp().
		Str("app", "igdmbot").
		Logger()

	return &zerologLogger{
		logger: &zlog,
		fields: make(map[string]interface{}),
	}, nil
}

// consoleOrJSON wraps w in a ConsoleWriter unless JSON output was requested.
// Colors are only used when w is a terminal.
func consoleOrJSON(cfg *config.LoggingConfig, w io.Writer) io.Writer {
	if strings.EqualFold(cfg.Format, "json") {
		return w
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}

	return zerolog.ConsoleWriter{
		Out:         w,
		NoColor:     noColor,
		TimeFormat:  "15:04:05",
		FormatLevel: levelLabel(noColor),
		FormatMessage: func(i interface{}) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("| %s", i)
		},
	}
}

var levelColors = map[string]string{
	"DEBUG": "\033[37mDEBG\033[0m",
	"INFO":  "\033[32mINFO\033[0m",
	"WARN":  "\033[33mWARN\033[0m",
	"ERROR": "\033[31mERRO\033[0m",
	"FATAL": "\033[35mFATL\033[0m",
}

func levelLabel(noColor bool) zerolog.Formatter {
	return func(i interface{}) string {
		if i == nil {
			return ""
		}
		level := strings.ToUpper(fmt.Sprintf("%s", i))
		if noColor {
			return fmt.Sprintf("%-5s", level)
		}
		if c, ok := levelColors[level]; ok {
			return c
		}
		return level
	}
}

// openLogFile opens path for appending. Logs name commenters and accounts,
// so the file is private to the user.
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

func parseLogLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "fatal":
		return zerolog.FatalLevel, nil
	case "disabled", "off":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func (l *zerologLogger) Debug(msg string) { l.write(l.logger.Debug(), msg, nil) }
func (l *zerologLogger) Info(msg string)  { l.write(l.logger.Info(), msg, nil) }
func (l *zerologLogger) Warn(msg string)  { l.write(l.logger.Warn(), msg, nil) }
func (l *zerologLogger) Error(msg string) { l.write(l.logger.Error(), msg, nil) }

// Fatal logs and exits the process.
func (l *zerologLogger) Fatal(msg string) { l.write(l.logger.Fatal(), msg, nil) }

func (l *zerologLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.write(l.logger.Debug(), msg, fields)
}

func (l *zerologLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.write(l.logger.Info(), msg, fields)
}

func (l *zerologLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.write(l.logger.Warn(), msg, fields)
}

func (l *zerologLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.write(l.logger.Error(), msg, fields)
}

func (l *zerologLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.write(l.logger.Fatal(), msg, fields)
}

// write adds the stored fields, then extra, and sends the event. A nil
// event means the level is disabled.
func (l *zerologLogger) write(event *zerolog.Event, msg string, extra map[string]interface{}) {
	if event == nil {
		return
	}
	for key, value := range l.fields {
		event = addField(event, key, value)
	}
	for key, value := range extra {
		event = addField(event, key, value)
	}
	event.Msg(Redact(msg))
}

func (l *zerologLogger) with(extra map[string]interface{}) *zerologLogger {
	fields := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return &zerologLogger{logger: l.logger, fields: fields}
}

func (l *zerologLogger) WithField(key string, value interface{}) Logger {
	return l.with(map[string]interface{}{key: value})
}

func (l *zerologLogger) WithFields(fields map[string]interface{}) Logger {
	return l.with(fields)
}

func (l *zerologLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *zerologLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	ctxLogger := l.logger.With().Ctx(ctx).Logger()
	return &zerologLogger{logger: &ctxLogger, fields: l.fields}
}

func (l *zerologLogger) GetZerolog() *zerolog.Logger {
	return l.logger
}

func addField(event *zerolog.Event, key string, value interface{}) *zerolog.Event {
	if isSecretKey(key) {
		return event.Str(key, redacted)
	}
	switch v := value.(type) {
	case string:
		return event.Str(key, Redact(v))
	case int:
		return event.Int(key, v)
	case int64:
		return event.Int64(key, v)
	case float64:
		return event.Float64(key, v)
	case bool:
		return event.Bool(key, v)
	case time.Time:
		return event.Time(key, v)
	case time.Duration:
		return event.Dur(key, v)
	case error:
		return event.Str(key, Redact(v.Error()))
	case []string:
		return event.Strs(key, v)
	case []int:
		return event.Ints(key, v)
	default:
		return event.Interface(key, v)
	}
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

// Initialize builds the global logger from cfg. The zerolog package logger
// is pointed at the same output.
func Initialize(cfg *config.LoggingConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	SetLogger(l)
	log.Logger = *l.GetZerolog()
	return nil
}

// GetLogger returns the global logger, creating a console logger at info
// level on first use.
func GetLogger() Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger, _ = New(&config.LoggingConfig{Level: "info", Format: "console"})
	}
	return globalLogger
}

// SetLogger replaces the global logger. It is safe to call while other
// goroutines log.
func SetLogger(l Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

func Debug(msg string) { GetLogger().Debug(msg) }
func Info(msg string)  { GetLogger().Info(msg) }
func Warn(msg string)  { GetLogger().Warn(msg) }
func Error(msg string) { GetLogger().Error(msg) }
func Fatal(msg string) { GetLogger().Fatal(msg) }

func WithField(key string, value interface{}) Logger { return GetLogger().WithField(key, value) }
func WithFields(fields map[string]interface{}) Logger { return GetLogger().WithFields(fields) }
func WithError(err error) Logger                      { return GetLogger().WithError(err) }
