// Package logger предоставляет структурированное логирование на базе zerolog.
// JSON формат для production, pretty-print для разработки (LOG_PRETTY=true).
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// log — глобальный экземпляр логгера. Инициализируется в init()
// из переменных окружения и перенастраивается через Init().
var log zerolog.Logger

// Config содержит настройки логгера.
type Config struct {
	// Level — минимальный уровень: "debug", "info", "warn", "error".
	Level string

	// Pretty включает форматированный цветной вывод для разработки.
	Pretty bool

	// Output — writer для вывода. По умолчанию os.Stdout.
	Output io.Writer
}

func init() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	Init(Config{
		Level:  level,
		Pretty: strings.ToLower(os.Getenv("LOG_PRETTY")) == "true",
	})
}

// Init перенастраивает глобальный логгер.
// Вызывается в начале работы приложения после загрузки конфигурации.
func Init(cfg Config) {
	var output io.Writer = os.Stdout
	if cfg.Output != nil {
		output = cfg.Output
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	level := parseLevel(cfg.Level)

	log = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
}

// parseLevel преобразует строку в zerolog.Level.
// Неизвестный уровень трактуется как info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug создаёт событие лога уровня debug.
func Debug() *zerolog.Event {
	return log.Debug()
}

// Info создаёт событие лога уровня info.
func Info() *zerolog.Event {
	return log.Info()
}

// Warn создаёт событие лога уровня warn.
func Warn() *zerolog.Event {
	return log.Warn()
}

// Error создаёт событие лога уровня error.
func Error() *zerolog.Event {
	return log.Error()
}

// Fatal создаёт событие лога уровня fatal и завершает приложение с кодом 1.
func Fatal() *zerolog.Event {
	return log.Fatal()
}

// With создаёт новый логгер с дополнительными полями.
//
//	serviceLog := logger.With().Str("service", "order").Logger()
func With() zerolog.Context {
	return log.With()
}

// Logger возвращает глобальный экземпляр zerolog.Logger.
func Logger() zerolog.Logger {
	return log
}

// SetGlobalLogger подменяет глобальный логгер. Используется в тестах.
func SetGlobalLogger(l zerolog.Logger) {
	log = l
}
