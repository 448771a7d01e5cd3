// Package logging sets up the process-wide zerolog output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// Setup configures global zerolog output: console, optional log file, and an
// optional Graylog GELF endpoint. It returns the root logger; packages derive
// module-scoped loggers from it via With().Str("module", ...).
func Setup(level, logsDir string, graylogEnabled bool, graylogAddr string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}}

	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to create logs dir: %w", err)
		}
		path := LogFilePath(logsDir, "drilltrack", time.Now())
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, file)
	}

	if graylogEnabled {
		gelfWriter, err := gelf.NewWriter(graylogAddr)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to connect graylog writer: %w", err)
		}
		writers = append(writers, gelfWriter)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	logger.Info().Str("level", lvl.String()).Msg("logging initialized")
	return logger, nil
}

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}
