package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"filebox/internal/config"
)

const (
	logLevelEnvKey  = "FILEBOX_LOG_LEVEL"
	logFormatEnvKey = "FILEBOX_LOG_FORMAT"

	logFormatText = "text"
	logFormatJSON = "json"
)

var logOutput io.Writer = os.Stderr

// configureLoggerForCLI installs the default slog logger. The level comes
// from the flag, then FILEBOX_LOG_LEVEL, then log_level; the handler format
// from FILEBOX_LOG_FORMAT. Bad env or config values fall back with a warning;
// a bad flag is an error.
func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	var warnings []string

	envLevel := os.Getenv(logLevelEnvKey)
	rawLevel, source := selectedLogLevel(flagLevel, envLevel, configLevel)
	level, err := parseLogLevel(rawLevel)
	if err != nil {
		switch source {
		case "flag":
			return "", fmt.Errorf("invalid --log-level %q", flagLevel)
		case "env":
			warnings = append(warnings, fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel))
		case "config":
			warnings = append(warnings, fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel))
		}
		level, _ = parseLogLevel("")
	}

	rawFormat := os.Getenv(logFormatEnvKey)
	format, err := parseLogFormat(rawFormat)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logFormatEnvKey, rawFormat, logFormatText))
	}

	slog.SetDefault(newLogger(logOutput, level, format))
	return strings.Join(warnings, "\n"), nil
}

func selectedLogLevel(flagLevel, envLevel, configLevel string) (string, string) {
	if strings.TrimSpace(flagLevel) != "" {
		return flagLevel, "flag"
	}
	if strings.TrimSpace(envLevel) != "" {
		return envLevel, "env"
	}
	if strings.TrimSpace(configLevel) != "" {
		return configLevel, "config"
	}
	return "", "default"
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = config.DefaultLogLevel
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}

	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func parseLogFormat(raw string) (string, error) {
	switch value := strings.ToLower(strings.TrimSpace(raw)); value {
	case "", logFormatText:
		return logFormatText, nil
	case logFormatJSON:
		return logFormatJSON, nil
	default:
		return logFormatText, fmt.Errorf("invalid log format %q", raw)
	}
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == logFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
