package logging

import (
	"log/slog"
)

// SetupQuietMode initializes logging for CLI invocations whose stdout is a
// machine-readable payload (e.g. `verify --json`, `scan --json`).
// This is critical for output compliance:
// - Logs ONLY to file (never stdout/stderr)
// - Uses JSON format for structured logs
// - Always enables debug level for complete diagnostics
//
// A log line written to stdout/stderr in the middle of a `--json` result
// would corrupt the single JSON value a caller piping output expects.
func SetupQuietMode() (func(), error) {
	cfg := Config{
		Level:         "debug", // Always debug in quiet mode for full diagnostics
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false, // CRITICAL: never write to stderr in quiet mode
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)

	// Log that quiet mode logging is initialized
	slog.Info("quiet mode logging initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level),
		slog.Bool("stderr_disabled", true))

	return cleanup, nil
}

// SetupQuietModeWithLevel initializes quiet-mode logging at a specific level.
func SetupQuietModeWithLevel(level string) (func(), error) {
	cfg := Config{
		Level:         level,
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false, // CRITICAL: never write to stderr in quiet mode
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	return cleanup, nil
}
