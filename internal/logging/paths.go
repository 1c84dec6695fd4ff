package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.bpomverify/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".bpomverify", "logs")
	}
	return filepath.Join(home, ".bpomverify", "logs")
}

// DefaultLogPath returns the default core log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "bpomverify.log")
}

// DetectorLogPath returns the log path for the out-of-process object
// detector, when it writes its own log file rather than stdout.
func DetectorLogPath() string {
	return filepath.Join(DefaultLogDir(), "detector.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceCore is the core bpomverify process logs (default).
	LogSourceCore LogSource = "core"
	// LogSourceDetector is the out-of-process object-detector logs.
	LogSourceDetector LogSource = "detector"
	// LogSourceAll combines all log sources.
	LogSourceAll LogSource = "all"
)

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.bpomverify/logs/bpomverify.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	// Try global path
	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. The core process may not have run with --debug yet.\nExpected at: %s", globalPath)
}

// FindLogFileBySource finds log files based on the source type.
// Returns a list of log file paths that exist.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	// Explicit path takes precedence
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths []string
	var checked []string

	switch source {
	case LogSourceCore:
		corePath := DefaultLogPath()
		checked = append(checked, corePath)
		if _, err := os.Stat(corePath); err == nil {
			paths = append(paths, corePath)
		}

	case LogSourceDetector:
		detectorPath := DetectorLogPath()
		checked = append(checked, detectorPath)
		if _, err := os.Stat(detectorPath); err == nil {
			paths = append(paths, detectorPath)
		}

	case LogSourceAll:
		corePath := DefaultLogPath()
		detectorPath := DetectorLogPath()
		checked = append(checked, corePath, detectorPath)

		if _, err := os.Stat(corePath); err == nil {
			paths = append(paths, corePath)
		}
		if _, err := os.Stat(detectorPath); err == nil {
			paths = append(paths, detectorPath)
		}

	default:
		return nil, fmt.Errorf("unknown log source: %s (use: core, detector, all)", source)
	}

	if len(paths) == 0 {
		hint := getLogHint(source)
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, hint)
	}

	return paths, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	switch s {
	case "detector":
		return LogSourceDetector
	case "all":
		return LogSourceAll
	default:
		return LogSourceCore
	}
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}

// getLogHint returns a helpful message on how to generate logs for the given source.
func getLogHint(source LogSource) string {
	switch source {
	case LogSourceCore:
		return "To generate core logs:\n  bpomverify --debug verify <query>"
	case LogSourceDetector:
		return "Detector logs are written by the configured out-of-process\ndetector provider; check its own logging configuration."
	case LogSourceAll:
		return "To generate logs:\n  Core:     bpomverify --debug verify <query>\n  Detector: depends on the configured detector provider"
	default:
		return ""
	}
}
