package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir is ~/.resync/logs, or a temp-dir equivalent when no
// home directory is available.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".resync", "logs")
	}
	return filepath.Join(home, ".resync", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "resync.log")
}

// EnsureLogDir creates the log directory if it does not exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
