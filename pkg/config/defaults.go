package config

import (
	"os"
	"path/filepath"
)

// defaultJournalPath returns the default journal file path.
//
// Returns: ~/.config/fskit/journal.db.
func defaultJournalPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./journal.db"
	}

	return filepath.Join(homeDir, ".config", "fskit", "journal.db")
}

// DefaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/fskit/config.yaml.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}

	return filepath.Join(homeDir, ".config", "fskit", "config.yaml")
}
