package config

import (
	"log/slog"
	"os"
	"strconv"
)

// JournalConfig represents event journal configuration
type JournalConfig struct {
	Enabled      bool   `json:"enabled"`       // Whether event journaling is enabled
	DatabasePath string `json:"database_path"` // Custom database path (empty = XDG cache path)
}

// GetDefaultJournalConfig returns the default event journal configuration
func GetDefaultJournalConfig() *JournalConfig {
	return &JournalConfig{
		Enabled:      true, // Default enabled so playback history is queryable
		DatabasePath: "",   // Empty = XDG cache path
	}
}

// ApplyJournalEnvironmentOverrides applies environment variable overrides to journal config
func ApplyJournalEnvironmentOverrides(config *JournalConfig) *JournalConfig {
	slog.Debug("applying journal environment variable overrides")

	// Create a copy to modify
	result := *config

	// SOUNDBRIDGE_JOURNAL
	if journalStr := os.Getenv("SOUNDBRIDGE_JOURNAL"); journalStr != "" {
		if enabled, err := strconv.ParseBool(journalStr); err == nil {
			result.Enabled = enabled
			slog.Debug("applied journal override from environment", "value", enabled)
		} else {
			slog.Warn("invalid SOUNDBRIDGE_JOURNAL environment variable", "value", journalStr, "error", err)
		}
	}

	// SOUNDBRIDGE_JOURNAL_DB
	if dbPath := os.Getenv("SOUNDBRIDGE_JOURNAL_DB"); dbPath != "" {
		result.DatabasePath = dbPath
		slog.Debug("applied journal database path override from environment", "path", dbPath)
	}

	slog.Debug("journal environment overrides applied")
	return &result
}
