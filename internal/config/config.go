package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`      // Whether file logging is enabled
	Filename   string `json:"filename"`     // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb"`  // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress"`     // Whether to compress rotated files
}

// EngineConfig represents audio engine configuration. Options is handed
// to the engine verbatim; keys are engine-specific and not validated here.
type EngineConfig struct {
	Type       string         `json:"type"`              // Engine type (auto, oto, malgo, silent)
	SampleRate int            `json:"sample_rate"`       // Output sample rate in Hz (0 = engine default)
	Channels   int            `json:"channels"`          // Output channel count (0 = engine default)
	TickMillis int            `json:"tick_ms"`           // Progress tick interval in ms (0 = engine default)
	Options    map[string]any `json:"options,omitempty"` // Engine-specific setup options
}

// Config represents soundbridge configuration
type Config struct {
	Volume       int                `json:"volume"`                 // Initial sound volume (0 to 100)
	LibraryPaths []string           `json:"library_paths"`          // Additional directories to search for sounds
	AliasFile    string             `json:"alias_file,omitempty"`   // Optional JSON alias table for sound names
	LogLevel     string             `json:"log_level"`              // Log level (debug, info, warn, error)
	Engine       *EngineConfig      `json:"engine,omitempty"`       // Audio engine configuration
	Journal      *JournalConfig     `json:"journal,omitempty"`      // Event journal configuration
	FileLogging  *FileLoggingConfig `json:"file_logging,omitempty"` // File logging configuration
}

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetCachePath(purpose string) string
	CreateCacheDir(purpose string) error
}

// ConfigManager handles loading, saving, and validating configuration
type ConfigManager struct {
	xdg  XDGInterface
	fsys afero.Fs
}

// NewConfigManager creates a new configuration manager backed by the OS filesystem
func NewConfigManager() *ConfigManager {
	slog.Debug("creating new config manager")
	return NewConfigManagerWithFilesystem(afero.NewOsFs())
}

// NewConfigManagerWithFilesystem creates a configuration manager backed by the
// given filesystem (memory filesystems in tests)
func NewConfigManagerWithFilesystem(fsys afero.Fs) *ConfigManager {
	slog.Debug("creating new config manager with filesystem")
	return &ConfigManager{
		xdg:  NewXDGDirs(),
		fsys: fsys,
	}
}

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	defaultConfig := &Config{
		Volume:       100,
		LibraryPaths: []string{}, // XDG paths will be used
		LogLevel:     "warn",
		Engine: &EngineConfig{
			Type: "auto", // Default to auto-detection
		},
		Journal: GetDefaultJournalConfig(),
		FileLogging: &FileLoggingConfig{
			Enabled:    false, // Stream mode logs to stderr; opt in for file logs
			Filename:   "",    // Empty = XDG cache path
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}

	slog.Debug("generated default config",
		"volume", defaultConfig.Volume,
		"log_level", defaultConfig.LogLevel,
		"engine_type", defaultConfig.Engine.Type,
		"journal_enabled", defaultConfig.Journal.Enabled,
		"file_logging_enabled", defaultConfig.FileLogging.Enabled)

	return defaultConfig
}

// LoadFromFile loads configuration from a specific file
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.fsys, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = json.Unmarshal(data, &config)
	if err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	err = cm.ValidateConfig(&config)
	if err != nil {
		slog.Error("config validation failed", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"volume", config.Volume,
		"log_level", config.LogLevel)

	return &config, nil
}

// SaveToFile saves configuration to a specific file
func (cm *ConfigManager) SaveToFile(config *Config, filePath string) error {
	slog.Debug("saving config to file", "file_path", filePath)

	err := cm.ValidateConfig(config)
	if err != nil {
		slog.Error("cannot save invalid config", "error", err)
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(filePath)
	err = cm.fsys.MkdirAll(dir, 0755)
	if err != nil {
		slog.Error("failed to create config directory", "directory", dir, "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal with indentation for readability
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		slog.Error("failed to marshal config", "error", err)
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = afero.WriteFile(cm.fsys, filePath, data, 0644)
	if err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// LoadConfig loads configuration using XDG path discovery
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	slog.Debug("loading config using XDG path discovery")

	configPaths := cm.xdg.GetConfigPaths("config.json")

	slog.Debug("searching for config file", "paths", configPaths)

	// Try to load from each path in priority order
	for i, configPath := range configPaths {
		slog.Debug("checking config path", "path_index", i, "path", configPath)

		if _, err := cm.fsys.Stat(configPath); err == nil {
			slog.Debug("found config file", "path", configPath)
			return cm.LoadFromFile(configPath)
		} else {
			slog.Debug("config file not found", "path", configPath, "error", err)
		}
	}

	slog.Debug("no config file found, using defaults")
	return cm.GetDefaultConfig(), nil
}

// ValidateConfig validates configuration values
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var errors []string

	// Validate volume
	if config.Volume < 0 || config.Volume > 100 {
		errors = append(errors, fmt.Sprintf("volume must be between 0 and 100, got %d", config.Volume))
	}

	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if config.LogLevel != "" {
		valid := false
		for _, level := range validLogLevels {
			if config.LogLevel == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("invalid log level '%s', must be one of: %s",
				config.LogLevel, strings.Join(validLogLevels, ", ")))
		}
	}

	// Validate engine configuration
	if config.Engine != nil {
		engine := config.Engine

		if !cm.IsValidEngineType(engine.Type) {
			supportedEngines := cm.GetSupportedEngineTypes()
			errors = append(errors, fmt.Sprintf("invalid engine type '%s', must be one of: %s",
				engine.Type, strings.Join(supportedEngines, ", ")))
		}

		if engine.SampleRate < 0 {
			errors = append(errors, fmt.Sprintf("engine sample_rate must be >= 0, got %d", engine.SampleRate))
		}

		if engine.Channels < 0 || engine.Channels > 2 {
			errors = append(errors, fmt.Sprintf("engine channels must be 0, 1, or 2, got %d", engine.Channels))
		}

		if engine.TickMillis < 0 {
			errors = append(errors, fmt.Sprintf("engine tick_ms must be >= 0, got %d", engine.TickMillis))
		}
	}

	// Validate file logging configuration
	if config.FileLogging != nil {
		fileLogging := config.FileLogging

		if fileLogging.MaxSizeMB < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fileLogging.MaxSizeMB))
		}

		if fileLogging.MaxBackups < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fileLogging.MaxBackups))
		}

		if fileLogging.MaxAgeDays < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fileLogging.MaxAgeDays))
		}
	}

	if len(errors) > 0 {
		errMsg := strings.Join(errors, "; ")
		slog.Error("config validation failed", "errors", errMsg)
		return fmt.Errorf("config validation failed: %s", errMsg)
	}

	slog.Debug("config validation passed")
	return nil
}

// MergeConfigs merges two configurations, with override taking precedence
func (cm *ConfigManager) MergeConfigs(base, override *Config) *Config {
	slog.Debug("merging configurations")

	// Start with a copy of base
	merged := *base

	// Apply overrides (only non-zero values)
	if override.Volume != 0 {
		merged.Volume = override.Volume
		slog.Debug("merged volume override", "value", override.Volume)
	}

	if len(override.LibraryPaths) > 0 {
		merged.LibraryPaths = override.LibraryPaths
		slog.Debug("merged library paths override", "paths", override.LibraryPaths)
	}

	if override.AliasFile != "" {
		merged.AliasFile = override.AliasFile
		slog.Debug("merged alias file override", "value", override.AliasFile)
	}

	if override.LogLevel != "" {
		merged.LogLevel = override.LogLevel
		slog.Debug("merged log level override", "value", override.LogLevel)
	}

	if override.Engine != nil {
		merged.Engine = override.Engine
		slog.Debug("merged engine override", "type", override.Engine.Type)
	}

	if override.Journal != nil {
		merged.Journal = override.Journal
		slog.Debug("merged journal override", "enabled", override.Journal.Enabled)
	}

	if override.FileLogging != nil {
		merged.FileLogging = override.FileLogging
		slog.Debug("merged file logging override", "enabled", override.FileLogging.Enabled)
	}

	slog.Debug("configurations merged successfully")
	return &merged
}

// ApplyEnvironmentOverrides applies environment variable overrides to config
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	slog.Debug("applying environment variable overrides")

	// Create a copy to modify
	result := *config

	// SOUNDBRIDGE_VOLUME
	if volStr := os.Getenv("SOUNDBRIDGE_VOLUME"); volStr != "" {
		if vol, err := strconv.Atoi(volStr); err == nil {
			result.Volume = vol
			slog.Debug("applied volume override from environment", "value", vol)
		} else {
			slog.Warn("invalid SOUNDBRIDGE_VOLUME environment variable", "value", volStr, "error", err)
		}
	}

	// SOUNDBRIDGE_LIBRARY_PATHS
	if pathsStr := os.Getenv("SOUNDBRIDGE_LIBRARY_PATHS"); pathsStr != "" {
		paths := filepath.SplitList(pathsStr)
		result.LibraryPaths = paths
		slog.Debug("applied library paths override from environment", "paths", paths)
	}

	// SOUNDBRIDGE_LOG_LEVEL
	if logLevel := os.Getenv("SOUNDBRIDGE_LOG_LEVEL"); logLevel != "" {
		result.LogLevel = logLevel
		slog.Debug("applied log level override from environment", "value", logLevel)
	}

	// SOUNDBRIDGE_ENGINE
	if engineType := os.Getenv("SOUNDBRIDGE_ENGINE"); engineType != "" {
		// Validate the engine type before applying
		if cm.IsValidEngineType(engineType) {
			engine := EngineConfig{}
			if result.Engine != nil {
				engine = *result.Engine
			}
			engine.Type = engineType
			result.Engine = &engine
			slog.Debug("applied engine override from environment", "value", engineType)
		} else {
			slog.Warn("invalid SOUNDBRIDGE_ENGINE environment variable", "value", engineType)
		}
	}

	// SOUNDBRIDGE_JOURNAL
	if result.Journal != nil {
		result.Journal = ApplyJournalEnvironmentOverrides(result.Journal)
	}

	slog.Debug("environment overrides applied")
	return &result
}

// ApplyLogLevel configures slog with the specified log level
func (cm *ConfigManager) ApplyLogLevel(logLevel string) error {
	if logLevel == "" {
		slog.Debug("no log level specified, keeping current slog configuration")
		return nil
	}

	slog.Debug("applying log level configuration", "log_level", logLevel)

	// Parse log level string to slog.Level
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		err := fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", logLevel)
		slog.Error("invalid log level for slog configuration", "log_level", logLevel, "error", err)
		return err
	}

	// Create new handler with the specified level
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	// Set as default slog logger
	slog.SetDefault(slog.New(handler))

	slog.Debug("slog configured successfully", "log_level", logLevel, "slog_level", level)
	return nil
}

// ResolveLogFilePath resolves the log file path using XDG cache directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}

	// Use XDG cache directory for log files
	return filepath.Join(cm.xdg.GetCachePath("logs"), "soundbridge.log")
}

// ApplyLogLevelWithWriter configures slog with the specified log level and custom writer (for testing)
func (cm *ConfigManager) ApplyLogLevelWithWriter(logLevel string, writer io.Writer) error {
	if logLevel == "" {
		slog.Debug("no log level specified, keeping current slog configuration")
		return nil
	}

	slog.Debug("applying log level configuration with custom writer", "log_level", logLevel)

	// Parse log level string to slog.Level
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		err := fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", logLevel)
		slog.Error("invalid log level for slog configuration", "log_level", logLevel, "error", err)
		return err
	}

	// Create new handler with the specified level and writer
	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: level,
	})

	// Set as default slog logger
	slog.SetDefault(slog.New(handler))

	slog.Debug("slog configured successfully with custom writer", "log_level", logLevel, "slog_level", level)
	return nil
}

// GetSupportedEngineTypes returns a list of all supported engine types
func (cm *ConfigManager) GetSupportedEngineTypes() []string {
	return []string{"auto", "oto", "malgo", "silent"}
}

// IsValidEngineType checks if an engine type is supported
func (cm *ConfigManager) IsValidEngineType(engineType string) bool {
	// Empty string is valid (defaults to auto)
	if engineType == "" {
		return true
	}

	supported := cm.GetSupportedEngineTypes()
	for _, supportedType := range supported {
		if engineType == supportedType {
			return true
		}
	}
	return false
}
