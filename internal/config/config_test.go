package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestConfigManager(t *testing.T) {
	mgr := NewConfigManager()

	if mgr == nil {
		t.Fatal("NewConfigManager returned nil")
	}
}

func TestLoadDefaultConfig(t *testing.T) {
	mgr := NewConfigManager()

	config := mgr.GetDefaultConfig()

	// Verify default values
	if config.Volume < 0 || config.Volume > 100 {
		t.Errorf("Default volume %d should be between 0 and 100", config.Volume)
	}

	if config.LogLevel != "warn" {
		t.Errorf("Default log level = %s, expected 'warn'", config.LogLevel)
	}

	if config.Engine == nil || config.Engine.Type != "auto" {
		t.Errorf("Default engine should be auto, got %+v", config.Engine)
	}

	if config.Journal == nil || !config.Journal.Enabled {
		t.Error("Default journal config should be enabled")
	}

	// Note: LibraryPaths can be empty in default config since XDG paths are used

	t.Logf("Default config: %+v", config)
}

func TestLoadConfigAutoDiscovery(t *testing.T) {
	mgr := NewConfigManager()

	// Create a temporary directory to simulate XDG config directory
	tempDir := t.TempDir()
	configDir := filepath.Join(tempDir, "soundbridge")
	err := os.MkdirAll(configDir, 0755)
	if err != nil {
		t.Fatalf("Failed to create config directory: %v", err)
	}

	// Create a test config file
	configFile := filepath.Join(configDir, "config.json")
	testConfig := &Config{
		Volume:       80,
		LibraryPaths: []string{"/test/path"},
		LogLevel:     "debug",
		Engine:       &EngineConfig{Type: "silent"},
	}

	// Write the config file
	configData, err := json.MarshalIndent(testConfig, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal test config: %v", err)
	}

	err = os.WriteFile(configFile, configData, 0644)
	if err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	// Mock the XDG config paths to point to our temp directory
	originalXDG := mgr.xdg
	mockXDG := &MockXDGDirs{
		configPaths: []string{configFile},
	}
	mgr.xdg = mockXDG

	// Test auto-discovery - should find and load our config
	loadedConfig, err := mgr.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	// Verify the config was loaded correctly
	if loadedConfig.Volume != testConfig.Volume {
		t.Errorf("Expected volume %d, got %d", testConfig.Volume, loadedConfig.Volume)
	}

	if loadedConfig.Engine == nil || loadedConfig.Engine.Type != "silent" {
		t.Errorf("Expected engine type 'silent', got %+v", loadedConfig.Engine)
	}

	if len(loadedConfig.LibraryPaths) != len(testConfig.LibraryPaths) {
		t.Errorf("Expected %d library paths, got %d", len(testConfig.LibraryPaths), len(loadedConfig.LibraryPaths))
	}

	// Restore original XDG
	mgr.xdg = originalXDG

	t.Logf("Auto-discovery test passed: loaded config %+v", loadedConfig)
}

// MockXDGDirs is a mock implementation for testing
type MockXDGDirs struct {
	configPaths []string
}

func (m *MockXDGDirs) GetConfigPaths(filename string) []string {
	return m.configPaths
}

func (m *MockXDGDirs) GetCachePath(purpose string) string {
	return "/tmp/test-cache"
}

func (m *MockXDGDirs) CreateCacheDir(purpose string) error {
	return nil
}

func TestLoadConfigFromFile(t *testing.T) {
	mgr := NewConfigManager()

	// Create a temporary config file
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "test-config.json")

	testConfig := &Config{
		Volume:       75,
		LibraryPaths: []string{"/custom/path"},
		AliasFile:    "/custom/aliases.json",
		LogLevel:     "warn",
	}

	// Write test config to file
	data, err := json.MarshalIndent(testConfig, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal test config: %v", err)
	}

	err = os.WriteFile(configFile, data, 0644)
	if err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	// Load config from file
	loadedConfig, err := mgr.LoadFromFile(configFile)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	// Verify loaded config matches
	if loadedConfig.Volume != testConfig.Volume {
		t.Errorf("Volume = %d, expected %d", loadedConfig.Volume, testConfig.Volume)
	}

	if loadedConfig.AliasFile != testConfig.AliasFile {
		t.Errorf("AliasFile = %s, expected %s", loadedConfig.AliasFile, testConfig.AliasFile)
	}

	if loadedConfig.LogLevel != testConfig.LogLevel {
		t.Errorf("LogLevel = %s, expected %s", loadedConfig.LogLevel, testConfig.LogLevel)
	}
}

func TestLoadConfigWithValidation(t *testing.T) {
	mgr := NewConfigManager()

	testCases := []struct {
		name        string
		config      *Config
		shouldError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			config: &Config{
				Volume:       50,
				LibraryPaths: []string{"/valid/path"},
				LogLevel:     "info",
			},
			shouldError: false,
		},
		{
			name: "volume too high",
			config: &Config{
				Volume: 150,
			},
			shouldError: true,
			errorMsg:    "volume",
		},
		{
			name: "volume too low",
			config: &Config{
				Volume: -5,
			},
			shouldError: true,
			errorMsg:    "volume",
		},
		{
			name: "invalid log level",
			config: &Config{
				Volume:   50,
				LogLevel: "invalid",
			},
			shouldError: true,
			errorMsg:    "log level",
		},
		{
			name: "invalid engine type",
			config: &Config{
				Volume: 50,
				Engine: &EngineConfig{Type: "pulseaudio"},
			},
			shouldError: true,
			errorMsg:    "engine type",
		},
		{
			name: "negative sample rate",
			config: &Config{
				Volume: 50,
				Engine: &EngineConfig{Type: "oto", SampleRate: -1},
			},
			shouldError: true,
			errorMsg:    "sample_rate",
		},
		{
			name: "too many channels",
			config: &Config{
				Volume: 50,
				Engine: &EngineConfig{Type: "oto", Channels: 3},
			},
			shouldError: true,
			errorMsg:    "channels",
		},
		{
			name: "negative tick interval",
			config: &Config{
				Volume: 50,
				Engine: &EngineConfig{Type: "oto", TickMillis: -10},
			},
			shouldError: true,
			errorMsg:    "tick_ms",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := mgr.ValidateConfig(tc.config)

			if tc.shouldError {
				if err == nil {
					t.Error("Expected validation error but got none")
				} else if tc.errorMsg != "" && !contains(err.Error(), tc.errorMsg) {
					t.Errorf("Expected error containing %q, got: %v", tc.errorMsg, err)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected validation error: %v", err)
				}
			}
		})
	}
}

func TestSaveConfig(t *testing.T) {
	mgr := NewConfigManager()

	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "save-test.json")

	testConfig := &Config{
		Volume:       80,
		LibraryPaths: []string{"/test/path1", "/test/path2"},
		LogLevel:     "debug",
		Engine:       &EngineConfig{Type: "oto", SampleRate: 48000},
	}

	// Save config
	err := mgr.SaveToFile(testConfig, configFile)
	if err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	// Verify file exists and is readable
	data, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("Failed to read saved config file: %v", err)
	}

	// Parse saved file
	var savedConfig Config
	err = json.Unmarshal(data, &savedConfig)
	if err != nil {
		t.Fatalf("Failed to parse saved config: %v", err)
	}

	// Verify content matches
	if savedConfig.Volume != testConfig.Volume {
		t.Errorf("Saved volume = %d, expected %d", savedConfig.Volume, testConfig.Volume)
	}

	if savedConfig.Engine == nil || savedConfig.Engine.SampleRate != 48000 {
		t.Errorf("Saved engine = %+v, expected sample rate 48000", savedConfig.Engine)
	}

	// Verify file is properly formatted JSON
	if !json.Valid(data) {
		t.Error("Saved file is not valid JSON")
	}

	t.Logf("Saved config content: %s", string(data))
}

func TestConfigMerging(t *testing.T) {
	mgr := NewConfigManager()

	baseConfig := &Config{
		Volume:       50,
		LibraryPaths: []string{"/base/path"},
		AliasFile:    "/base/aliases.json",
		LogLevel:     "info",
		Engine:       &EngineConfig{Type: "auto"},
	}

	overrideConfig := &Config{
		Volume: 80,
		// LibraryPaths intentionally omitted
		// AliasFile intentionally omitted
		LogLevel: "debug",
		Engine:   &EngineConfig{Type: "silent"},
	}

	merged := mgr.MergeConfigs(baseConfig, overrideConfig)

	// Overridden values
	if merged.Volume != 80 {
		t.Errorf("Merged volume = %d, expected 80", merged.Volume)
	}

	if merged.LogLevel != "debug" {
		t.Errorf("Merged log level = %s, expected 'debug'", merged.LogLevel)
	}

	if merged.Engine == nil || merged.Engine.Type != "silent" {
		t.Errorf("Merged engine = %+v, expected type 'silent'", merged.Engine)
	}

	// Base values preserved
	if merged.AliasFile != "/base/aliases.json" {
		t.Errorf("Merged alias file = %s, expected '/base/aliases.json'", merged.AliasFile)
	}

	if len(merged.LibraryPaths) != 1 || merged.LibraryPaths[0] != "/base/path" {
		t.Errorf("Merged library paths = %v, expected ['/base/path']", merged.LibraryPaths)
	}
}

func TestConfigEnvironmentOverrides(t *testing.T) {
	mgr := NewConfigManager()

	// Set environment variables
	libraryPaths := strings.Join([]string{"/env/sounds", "/env/more-sounds"}, string(os.PathListSeparator))
	os.Setenv("SOUNDBRIDGE_VOLUME", "90")
	os.Setenv("SOUNDBRIDGE_LIBRARY_PATHS", libraryPaths)
	os.Setenv("SOUNDBRIDGE_LOG_LEVEL", "error")
	defer func() {
		os.Unsetenv("SOUNDBRIDGE_VOLUME")
		os.Unsetenv("SOUNDBRIDGE_LIBRARY_PATHS")
		os.Unsetenv("SOUNDBRIDGE_LOG_LEVEL")
	}()

	baseConfig := &Config{
		Volume:    50,
		AliasFile: "/base/aliases.json",
		LogLevel:  "info",
	}

	finalConfig := mgr.ApplyEnvironmentOverrides(baseConfig)

	// Environment overrides should take effect
	if finalConfig.Volume != 90 {
		t.Errorf("Volume = %d, expected 90 from env", finalConfig.Volume)
	}

	if len(finalConfig.LibraryPaths) != 2 || finalConfig.LibraryPaths[0] != "/env/sounds" {
		t.Errorf("LibraryPaths = %v, expected two paths from env", finalConfig.LibraryPaths)
	}

	if finalConfig.LogLevel != "error" {
		t.Errorf("LogLevel = %s, expected 'error' from env", finalConfig.LogLevel)
	}

	// Non-overridden values should remain
	if finalConfig.AliasFile != "/base/aliases.json" {
		t.Errorf("AliasFile = %s, expected '/base/aliases.json' (unchanged)", finalConfig.AliasFile)
	}
}

func TestConfigEnvironmentOverridesInvalidVolume(t *testing.T) {
	mgr := NewConfigManager()

	os.Setenv("SOUNDBRIDGE_VOLUME", "loud")
	defer os.Unsetenv("SOUNDBRIDGE_VOLUME")

	baseConfig := &Config{Volume: 50}

	finalConfig := mgr.ApplyEnvironmentOverrides(baseConfig)

	// Unparseable volume should be ignored
	if finalConfig.Volume != 50 {
		t.Errorf("Volume = %d, expected 50 (invalid env ignored)", finalConfig.Volume)
	}
}

func TestConfigErrorHandling(t *testing.T) {
	mgr := NewConfigManager()

	t.Run("invalid JSON file", func(t *testing.T) {
		tempDir := t.TempDir()
		configFile := filepath.Join(tempDir, "invalid.json")

		// Write invalid JSON
		err := os.WriteFile(configFile, []byte("{invalid json"), 0644)
		if err != nil {
			t.Fatalf("Failed to write invalid JSON: %v", err)
		}

		_, err = mgr.LoadFromFile(configFile)
		if err == nil {
			t.Error("Expected error loading invalid JSON")
		}
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := mgr.LoadFromFile("/non/existent/file.json")
		if err == nil {
			t.Error("Expected error loading non-existent file")
		}
	})

	t.Run("invalid values rejected on load", func(t *testing.T) {
		tempDir := t.TempDir()
		configFile := filepath.Join(tempDir, "bad-values.json")

		err := os.WriteFile(configFile, []byte(`{"volume": 400}`), 0644)
		if err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}

		_, err = mgr.LoadFromFile(configFile)
		if err == nil {
			t.Error("Expected validation error loading out-of-range volume")
		}
	})
}

func TestConfigManagerWithMemoryFilesystem(t *testing.T) {
	memFS := afero.NewMemMapFs()

	cm := NewConfigManagerWithFilesystem(memFS)
	if cm == nil {
		t.Fatal("Expected ConfigManager with filesystem support")
	}

	// Create test config in memory filesystem
	configPath := "/test/config.json"
	testConfig := `{
		"volume": 80,
		"log_level": "debug"
	}`

	err := memFS.MkdirAll(filepath.Dir(configPath), 0755)
	if err != nil {
		t.Fatalf("Failed to create directory in memory fs: %v", err)
	}

	err = afero.WriteFile(memFS, configPath, []byte(testConfig), 0644)
	if err != nil {
		t.Fatalf("Failed to write test config to memory fs: %v", err)
	}

	config, err := cm.LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("Expected successful config loading from memory fs, got error: %v", err)
	}

	if config.Volume != 80 {
		t.Errorf("Expected volume 80, got %d", config.Volume)
	}

	if config.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug', got %s", config.LogLevel)
	}
}

func TestSaveConfigIsolationFromRealFilesystem(t *testing.T) {
	memFS := afero.NewMemMapFs()
	cm := NewConfigManagerWithFilesystem(memFS)

	// Write to memory filesystem path that could exist on real filesystem
	dangerousPath := "/tmp/soundbridge-test-isolation.json"
	config := cm.GetDefaultConfig()

	err := cm.SaveToFile(config, dangerousPath)
	if err != nil {
		t.Fatalf("Failed to write to memory filesystem: %v", err)
	}

	// Verify file does NOT exist on real filesystem (only in memory)
	if _, err := os.Stat(dangerousPath); err == nil {
		t.Error("Config was written to REAL filesystem instead of memory - isolation broken!")
	}

	// But should exist in memory filesystem
	exists, err := afero.Exists(memFS, dangerousPath)
	if err != nil {
		t.Errorf("Error checking memory fs: %v", err)
	}
	if !exists {
		t.Error("Config should exist in memory filesystem")
	}
}

func TestLogLevelApplicationToSlog(t *testing.T) {
	mgr := NewConfigManager()

	// Capture log output to verify level is applied
	var logBuffer strings.Builder
	originalHandler := slog.Default().Handler()
	defer slog.SetDefault(slog.New(originalHandler))

	// First, apply log level configuration with warn level
	err := mgr.ApplyLogLevelWithWriter("warn", &logBuffer)
	if err != nil {
		t.Fatalf("ApplyLogLevelWithWriter should not error for valid log level: %v", err)
	}

	// Test that DEBUG and INFO logs are filtered out when level is WARN
	slog.Debug("this debug message should not appear")
	slog.Info("this info message should not appear")
	slog.Warn("this warning should appear")
	slog.Error("this error should appear")

	logOutput := logBuffer.String()

	if strings.Contains(logOutput, "this debug message should not appear") {
		t.Errorf("DEBUG logs should be filtered out when log level is warn, but found debug message in output")
		t.Logf("Full log output: %s", logOutput)
	}

	if strings.Contains(logOutput, "this info message should not appear") {
		t.Errorf("INFO logs should be filtered out when log level is warn, but found info message in output")
		t.Logf("Full log output: %s", logOutput)
	}

	// WARN and ERROR should still appear
	if !strings.Contains(logOutput, "this warning should appear") {
		t.Errorf("WARN logs should appear when log level is warn, but warning message not found in output")
		t.Logf("Full log output: %s", logOutput)
	}

	if !strings.Contains(logOutput, "this error should appear") {
		t.Errorf("ERROR logs should appear when log level is warn, but error message not found in output")
		t.Logf("Full log output: %s", logOutput)
	}
}

func TestApplyLogLevelInvalid(t *testing.T) {
	mgr := NewConfigManager()

	var logBuffer strings.Builder
	originalHandler := slog.Default().Handler()
	defer slog.SetDefault(slog.New(originalHandler))

	err := mgr.ApplyLogLevelWithWriter("verbose", &logBuffer)
	if err == nil {
		t.Error("Expected error for invalid log level")
	}

	// Empty level keeps current configuration without error
	err = mgr.ApplyLogLevelWithWriter("", &logBuffer)
	if err != nil {
		t.Errorf("Empty log level should not error: %v", err)
	}
}

func TestConfig_FileLoggingFields(t *testing.T) {
	mgr := NewConfigManager()

	// Test parsing config with file logging configuration
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "file-logging-config.json")

	testConfigJSON := `{
		"volume": 50,
		"log_level": "info",
		"file_logging": {
			"enabled": true,
			"filename": "/custom/path/soundbridge.log",
			"max_size_mb": 15,
			"max_backups": 3,
			"max_age_days": 14,
			"compress": true
		}
	}`

	err := os.WriteFile(configFile, []byte(testConfigJSON), 0644)
	if err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	loadedConfig, err := mgr.LoadFromFile(configFile)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	// Verify file logging config was parsed correctly
	if loadedConfig.FileLogging == nil {
		t.Error("FileLogging should not be nil")
		return
	}

	fileConfig := loadedConfig.FileLogging
	if !fileConfig.Enabled {
		t.Error("FileLogging.Enabled should be true")
	}
	if fileConfig.Filename != "/custom/path/soundbridge.log" {
		t.Errorf("FileLogging.Filename = %q, expected '/custom/path/soundbridge.log'", fileConfig.Filename)
	}
	if fileConfig.MaxSizeMB != 15 {
		t.Errorf("FileLogging.MaxSizeMB = %d, expected 15", fileConfig.MaxSizeMB)
	}
	if fileConfig.MaxBackups != 3 {
		t.Errorf("FileLogging.MaxBackups = %d, expected 3", fileConfig.MaxBackups)
	}
	if fileConfig.MaxAgeDays != 14 {
		t.Errorf("FileLogging.MaxAgeDays = %d, expected 14", fileConfig.MaxAgeDays)
	}
	if !fileConfig.Compress {
		t.Error("FileLogging.Compress should be true")
	}
}

func TestConfig_FileLoggingDefaults(t *testing.T) {
	mgr := NewConfigManager()

	defaultConfig := mgr.GetDefaultConfig()

	// Verify file logging defaults
	if defaultConfig.FileLogging == nil {
		t.Error("FileLogging should have default values, not be nil")
		return
	}

	fileConfig := defaultConfig.FileLogging
	if fileConfig.Enabled {
		t.Error("FileLogging.Enabled should default to false for stream usage")
	}
	if fileConfig.Filename != "" {
		t.Errorf("FileLogging.Filename should default to empty string for XDG path, got %q", fileConfig.Filename)
	}
	if fileConfig.MaxSizeMB != 10 {
		t.Errorf("FileLogging.MaxSizeMB should default to 10, got %d", fileConfig.MaxSizeMB)
	}
	if fileConfig.MaxBackups != 5 {
		t.Errorf("FileLogging.MaxBackups should default to 5, got %d", fileConfig.MaxBackups)
	}
	if fileConfig.MaxAgeDays != 30 {
		t.Errorf("FileLogging.MaxAgeDays should default to 30, got %d", fileConfig.MaxAgeDays)
	}
	if !fileConfig.Compress {
		t.Error("FileLogging.Compress should default to true")
	}
}

func TestConfig_FileLoggingValidation(t *testing.T) {
	mgr := NewConfigManager()

	testCases := []struct {
		name        string
		fileLogging *FileLoggingConfig
		shouldError bool
		errorMsg    string
	}{
		{
			name: "valid file logging config",
			fileLogging: &FileLoggingConfig{
				Enabled:    true,
				Filename:   "/valid/path/soundbridge.log",
				MaxSizeMB:  10,
				MaxBackups: 5,
				MaxAgeDays: 30,
				Compress:   true,
			},
			shouldError: false,
		},
		{
			name: "negative max size",
			fileLogging: &FileLoggingConfig{
				Enabled:   true,
				MaxSizeMB: -1,
			},
			shouldError: true,
			errorMsg:    "max_size_mb",
		},
		{
			name: "negative max backups",
			fileLogging: &FileLoggingConfig{
				Enabled:    true,
				MaxBackups: -1,
			},
			shouldError: true,
			errorMsg:    "max_backups",
		},
		{
			name: "negative max age",
			fileLogging: &FileLoggingConfig{
				Enabled:    true,
				MaxAgeDays: -1,
			},
			shouldError: true,
			errorMsg:    "max_age_days",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := &Config{
				Volume:      50,
				LogLevel:    "info",
				FileLogging: tc.fileLogging,
			}

			err := mgr.ValidateConfig(config)

			if tc.shouldError {
				if err == nil {
					t.Error("Expected validation error but got none")
				} else if tc.errorMsg != "" && !contains(err.Error(), tc.errorMsg) {
					t.Errorf("Expected error containing %q, got: %v", tc.errorMsg, err)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected validation error: %v", err)
				}
			}
		})
	}
}

func TestXDG_LogPath(t *testing.T) {
	mgr := NewConfigManager()

	// Test with custom filename - should return as-is
	customPath := "/custom/path/my-soundbridge.log"
	resolved := mgr.ResolveLogFilePath(customPath)
	if resolved != customPath {
		t.Errorf("ResolveLogFilePath with custom path = %q, expected %q", resolved, customPath)
	}

	// Test with empty filename - should use XDG cache path
	resolved = mgr.ResolveLogFilePath("")
	expectedPath := filepath.Join(mgr.xdg.GetCachePath("logs"), "soundbridge.log")
	if resolved != expectedPath {
		t.Errorf("ResolveLogFilePath with empty filename = %q, expected %q", resolved, expectedPath)
	}

	// Verify the XDG path follows expected pattern
	if !strings.HasSuffix(resolved, filepath.Join("soundbridge", "logs", "soundbridge.log")) {
		t.Errorf("XDG log path should end with 'soundbridge/logs/soundbridge.log', got %q", resolved)
	}

	// Test that different purposes create different cache paths
	otherCachePath := mgr.xdg.GetCachePath("other")
	logCachePath := mgr.xdg.GetCachePath("logs")
	if otherCachePath == logCachePath {
		t.Error("Different cache purposes should create different paths")
	}
}

// Helper function
func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
