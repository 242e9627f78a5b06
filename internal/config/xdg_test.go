package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestXDGDirectories(t *testing.T) {
	xdg := NewXDGDirs()

	if xdg == nil {
		t.Fatal("NewXDGDirs returned nil")
	}
}

func TestXDGCachePaths(t *testing.T) {
	xdg := NewXDGDirs()

	testCases := []struct {
		name         string
		purpose      string
		expectedPath string // should contain this pattern
	}{
		{
			name:         "log cache",
			purpose:      "logs",
			expectedPath: "soundbridge/logs",
		},
		{
			name:         "journal cache",
			purpose:      "journal",
			expectedPath: "soundbridge/journal",
		},
		{
			name:         "empty purpose",
			purpose:      "",
			expectedPath: "soundbridge",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := xdg.GetCachePath(tc.purpose)

			if path == "" {
				t.Error("GetCachePath returned empty string")
				return
			}

			if !filepath.IsAbs(path) {
				t.Errorf("Cache path %s is not absolute", path)
			}

			if !strings.HasSuffix(path, tc.expectedPath) {
				t.Errorf("Cache path %s does not end with expected pattern %s", path, tc.expectedPath)
			}

			t.Logf("Cache path for %s: %s", tc.purpose, path)
		})
	}
}

func TestXDGConfigPaths(t *testing.T) {
	xdg := NewXDGDirs()

	testCases := []struct {
		name         string
		filename     string
		expectedFile string
	}{
		{
			name:         "main config file",
			filename:     "config.json",
			expectedFile: "config.json",
		},
		{
			name:         "alias table",
			filename:     "aliases.json",
			expectedFile: "aliases.json",
		},
		{
			name:         "empty filename",
			filename:     "",
			expectedFile: "", // should handle gracefully
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			paths := xdg.GetConfigPaths(tc.filename)

			if len(paths) == 0 {
				t.Error("GetConfigPaths returned empty slice")
				return
			}

			// Verify all paths are absolute
			for i, path := range paths {
				if !filepath.IsAbs(path) {
					t.Errorf("Path[%d] = %s is not absolute", i, path)
				}

				if tc.filename != "" && !strings.HasSuffix(path, tc.expectedFile) {
					t.Errorf("Path[%d] = %s does not end with expected file %s", i, path, tc.expectedFile)
				}
			}

			// All paths should contain the soundbridge directory
			for i, path := range paths {
				if !strings.Contains(path, "soundbridge") {
					t.Errorf("Path[%d] = %s does not contain 'soundbridge' directory", i, path)
				}
			}

			t.Logf("Config paths for %s: %v", tc.filename, paths)
		})
	}
}

func TestXDGConfigPathOrder(t *testing.T) {
	xdg := NewXDGDirs()

	paths := xdg.GetConfigPaths("config.json")
	if len(paths) < 1 {
		t.Fatal("GetConfigPaths returned no paths")
	}

	// First path is the user config directory, which should live under
	// the user's home or XDG_CONFIG_HOME
	home, err := os.UserHomeDir()
	if err == nil && os.Getenv("XDG_CONFIG_HOME") == "" {
		if !strings.HasPrefix(paths[0], home) {
			t.Errorf("First config path %s should be under home %s", paths[0], home)
		}
	}

	t.Logf("Config path order: %v", paths)
}

func TestXDGCreateCacheDir(t *testing.T) {
	xdg := NewXDGDirs()

	// Use a test-specific subdirectory to avoid conflicts
	testCacheDir := xdg.GetCachePath("test-create")

	// Clean up before and after test
	defer os.RemoveAll(testCacheDir)
	os.RemoveAll(testCacheDir)

	// Verify directory doesn't exist initially
	if _, err := os.Stat(testCacheDir); !os.IsNotExist(err) {
		t.Fatalf("Test cache directory %s already exists", testCacheDir)
	}

	// Create the directory
	err := xdg.CreateCacheDir("test-create")
	if err != nil {
		t.Fatalf("CreateCacheDir failed: %v", err)
	}

	// Verify directory was created
	info, err := os.Stat(testCacheDir)
	if err != nil {
		t.Fatalf("Cache directory was not created: %v", err)
	}

	if !info.IsDir() {
		t.Error("Created cache path is not a directory")
	}

	// Test creating again (should not error)
	err = xdg.CreateCacheDir("test-create")
	if err != nil {
		t.Errorf("CreateCacheDir failed on existing directory: %v", err)
	}
}
