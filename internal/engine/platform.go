package engine

import (
	"log/slog"
	"os"
	"strings"
)

// IsWSL checks if the current environment is Windows Subsystem for Linux
func IsWSL() bool {
	return detectWSLFromData(readProcVersion(), os.Getenv("WSL_DISTRO_NAME"))
}

// detectWSLFromData checks for WSL indicators in the provided data (for testing)
func detectWSLFromData(procVersion, wslEnv string) bool {
	slog.Debug("checking WSL detection", "proc_version_snippet", truncateString(procVersion, 50), "wsl_env", wslEnv)

	// Check WSL_DISTRO_NAME environment variable (WSL sets this)
	if wslEnv != "" {
		slog.Debug("WSL detected via environment variable", "distro", wslEnv)
		return true
	}

	// Check /proc/version for Microsoft or WSL indicators
	procLower := strings.ToLower(procVersion)
	if strings.Contains(procLower, "microsoft") || strings.Contains(procLower, "wsl") {
		slog.Debug("WSL detected via /proc/version", "indicators", "microsoft or wsl found")
		return true
	}

	slog.Debug("no WSL indicators found")
	return false
}

// readProcVersion reads /proc/version file content
func readProcVersion() string {
	content, err := os.ReadFile("/proc/version")
	if err != nil {
		slog.Debug("failed to read /proc/version", "error", err)
		return ""
	}
	return string(content)
}

// DetectOptimalEngine determines the best audio engine for the current system
func DetectOptimalEngine() string {
	return detectOptimalEngineForPlatform(IsWSL())
}

// detectOptimalEngineForPlatform allows dependency injection for testing
func detectOptimalEngineForPlatform(isWSL bool) string {
	slog.Debug("detecting optimal audio engine", "is_wsl", isWSL)

	if isWSL {
		// In WSL, prefer the pure Go output path to avoid malgo
		// crackling issues
		slog.Debug("WSL detected, preferring oto over malgo")
		return "oto"
	}

	slog.Debug("native system detected, preferring malgo engine")
	return "malgo"
}

// truncateString truncates a string to maxLen characters for logging
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
