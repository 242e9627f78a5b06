package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
)

// Factory creates Engine instances based on configuration
type Factory interface {
	CreateEngine(engineType string, opts Options, fsys afero.Fs) (Engine, error)
	SupportedEngines() []string
	IsValidEngineType(engineType string) bool
}

// DefaultFactory implements Factory with platform detection
type DefaultFactory struct {
	isWSLFunc func() bool
}

// Factory errors
var (
	ErrInvalidEngineType    = errors.New("invalid engine type")
	ErrEngineCreationFailed = errors.New("engine creation failed")
)

// NewFactory creates a new DefaultFactory with real platform detection
func NewFactory() *DefaultFactory {
	return &DefaultFactory{
		isWSLFunc: IsWSL,
	}
}

// NewFactoryWithDependencies creates a factory with injected platform
// detection for testing
func NewFactoryWithDependencies(isWSLFunc func() bool) *DefaultFactory {
	return &DefaultFactory{
		isWSLFunc: isWSLFunc,
	}
}

// CreateEngine creates an Engine instance based on the specified type
func (f *DefaultFactory) CreateEngine(engineType string, opts Options, fsys afero.Fs) (Engine, error) {
	// Default empty string to "auto"
	if engineType == "" {
		engineType = "auto"
	}

	slog.Debug("creating audio engine", "type", engineType)

	switch engineType {
	case "auto":
		return f.createAutoEngine(opts, fsys)
	case "oto":
		return NewOtoEngine(opts, fsys)
	case "malgo":
		return NewMalgoEngine(opts, fsys)
	case "silent":
		return NewSilentEngine(opts, fsys), nil
	default:
		slog.Error("invalid engine type requested", "type", engineType)
		return nil, fmt.Errorf("%w: %s", ErrInvalidEngineType, engineType)
	}
}

// SupportedEngines returns a list of all supported engine types
func (f *DefaultFactory) SupportedEngines() []string {
	return []string{"auto", "oto", "malgo", "silent"}
}

// IsValidEngineType checks if an engine type is supported
func (f *DefaultFactory) IsValidEngineType(engineType string) bool {
	// Empty string is valid (defaults to auto)
	if engineType == "" {
		return true
	}

	for _, supported := range f.SupportedEngines() {
		if engineType == supported {
			return true
		}
	}
	return false
}

// createAutoEngine selects the best engine for the current platform.
// The silent engine is never auto-selected; it must be asked for.
func (f *DefaultFactory) createAutoEngine(opts Options, fsys afero.Fs) (Engine, error) {
	slog.Debug("auto-detecting optimal engine")

	optimalType := detectOptimalEngineForPlatform(f.isWSLFunc())
	slog.Debug("auto-detection result", "selected_type", optimalType)

	switch optimalType {
	case "oto":
		return NewOtoEngine(opts, fsys)
	case "malgo":
		eng, err := NewMalgoEngine(opts, fsys)
		if errors.Is(err, ErrEngineNotAvailable) {
			slog.Warn("malgo engine unavailable, falling back to oto", "error", err)
			return NewOtoEngine(opts, fsys)
		}
		return eng, err
	default:
		slog.Error("auto-detection returned invalid engine type", "type", optimalType)
		return nil, fmt.Errorf("%w: auto-detection failed", ErrEngineCreationFailed)
	}
}
