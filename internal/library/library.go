// Package library resolves command source names to playable files.
// A bare name like "click" is searched across the library roots with
// every supported extension; explicit paths are used as given.
package library

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/afero"
)

// PathMapper defines how to map a source name to candidate file paths
type PathMapper interface {
	// MapPath converts a source name to candidate paths, most
	// specific first
	MapPath(name string) ([]string, error)
	Name() string
	Type() string
}

// Resolver resolves source names using a configurable mapping strategy
type Resolver struct {
	fsys   afero.Fs
	mapper PathMapper
}

// NewResolver creates a resolver over the given filesystem and mapper
func NewResolver(fsys afero.Fs, mapper PathMapper) *Resolver {
	slog.Debug("creating library resolver",
		"mapper_name", mapper.Name(),
		"mapper_type", mapper.Type())

	return &Resolver{
		fsys:   fsys,
		mapper: mapper,
	}
}

// Resolve returns the first candidate path that exists for name
func (r *Resolver) Resolve(name string) (string, error) {
	if name == "" {
		err := fmt.Errorf("source name cannot be empty")
		slog.Error("resolve failed", "error", err)
		return "", err
	}

	candidates, err := r.mapper.MapPath(name)
	if err != nil {
		slog.Error("path mapping failed", "name", name, "error", err)
		return "", fmt.Errorf("path mapping failed: %w", err)
	}

	slog.Debug("path mapping completed",
		"name", name,
		"candidates_count", len(candidates),
		"mapper_type", r.mapper.Type())

	for i, candidate := range candidates {
		if _, err := r.fsys.Stat(candidate); err == nil {
			slog.Info("source resolved",
				"name", name,
				"resolved_path", candidate,
				"candidate_index", i)
			return candidate, nil
		}
	}

	slog.Warn("source not resolved",
		"name", name,
		"candidates_checked", len(candidates),
		"mapper_type", r.mapper.Type())

	return "", &NotFoundError{
		Name:     name,
		Searched: candidates,
	}
}

// ResolveFirst tries multiple source names in order until one resolves
func (r *Resolver) ResolveFirst(names []string) (string, error) {
	if len(names) == 0 {
		err := fmt.Errorf("no source names provided")
		slog.Error("fallback resolution failed", "error", err)
		return "", err
	}

	var lastErr error
	for i, name := range names {
		resolved, err := r.Resolve(name)
		if err == nil {
			slog.Debug("fallback resolution successful",
				"resolved_path", resolved,
				"fallback_index", i)
			return resolved, nil
		}
		lastErr = err
	}

	slog.Warn("all fallback names failed", "names_tried", len(names))
	return "", lastErr
}

// Name returns the name of the underlying mapper
func (r *Resolver) Name() string {
	return r.mapper.Name()
}

// Type returns the type of the underlying mapper
func (r *Resolver) Type() string {
	return r.mapper.Type()
}

// NotFoundError reports a source that matched none of its candidates
type NotFoundError struct {
	Name     string
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("sound source not found: %s (searched: %s)", e.Name, strings.Join(e.Searched, ", "))
}

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
