package library

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// probeExtensions is the search order for extension-less names
var probeExtensions = []string{".wav", ".mp3", ".aiff", ".aif"}

// DirectoryMapper maps source names to candidates under library roots
type DirectoryMapper struct {
	name  string
	roots []string
}

// NewDirectoryMapper creates a directory-based path mapper
func NewDirectoryMapper(name string, roots []string) *DirectoryMapper {
	slog.Debug("creating directory mapper",
		"name", name,
		"roots", roots,
		"roots_count", len(roots))

	return &DirectoryMapper{
		name:  name,
		roots: roots,
	}
}

// MapPath converts a source name to candidate paths. Absolute paths
// and paths with separators bypass the roots; bare names without an
// extension are probed with every supported extension per root.
func (d *DirectoryMapper) MapPath(name string) ([]string, error) {
	if name == "" {
		return []string{}, nil
	}

	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		slog.Debug("explicit path bypasses library roots", "name", name)
		return []string{filepath.Clean(name)}, nil
	}

	var candidates []string
	for _, root := range d.roots {
		if filepath.Ext(name) != "" {
			candidates = append(candidates, filepath.Join(root, name))
			continue
		}
		for _, ext := range probeExtensions {
			candidates = append(candidates, filepath.Join(root, name+ext))
		}
	}

	slog.Debug("directory mapping completed",
		"name", name,
		"candidates_count", len(candidates),
		"mapper_name", d.name)

	return candidates, nil
}

// Name returns the name of this directory mapper
func (d *DirectoryMapper) Name() string {
	return d.name
}

// Type returns the type identifier for directory mappers
func (d *DirectoryMapper) Type() string {
	return "directory"
}

// DefaultRoots returns the library search roots: any explicitly
// configured directories first, then the XDG data locations.
func DefaultRoots(extra ...string) []string {
	roots := append([]string(nil), extra...)
	roots = append(roots, filepath.Join(xdg.DataHome, "soundbridge", "sounds"))
	for _, dir := range xdg.DataDirs {
		roots = append(roots, filepath.Join(dir, "soundbridge", "sounds"))
	}

	slog.Debug("default library roots", "roots", roots)
	return roots
}
