package library

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

// AliasMapper maps logical source names to paths defined in an alias
// table. Relative targets are resolved against the table's directory.
type AliasMapper struct {
	name    string
	baseDir string
	aliases map[string]string
}

// NewAliasMapper creates an alias-based path mapper
func NewAliasMapper(name, baseDir string, aliases map[string]string) *AliasMapper {
	slog.Debug("creating alias mapper",
		"name", name,
		"base_dir", baseDir,
		"alias_count", len(aliases))

	return &AliasMapper{
		name:    name,
		baseDir: baseDir,
		aliases: aliases,
	}
}

// LoadAliasMapper reads a JSON alias table ({"name": "path", ...}) and
// builds a mapper from it
func LoadAliasMapper(fsys afero.Fs, path string) (*AliasMapper, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		slog.Error("failed to read alias table", "path", path, "error", err)
		return nil, fmt.Errorf("failed to read alias table: %w", err)
	}

	var aliases map[string]string
	if err := json.Unmarshal(data, &aliases); err != nil {
		slog.Error("failed to parse alias table", "path", path, "error", err)
		return nil, fmt.Errorf("failed to parse alias table: %w", err)
	}

	slog.Debug("alias table loaded", "path", path, "alias_count", len(aliases))
	return NewAliasMapper(filepath.Base(path), filepath.Dir(path), aliases), nil
}

// MapPath converts a source name to its aliased path, if one exists.
// Names without an alias map to no candidates.
func (a *AliasMapper) MapPath(name string) ([]string, error) {
	if name == "" {
		return []string{}, nil
	}

	target, ok := a.aliases[name]
	if !ok {
		slog.Debug("no alias for name", "name", name, "mapper_name", a.name)
		return []string{}, nil
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(a.baseDir, target)
	}

	slog.Debug("alias mapping found", "name", name, "target", target)
	return []string{target}, nil
}

// Name returns the name of this alias mapper
func (a *AliasMapper) Name() string {
	return a.name
}

// Type returns the type identifier for alias mappers
func (a *AliasMapper) Type() string {
	return "alias"
}
