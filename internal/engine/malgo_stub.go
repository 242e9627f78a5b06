//go:build !cgo

package engine

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
)

// NewMalgoEngine is unavailable without cgo. The factory falls back
// to the oto engine in that case.
func NewMalgoEngine(opts Options, fsys afero.Fs) (Engine, error) {
	slog.Debug("malgo engine requested but binary was built without cgo")
	return nil, fmt.Errorf("%w: malgo requires cgo", ErrEngineNotAvailable)
}
