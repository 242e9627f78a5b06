//go:build !cgo && !windows && !darwin && !js

package engine

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
)

// NewOtoEngine is unavailable without cgo on this platform: oto's
// output here goes through ALSA, which needs cgo. On windows, darwin,
// and js the real engine is pure Go and this stub is not compiled.
func NewOtoEngine(opts Options, fsys afero.Fs) (Engine, error) {
	slog.Debug("oto engine requested but binary was built without cgo")
	return nil, fmt.Errorf("%w: oto requires cgo on this platform", ErrEngineNotAvailable)
}
