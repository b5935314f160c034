package service

import (
	"fmt"
	"path/filepath"
	"strings"

	appErrors "github.com/noah-isme/sma-marks-api/pkg/errors"
)

// SourceGuard confines re-pointing the store to files that sit next to the
// configured data file.
type SourceGuard struct {
	dir string
}

// NewSourceGuard builds a guard for the directory holding dataFile.
func NewSourceGuard(dataFile string) (*SourceGuard, error) {
	abs, err := filepath.Abs(dataFile)
	if err != nil {
		return nil, fmt.Errorf("resolve data file: %w", err)
	}
	return &SourceGuard{dir: filepath.Dir(abs)}, nil
}

// Dir returns the directory sources are confined to.
func (g *SourceGuard) Dir() string {
	return g.dir
}

// Resolve returns the absolute path for source. Relative sources are taken
// from the data directory. Anything that does not name a file directly in
// that directory is rejected.
func (g *SourceGuard) Resolve(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "source is required")
	}

	path := source
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.dir, path)
	}
	path = filepath.Clean(path)

	if filepath.Dir(path) != g.dir || filepath.Base(path) == "." || filepath.Base(path) == ".." {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("source must be a file in %s", g.dir))
	}
	return path, nil
}
