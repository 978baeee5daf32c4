// Package script picks the effective build script for a checkout.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zulandar/roundhouse/internal/cierr"
)

// overrideName is the filename the override script is materialized under
// inside the working directory.
const overrideName = ".roundhouse-override.sh"

// Resolved is the outcome of script resolution.
type Resolved struct {
	Path     string // absolute path of the script to execute
	Override bool   // true when the registry override was used
}

// Resolve returns the script to run for a freshly cloned working directory.
// A non-empty override wins and is written into the workdir; otherwise the
// first existing candidate path inside the clone is used. Neither present
// means the build aborts before execution with cierr.ErrNotFound.
func Resolve(workdir, override string, candidates []string) (*Resolved, error) {
	if strings.TrimSpace(override) != "" {
		path := filepath.Join(workdir, overrideName)
		if err := os.WriteFile(path, []byte(override), 0o700); err != nil {
			return nil, fmt.Errorf("script: write override: %w", err)
		}
		return &Resolved{Path: path, Override: true}, nil
	}

	for _, name := range candidates {
		path := filepath.Join(workdir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		// In-repo scripts are not always committed executable.
		if err := os.Chmod(path, info.Mode()|0o100); err != nil {
			return nil, fmt.Errorf("script: chmod %s: %w", name, err)
		}
		return &Resolved{Path: path}, nil
	}

	return nil, fmt.Errorf("script: no build script (tried %s): %w",
		strings.Join(candidates, ", "), cierr.ErrNotFound)
}
