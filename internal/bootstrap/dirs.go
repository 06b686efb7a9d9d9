package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"voiced/internal/common/fsutil"
)

// RequiredDirs are created under the data root before anything else touches
// the filesystem.
var RequiredDirs = []string{"uploads", "outputs", "voice_embeddings", "logs", "cache"}

const defaultDirPerm os.FileMode = 0o755

// Provisioner creates RequiredDirs. CachePath, when set, replaces
// <Root>/cache.
type Provisioner struct {
	Root      string
	CachePath string
	Perm      os.FileMode
	Logger    zerolog.Logger
}

// Paths returns the absolute directories Provision will create.
func (p Provisioner) Paths() []string {
	out := make([]string, 0, len(RequiredDirs))
	for _, name := range RequiredDirs {
		if name == "cache" && p.CachePath != "" {
			out = append(out, p.CachePath)
			continue
		}
		out = append(out, filepath.Join(p.Root, name))
	}
	return out
}

// Provision is idempotent. Any failure is a fatal StageError naming the
// directory.
func (p Provisioner) Provision() ([]string, error) {
	if p.Root == "" {
		return nil, ErrStage(StageProvisionDirs, fmt.Errorf("data root is empty"))
	}
	perm := p.Perm
	if perm == 0 {
		perm = defaultDirPerm
	}
	paths := p.Paths()
	for _, dir := range paths {
		if err := fsutil.EnsureWritableDir(dir, perm); err != nil {
			return nil, ErrStage(StageProvisionDirs, fmt.Errorf("directory %s: %w", dir, err))
		}
		p.Logger.Debug().Str("dir", dir).Msg("directory ready")
	}
	return paths, nil
}
