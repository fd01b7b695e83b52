package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/juju/clock"

	"github.com/CliForge/dbauth/pkg/dbauth/types"
)

// FileFallback reads fallback passwords from files named after the identity.
type FileFallback struct {
	dir   string
	clock clock.Clock
}

// NewFileFallback creates a file fallback rooted at dir. A relative dir is
// resolved against the working directory at lookup time.
func NewFileFallback(dir string, clk clock.Clock) *FileFallback {
	if dir == "" {
		dir = DefaultFallbackDir
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &FileFallback{
		dir:   dir,
		clock: clk,
	}
}

// Path returns the password file path for identity.
func (f *FileFallback) Path(identity types.Identity) (string, error) {
	dir := f.dir
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(wd, dir)
	}
	return filepath.Join(dir, identity.FileName()), nil
}

// Lookup reads the password file for identity.
func (f *FileFallback) Lookup(ctx context.Context, identity types.Identity) (types.Token, bool) {
	path, err := f.Path(identity)
	if err != nil {
		logger.Errorf("failed to resolve fallback path: %v", err)
		return types.Token{}, false
	}

	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Errorf("failed to stat fallback file %s: %v", path, err)
		}
		return types.Token{}, false
	}
	if info.IsDir() {
		logger.Errorf("fallback path is a directory: %s", path)
		return types.Token{}, false
	}
	if info.Size() == 0 || info.Size() > types.MaxPasswordSize {
		logger.Errorf("invalid file size %d: %s", info.Size(), path)
		return types.Token{}, false
	}

	file, err := os.Open(path)
	if err != nil {
		logger.Errorf("failed to read password: %s: %v", path, err)
		return types.Token{}, false
	}
	defer file.Close()

	// The file may have grown since the stat, read one byte past the limit.
	data, err := io.ReadAll(io.LimitReader(file, types.MaxPasswordSize+1))
	if err != nil {
		logger.Errorf("failed to read password: %s: %v", path, err)
		return types.Token{}, false
	}

	password, ok := parsePassword(path, data)
	if !ok {
		return types.Token{}, false
	}
	logger.Infof("reading password: %s", path)
	return fallbackToken(password, f.clock), true
}
