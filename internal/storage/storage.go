// Package storage owns the node's on-disk state: the data directory layout
// and the SQLite-backed peer directory tables.
package storage

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// EnsureLayout creates dataDir and the parent directory of every given file
// path, so the peer database, block store and nonce store can all open
// without racing to create their directories first.
func EnsureLayout(dataDir string, filePaths ...string) error {
	if dataDir == "" {
		return errors.New("storage: data directory must not be empty")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return errors.Wrap(err, "storage: create data directory")
	}
	for _, p := range filePaths {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return errors.Wrapf(err, "storage: create directory for %s", p)
		}
	}
	return nil
}
