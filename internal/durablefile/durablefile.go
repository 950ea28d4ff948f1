// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package durablefile writes small state files so that a crash at any
// point leaves either the previous content or the new content, never a
// partial write, and the new content is on stable storage before the
// call returns.
package durablefile

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// Write replaces the file at path with data. The data is written to a
// temporary file in the same directory, synced, and renamed over the
// target, and the directory entry is synced afterwards.
func Write(path string, data []byte, perm os.FileMode) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	f, err := os.CreateTemp(dir, name)
	if err != nil {
		return errors.Trace(err)
	}
	tmpName := f.Name()
	defer func() {
		if tmpName != "" {
			_ = f.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return errors.Trace(err)
	}
	if err := f.Sync(); err != nil {
		return errors.Trace(err)
	}
	if err := f.Chmod(perm); err != nil {
		return errors.Trace(err)
	}
	if err := f.Close(); err != nil {
		return errors.Trace(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Trace(err)
	}
	tmpName = ""

	// Sync the directory so the rename itself is durable.
	d, err := os.Open(dir)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return errors.Trace(err)
	}
	return nil
}
