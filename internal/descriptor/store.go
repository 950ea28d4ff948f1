// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package descriptor

import (
	"os"
	"strings"

	"github.com/juju/errors"

	"github.com/canonical/dbchurn/internal/durablefile"
)

// Store reads and writes the descriptor at a well-known path. The
// controller owns writes; the driver only ever reads, so a full overwrite
// with rename is the only coordination required.
type Store struct {
	path string
}

// NewStore returns a store bound to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the descriptor file.
func (s *Store) Path() string {
	return s.path
}

// Write replaces the stored descriptor, forcing it to stable storage.
func (s *Store) Write(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return errors.Trace(err)
	}
	if err := durablefile.Write(s.path, []byte(d.String()+"\n"), 0o600); err != nil {
		return errors.Annotatef(err, "writing connection descriptor to %q", s.path)
	}
	return nil
}

// Read returns the current descriptor snapshot. It returns a NotFound
// error when no descriptor has been written yet.
func (s *Store) Read() (Descriptor, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Descriptor{}, errors.NotFoundf("connection descriptor at %q", s.path)
	} else if err != nil {
		return Descriptor{}, errors.Trace(err)
	}
	d, err := Parse(strings.TrimSpace(string(data)))
	if err != nil {
		return Descriptor{}, errors.Annotatef(err, "parsing connection descriptor at %q", s.path)
	}
	return d, nil
}

// Remove deletes the descriptor file. Removing an absent file is not an
// error; it signals a completed stop cycle either way.
func (s *Store) Remove() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Trace(err)
	}
	return nil
}
